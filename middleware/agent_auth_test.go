package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentTestApp(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv("AGENT_JWT_SECRET", "test-secret")
	t.Setenv("AGENT_STATIC_TOKEN", "legacy-token")
	t.Setenv("AGENT_STATIC_CONTROLLER_ID", "99")

	app := fiber.New()
	app.Post("/agent/echo", AgentAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"controller_id": c.Locals("agent_controller_id"),
			"persona_slug":  c.Locals("agent_persona_slug"),
		})
	})
	return app
}

func signAgentToken(t *testing.T, secret, personaSlug string, controllerID int64, expiresIn time.Duration) string {
	t.Helper()
	claims := AgentClaims{
		PersonaSlug:  personaSlug,
		ControllerID: controllerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAgentAuth_ValidJWT(t *testing.T) {
	app := agentTestApp(t)
	token := signAgentToken(t, "test-secret", "ext-bot", 42, time.Hour)

	req := httptest.NewRequest("POST", "/agent/echo", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAgentAuth_Rejections(t *testing.T) {
	app := agentTestApp(t)

	tests := []struct {
		name       string
		authHeader string
		agentToken string
		wantStatus int
	}{
		{name: "no credentials", wantStatus: fiber.StatusUnauthorized},
		{name: "garbage bearer", authHeader: "Bearer not-a-jwt", wantStatus: fiber.StatusUnauthorized},
		{
			name:       "wrong signing secret",
			authHeader: "Bearer " + signAgentToken(t, "other-secret", "ext-bot", 42, time.Hour),
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "expired token",
			authHeader: "Bearer " + signAgentToken(t, "test-secret", "ext-bot", 42, -time.Hour),
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "token without persona binding",
			authHeader: "Bearer " + signAgentToken(t, "test-secret", "", 0, time.Hour),
			wantStatus: fiber.StatusUnauthorized,
		},
		{name: "wrong legacy token", agentToken: "nope", wantStatus: fiber.StatusUnauthorized},
		{name: "valid legacy token", agentToken: "legacy-token", wantStatus: fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/agent/echo", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.agentToken != "" {
				req.Header.Set("X-Agent-Token", tt.agentToken)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestAgentAuth_RateLimit(t *testing.T) {
	t.Setenv("AGENT_RATE_RPS", "1")
	app := agentTestApp(t)
	token := signAgentToken(t, "test-secret", "ext-bot", 42, time.Hour)

	var limited bool
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/agent/echo", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		if resp.StatusCode == fiber.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "burst beyond the per-controller budget must 429")
}
