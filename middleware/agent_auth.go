package middleware

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// AgentClaims binds an external controller's token to the persona it drives.
type AgentClaims struct {
	PersonaSlug  string `json:"persona_slug"`
	ControllerID int64  `json:"controller_id"`
	jwt.RegisteredClaims
}

type agentLimiters struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newAgentLimiters() *agentLimiters {
	rps := 5.0
	if v := strings.TrimSpace(os.Getenv("AGENT_RATE_RPS")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}
	return &agentLimiters{
		limiters: make(map[int64]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    int(rps * 2),
	}
}

func (a *agentLimiters) allow(controllerID int64) bool {
	a.mu.Lock()
	lim, ok := a.limiters[controllerID]
	if !ok {
		lim = rate.NewLimiter(a.rps, a.burst)
		a.limiters[controllerID] = lim
	}
	a.mu.Unlock()
	return lim.Allow()
}

// AgentAuthMiddleware authenticates external persona controllers. The primary
// credential is an HS256 JWT carrying the persona slug and controller id; a
// static X-Agent-Token header is accepted as a legacy fallback. Each rejection
// reason gets its own log line so a misbehaving agent can be diagnosed from
// the service logs alone.
func AgentAuthMiddleware() fiber.Handler {
	secret := []byte(os.Getenv("AGENT_JWT_SECRET"))
	if len(secret) == 0 {
		log.Fatal("❌ AGENT_JWT_SECRET is not set — external agents cannot authenticate")
	}
	staticToken := strings.TrimSpace(os.Getenv("AGENT_STATIC_TOKEN"))
	staticController, _ := strconv.ParseInt(strings.TrimSpace(os.Getenv("AGENT_STATIC_CONTROLLER_ID")), 10, 64)
	limiters := newAgentLimiters()

	return func(c *fiber.Ctx) error {
		// Legacy path: a pre-shared token with a fixed controller identity.
		if legacy := c.Get("X-Agent-Token"); legacy != "" {
			if staticToken == "" || legacy != staticToken {
				log.Printf("🚫 [AGENT_AUTH] Invalid legacy X-Agent-Token for %s", c.Path())
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid agent token",
				})
			}
			if !limiters.allow(staticController) {
				log.Printf("⏳ [AGENT_AUTH] Rate limit exceeded for legacy controller %d", staticController)
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "agent rate limit exceeded",
				})
			}
			c.Locals("agent_controller_id", staticController)
			c.Locals("agent_persona_slug", "")
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [AGENT_AUTH] Missing agent credentials for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "agent authentication missing",
			})
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims := &AgentClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			log.Printf("❌ [AGENT_AUTH] Invalid or expired agent JWT for %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired agent token",
			})
		}
		if claims.PersonaSlug == "" || claims.ControllerID == 0 {
			log.Printf("❌ [AGENT_AUTH] Agent JWT missing persona binding for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "agent token not bound to a persona",
			})
		}

		if !limiters.allow(claims.ControllerID) {
			log.Printf("⏳ [AGENT_AUTH] Rate limit exceeded for controller %d (persona %s)", claims.ControllerID, claims.PersonaSlug)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "agent rate limit exceeded",
			})
		}

		c.Locals("agent_controller_id", claims.ControllerID)
		c.Locals("agent_persona_slug", claims.PersonaSlug)
		return c.Next()
	}
}
