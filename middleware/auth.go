package middleware

import (
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts user identity set by Gateway.
// It is applied only to routes under /arena/ or /admin/ — but for safety, we guard.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userIDStr := c.Get("X-User-ID")
		displayName := c.Get("X-User-Name")

		path := c.Path()
		isSecured := strings.HasPrefix(path, "/arena/") || strings.HasPrefix(path, "/admin/")
		if isSecured && userIDStr == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", path)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var userID int64
		if userIDStr != "" {
			id, err := strconv.ParseInt(userIDStr, 10, 64)
			if err != nil || id <= 0 {
				log.Printf("❌ [USER_CTX] Malformed X-User-ID %q on %s", userIDStr, path)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "malformed X-User-ID",
				})
			}
			userID = id
		}

		// Attach to ctx for handlers
		c.Locals("user_id", userID)
		c.Locals("user_name", strings.TrimSpace(displayName))

		return c.Next()
	}
}
