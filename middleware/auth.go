// middleware/auth.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"cultivation-core/apperr"
)

const userIDKey = "user_id"

// UserContextMiddleware reads the player identity the gateway forwards in
// X-User-ID. Every route behind it acts on that player.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on %s", c.Path())
			return reject(c, fiber.StatusUnauthorized, apperr.CodeInvalidRequest,
				"missing X-User-ID: requests must come through the gateway")
		}
		if len(userID) > 64 {
			return reject(c, fiber.StatusBadRequest, apperr.CodeInvalidRequest, "X-User-ID is too long")
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// UserID returns the identity set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}
