// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"cultivation-core/apperr"
)

// GatewayAuthMiddleware validates the Bearer token the gateway attaches to
// every request. Raw tokens without the "Bearer " prefix are accepted too.
func GatewayAuthMiddleware(expectedToken string) fiber.Handler {
	if expectedToken == "" {
		log.Fatal("❌ GAME_SERVICE_TOKEN is not set, cannot authenticate gateway requests")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Printf("🚫 [GATEWAY_AUTH] Missing Authorization header for %s", c.Path())
			return reject(c, fiber.StatusUnauthorized, apperr.CodeInvalidRequest, "gateway authentication token missing")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("❌ [GATEWAY_AUTH] Invalid token for %s", c.Path())
			return reject(c, fiber.StatusUnauthorized, apperr.CodeInvalidRequest, "invalid gateway authentication token")
		}
		return c.Next()
	}
}

// reject writes the standard failure envelope.
func reject(c *fiber.Ctx, status int, code apperr.Code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"code":    code,
		"message": message,
	})
}
