// middleware/gate.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"cultivation-core/services"
)

const reminderKey = "loan_reminder"

// ActionGate runs the overdue sweep and the busy-state check before the
// named action. A loan reminder, if any, is kept for the handler.
func ActionGate(gate *services.Gate, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := UserID(c)
		adm, err := gate.Admit(c.UserContext(), userID, action)
		if err != nil {
			log.Printf("❌ [GATE] %s/%s: %v", userID, action, err)
			return reject(c, fiber.StatusInternalServerError, adm.Code, "Something went wrong. Please try again later.")
		}
		if !adm.Success {
			return reject(c, adm.Code.HTTPStatus(), adm.Code, adm.Message)
		}
		if adm.Data.Reminder != nil {
			c.Locals(reminderKey, adm.Data.Reminder)
		}
		return c.Next()
	}
}

// Reminder returns the loan reminder stored by ActionGate.
func Reminder(c *fiber.Ctx) *services.Reminder {
	r, _ := c.Locals(reminderKey).(*services.Reminder)
	return r
}
