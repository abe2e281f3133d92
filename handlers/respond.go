// handlers/respond.go
package handlers

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"cultivation-core/apperr"
	"cultivation-core/middleware"
	"cultivation-core/services"
)

// envelope is the body of every API response.
type envelope struct {
	Success  bool               `json:"success"`
	Code     apperr.Code        `json:"code,omitempty"`
	Message  string             `json:"message"`
	Data     any                `json:"data,omitempty"`
	Reminder *services.Reminder `json:"reminder,omitempty"`
}

// respond writes res, attaching the loan reminder the gate stored, if any.
func respond[T any](c *fiber.Ctx, res services.Result[T], err error) error {
	if err != nil {
		log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(envelope{
			Code:    apperr.CodeUnknown,
			Message: "Something went wrong. Please try again later.",
		})
	}

	body := envelope{
		Success:  res.Success,
		Code:     res.Code,
		Message:  res.Message,
		Reminder: middleware.Reminder(c),
	}
	status := fiber.StatusOK
	if !res.Success {
		status = res.Code.HTTPStatus()
	}
	if res.Success || res.Code == apperr.CodeTerminated {
		body.Data = res.Data
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(envelope{Code: apperr.CodeInvalidRequest, Message: message})
}

// bind parses the JSON body into v.
func bind(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(v)
}

// itemName resolves loosely typed item or pill names. Unknown input passes
// through so the service reports it.
func itemName(core *services.Core, input string) string {
	if name, ok := core.Catalog.Resolve(input); ok {
		return name
	}
	return input
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return n
}
