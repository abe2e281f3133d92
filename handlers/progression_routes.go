// handlers/progression_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"cultivation-core/middleware"
	"cultivation-core/services"
)

type breakthroughRequest struct {
	Consumable string `json:"consumable"`
}

// SetupProgressionRoutes registers breakthrough attempts and the modifier
// view.
func SetupProgressionRoutes(router fiber.Router, core *services.Core) {
	router.Post("/breakthrough", middleware.ActionGate(core.Gate, "breakthrough"), func(c *fiber.Ctx) error {
		var req breakthroughRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, "invalid request body")
		}
		consumable := req.Consumable
		if consumable != "" {
			consumable = itemName(core, consumable)
		}
		res, err := core.Breakthrough.Attempt(c.UserContext(), middleware.UserID(c), consumable)
		return respond(c, res, err)
	})

	router.Get("/modifiers", middleware.ActionGate(core.Gate, "modifiers"), func(c *fiber.Ctx) error {
		res, err := core.Effects.Modifiers(c.UserContext(), middleware.UserID(c))
		return respond(c, res, err)
	})
}
