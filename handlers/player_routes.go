// handlers/player_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"cultivation-core/middleware"
	"cultivation-core/models"
	"cultivation-core/services"
)

type createPlayerRequest struct {
	Name      string           `json:"name"`
	Archetype models.Archetype `json:"archetype"`
}

type usePillRequest struct {
	Name string `json:"name"`
}

type cultivateRequest struct {
	Minutes int `json:"minutes"`
}

// SetupPlayerRoutes registers player creation, status, consumables and
// cultivation sessions.
func SetupPlayerRoutes(router fiber.Router, core *services.Core) {
	router.Post("/players", func(c *fiber.Ctx) error {
		var req createPlayerRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := core.Players.CreatePlayer(c.UserContext(), middleware.UserID(c), req.Name, req.Archetype)
		if err == nil && res.Success {
			c.Status(fiber.StatusCreated)
			return c.JSON(envelope{Success: true, Message: res.Message, Data: res.Data})
		}
		return respond(c, res, err)
	})

	router.Get("/players/me", middleware.ActionGate(core.Gate, "status"), func(c *fiber.Ctx) error {
		res, err := core.Players.Status(c.UserContext(), middleware.UserID(c))
		return respond(c, res, err)
	})

	router.Post("/pills/use", middleware.ActionGate(core.Gate, "use_pill"), func(c *fiber.Ctx) error {
		var req usePillRequest
		if err := bind(c, &req); err != nil || req.Name == "" {
			return badRequest(c, "name is required")
		}
		res, err := core.Players.UsePill(c.UserContext(), middleware.UserID(c), itemName(core, req.Name))
		return respond(c, res, err)
	})

	router.Post("/cultivation/start", middleware.ActionGate(core.Gate, "start_cultivation"), func(c *fiber.Ctx) error {
		var req cultivateRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := core.Players.StartCultivation(c.UserContext(), middleware.UserID(c), req.Minutes)
		return respond(c, res, err)
	})

	router.Post("/cultivation/end", middleware.ActionGate(core.Gate, "end_cultivation"), func(c *fiber.Ctx) error {
		res, err := core.Players.EndCultivation(c.UserContext(), middleware.UserID(c))
		return respond(c, res, err)
	})
}
