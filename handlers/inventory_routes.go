// handlers/inventory_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"cultivation-core/middleware"
	"cultivation-core/services"
)

type itemRequest struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SetupInventoryRoutes registers the storage ring and shop routes.
func SetupInventoryRoutes(router fiber.Router, core *services.Core) {
	router.Get("/inventory", middleware.ActionGate(core.Gate, "inventory"), func(c *fiber.Ctx) error {
		res, err := core.Ledger.Inventory(c.UserContext(), middleware.UserID(c))
		return respond(c, res, err)
	})

	router.Post("/inventory/discard", middleware.ActionGate(core.Gate, "discard"), func(c *fiber.Ctx) error {
		var req itemRequest
		if err := bind(c, &req); err != nil || req.Name == "" {
			return badRequest(c, "name is required")
		}
		if req.Count == 0 {
			req.Count = 1
		}
		res, err := core.Ledger.DiscardItem(c.UserContext(), middleware.UserID(c), itemName(core, req.Name), req.Count)
		return respond(c, res, err)
	})

	router.Post("/inventory/equip", middleware.ActionGate(core.Gate, "equip"), func(c *fiber.Ctx) error {
		var req itemRequest
		if err := bind(c, &req); err != nil || req.Name == "" {
			return badRequest(c, "name is required")
		}
		res, err := core.Ledger.Equip(c.UserContext(), middleware.UserID(c), itemName(core, req.Name))
		return respond(c, res, err)
	})

	router.Get("/shop", middleware.ActionGate(core.Gate, "shop"), func(c *fiber.Ctx) error {
		res, err := core.Ledger.ListShop(c.UserContext())
		return respond(c, res, err)
	})

	router.Post("/shop/:slug/buy", middleware.ActionGate(core.Gate, "buy"), func(c *fiber.Ctx) error {
		res, err := core.Ledger.Purchase(c.UserContext(), middleware.UserID(c), c.Params("slug"))
		return respond(c, res, err)
	})
}
