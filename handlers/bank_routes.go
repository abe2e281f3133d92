// handlers/bank_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"cultivation-core/middleware"
	"cultivation-core/services"
)

type amountRequest struct {
	Amount int64 `json:"amount"`
}

// SetupBankRoutes registers deposits, loans and the transaction history.
func SetupBankRoutes(router fiber.Router, core *services.Core) {
	bank := router.Group("/bank")

	bank.Get("/", middleware.ActionGate(core.Gate, "bank_view"), func(c *fiber.Ctx) error {
		res, err := core.Ledger.Bank(c.UserContext(), middleware.UserID(c))
		return respond(c, res, err)
	})

	bank.Post("/deposit", middleware.ActionGate(core.Gate, "deposit"), func(c *fiber.Ctx) error {
		var req amountRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := core.Ledger.Deposit(c.UserContext(), middleware.UserID(c), req.Amount)
		return respond(c, res, err)
	})

	bank.Post("/withdraw", middleware.ActionGate(core.Gate, "withdraw"), func(c *fiber.Ctx) error {
		var req amountRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := core.Ledger.Withdraw(c.UserContext(), middleware.UserID(c), req.Amount)
		return respond(c, res, err)
	})

	bank.Post("/loan", middleware.ActionGate(core.Gate, "borrow"), func(c *fiber.Ctx) error {
		var req services.BorrowRequest
		if err := bind(c, &req); err != nil {
			return badRequest(c, "invalid request body")
		}
		res, err := core.Ledger.Borrow(c.UserContext(), middleware.UserID(c), req)
		return respond(c, res, err)
	})

	bank.Post("/loan/repay", middleware.ActionGate(core.Gate, "repay"), func(c *fiber.Ctx) error {
		res, err := core.Ledger.Repay(c.UserContext(), middleware.UserID(c))
		return respond(c, res, err)
	})

	bank.Get("/transactions", middleware.ActionGate(core.Gate, "transactions"), func(c *fiber.Ctx) error {
		page := queryInt(c, "page", 1)
		size := queryInt(c, "size", 20)
		res, err := core.Ledger.History(c.UserContext(), middleware.UserID(c), page, size)
		return respond(c, res, err)
	})
}
