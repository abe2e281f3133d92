// handlers/routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"cultivation-core/middleware"
	"cultivation-core/services"
)

// SetupRoutes mounts the user context once and registers every player route
// behind it.
func SetupRoutes(app *fiber.App, core *services.Core) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	SetupPlayerRoutes(secured, core)
	SetupProgressionRoutes(secured, core)
	SetupInventoryRoutes(secured, core)
	SetupBankRoutes(secured, core)
}
