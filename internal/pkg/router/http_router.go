package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/snipfox/snipfox/app/controllers"
	"github.com/snipfox/snipfox/internal/pkg/constants"
	"github.com/snipfox/snipfox/internal/pkg/middleware"
	"github.com/snipfox/snipfox/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply identity middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Initialize controllers with repositories
	controllers.InitializeAuthController()
	controllers.InitializeLinkController()
	controllers.InitializeSubscriptionController()
	controllers.InitializeBillingController()

	app.Get(constants.PublicRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "snipfox",
			"status":  "ok",
		})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

// RedirectRouter registers the catch-all short code route. It installs last
// so it cannot shadow /api; fiber matches in registration order.
type RedirectRouter struct {
}

func (h RedirectRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.RedirectRoute, controllers.HandleRedirect)
}

func NewRedirectRouter() *RedirectRouter {
	return &RedirectRouter{}
}
