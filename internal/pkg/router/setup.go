package router

import (
	"github.com/gofiber/fiber/v2"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// Install HttpRouter first to initialize the session store and the global
	// identity middleware. API routes depend on that middleware; the redirect
	// catch-all goes last so it cannot shadow /api.
	setup(app, NewHttpRouter(), NewApiRouter(), NewRedirectRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
