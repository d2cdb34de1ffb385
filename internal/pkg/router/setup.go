package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers every route group. Controllers must be initialized
// before this is called.
func InstallRouter(app *fiber.App, adminAPIKey string) {
	setup(app, NewSystemRouter(), NewWebhookRouter(), NewApiRouter(adminAPIKey))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
