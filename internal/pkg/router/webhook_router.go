package router

import (
	"github.com/ManuelReschke/enrollbilling/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/stripe/:account", controllers.HandleStripeWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
