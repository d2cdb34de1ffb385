package router

import (
	"time"

	"github.com/ManuelReschke/enrollbilling/app/controllers"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	adminAPIKey string
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	admin := api.Group("/v1/admin", middleware.AdminAPIKeyMiddleware(h.adminAPIKey))

	// Subscriptions, addressed by gateway subscription id
	admin.Post("/subscriptions/:id/sync", controllers.HandleSyncSubscription)
	admin.Post("/subscriptions/:id/cancel", controllers.HandleCancelSubscription)
	admin.Post("/subscriptions/:id/assignments", controllers.HandleLinkProfiles)
	admin.Delete("/subscriptions/:id/assignments", controllers.HandleUnlinkProfiles)
	admin.Post("/subscriptions/:id/cascade", controllers.HandleCascade)

	// Orphan reconciliation
	admin.Get("/orphans", controllers.HandleOrphans)
	admin.Get("/matches", controllers.HandlePotentialMatches)
	admin.Post("/orphans/:id/link", controllers.HandleLinkOrphan)

	// Status projections
	admin.Get("/billing-status", controllers.HandleBillingStatus)
	admin.Post("/billing-status/profiles", controllers.HandleProfilesBillingStatus)
	admin.Post("/discount-eligibility", controllers.HandleDiscountEligibility)
}

func NewApiRouter(adminAPIKey string) *ApiRouter {
	return &ApiRouter{adminAPIKey: adminAPIKey}
}
