package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/billing"
)

var (
	billingController *BillingController
	webhookController *WebhookController
)

// InitializeBillingControllers wires the global controller instances.
func InitializeBillingControllers(service *billing.Service) {
	billingController = NewBillingController(service)
	webhookController = NewWebhookController(billing.NewWebhookProcessor(service))
}

// Adapter functions used by the router

func HandleSyncSubscription(c *fiber.Ctx) error {
	return billingController.HandleSyncSubscription(c)
}

func HandleCancelSubscription(c *fiber.Ctx) error {
	return billingController.HandleCancelSubscription(c)
}

func HandleLinkProfiles(c *fiber.Ctx) error {
	return billingController.HandleLinkProfiles(c)
}

func HandleUnlinkProfiles(c *fiber.Ctx) error {
	return billingController.HandleUnlinkProfiles(c)
}

func HandleCascade(c *fiber.Ctx) error {
	return billingController.HandleCascade(c)
}

func HandleOrphans(c *fiber.Ctx) error {
	return billingController.HandleOrphans(c)
}

func HandlePotentialMatches(c *fiber.Ctx) error {
	return billingController.HandlePotentialMatches(c)
}

func HandleLinkOrphan(c *fiber.Ctx) error {
	return billingController.HandleLinkOrphan(c)
}

func HandleBillingStatus(c *fiber.Ctx) error {
	return billingController.HandleBillingStatus(c)
}

func HandleProfilesBillingStatus(c *fiber.Ctx) error {
	return billingController.HandleProfilesBillingStatus(c)
}

func HandleDiscountEligibility(c *fiber.Ctx) error {
	return billingController.HandleDiscountEligibility(c)
}

func HandleStripeWebhook(c *fiber.Ctx) error {
	return webhookController.HandleStripeWebhook(c)
}
