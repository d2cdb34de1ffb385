package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/billing"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
)

// WebhookController receives gateway webhooks.
type WebhookController struct {
	processor *billing.WebhookProcessor
}

// NewWebhookController creates a webhook controller.
func NewWebhookController(processor *billing.WebhookProcessor) *WebhookController {
	return &WebhookController{processor: processor}
}

// HandleStripeWebhook verifies and processes one delivery for the account in
// the path. Any processing failure answers 500 so the gateway redelivers.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	account, err := gateway.ParseAccountType(c.Params("account"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_account"})
	}
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_signature"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	outcome, err := wc.processor.Handle(ctx, account, rawBody, signature)
	if err != nil {
		var ge *gateway.GatewayError
		if errors.As(err, &ge) && ge.Code == gateway.CodeSignatureInvalid {
			fiberlog.Warnf("[Webhook] Invalid signature for %s webhook", account)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}
	return c.JSON(fiber.Map{
		"ok":        true,
		"event_id":  outcome.EventID,
		"duplicate": outcome.Duplicate,
		"ignored":   outcome.Ignored,
	})
}
