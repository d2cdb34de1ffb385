package billing

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/metrics"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/samber/lo"
)

// Gateway webhook event types handled by WebhookProcessor.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventCheckoutSessionComplete = "checkout.session.completed"
)

// WebhookOutcome describes what happened to one delivery.
type WebhookOutcome struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
}

// WebhookProcessor verifies, records and dispatches gateway webhooks.
type WebhookProcessor struct {
	service *Service
}

// NewWebhookProcessor creates a processor on top of the billing service.
func NewWebhookProcessor(service *Service) *WebhookProcessor {
	return &WebhookProcessor{service: service}
}

// Handle processes one webhook delivery. Deliveries already processed
// successfully are acknowledged without running again. A processing error is
// stored on the event and returned so the gateway redelivers it.
func (p *WebhookProcessor) Handle(ctx context.Context, accountType gateway.AccountType, payload []byte, signature string) (*WebhookOutcome, error) {
	s := p.service
	gw, err := s.gateway(accountType)
	if err != nil {
		return nil, err
	}
	ev, err := gw.VerifyWebhookSignature(payload, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(string(accountType), "unknown", "invalid_signature").Inc()
		return nil, err
	}
	outcome := &WebhookOutcome{EventID: ev.ID, EventType: ev.Type}

	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		AccountType:     string(accountType),
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		outcome.Duplicate = true
		metrics.WebhookEvents.WithLabelValues(string(accountType), ev.Type, "duplicate").Inc()
		fiberlog.Infof("[Webhook] Duplicate event %s (%s) acknowledged", ev.ID, ev.Type)
		return outcome, nil
	}

	ignored, procErr := p.dispatch(ctx, accountType, ev)
	outcome.Ignored = ignored
	if err := s.MarkWebhookProcessed(ctx, stored.ID, procErr); err != nil {
		fiberlog.Errorf("[Webhook] Failed to mark event %s processed: %v", ev.ID, err)
	}

	result := "processed"
	switch {
	case procErr != nil:
		result = "error"
		fiberlog.Errorf("[Webhook] Event %s (%s) failed: %v", ev.ID, ev.Type, procErr)
	case ignored:
		result = "ignored"
	}
	metrics.WebhookEvents.WithLabelValues(string(accountType), ev.Type, result).Inc()
	return outcome, procErr
}

func (p *WebhookProcessor) dispatch(ctx context.Context, accountType gateway.AccountType, ev *gateway.Event) (bool, error) {
	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		sub, err := ev.DecodeSubscription()
		if err != nil {
			return false, err
		}
		return p.syncIfLinked(ctx, accountType, sub.ID)
	case EventSubscriptionDeleted:
		sub, err := ev.DecodeSubscription()
		if err != nil {
			return false, err
		}
		ignored, err := p.syncIfLinked(ctx, accountType, sub.ID)
		if err != nil || ignored {
			return ignored, err
		}
		return false, p.handleDeleted(ctx, sub.ID)
	case EventCheckoutSessionComplete:
		cs, err := ev.DecodeCheckoutSession()
		if err != nil {
			return false, err
		}
		return p.handleCheckoutCompleted(ctx, accountType, cs)
	default:
		return true, nil
	}
}

// syncIfLinked syncs a subscription the engine knows about. Subscriptions
// not linked locally yet are left to orphan reconciliation.
func (p *WebhookProcessor) syncIfLinked(ctx context.Context, accountType gateway.AccountType, stripeSubscriptionID string) (bool, error) {
	_, err := p.service.SyncSubscriptionFromGateway(ctx, stripeSubscriptionID, accountType)
	if IsNotFound(err) {
		fiberlog.Infof("[Webhook] Subscription %s not linked locally, skipping", stripeSubscriptionID)
		return true, nil
	}
	return false, err
}

func (p *WebhookProcessor) handleDeleted(ctx context.Context, stripeSubscriptionID string) error {
	local, err := p.service.GetSubscriptionByGatewayID(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}
	result, err := p.service.finishSubscription(ctx, local.ID, DefaultCancellationReason)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("cancellation cascade for %s: %d profile(s) failed", stripeSubscriptionID, len(result.Errors))
	}
	return nil
}

func (p *WebhookProcessor) handleCheckoutCompleted(ctx context.Context, accountType gateway.AccountType, cs *gateway.CheckoutSession) (bool, error) {
	email := models.NormalizeEmail(cs.Email())
	if email == "" {
		fiberlog.Warnf("[Webhook] Checkout session %s has no email, skipping", cs.ID)
		return true, nil
	}
	person, err := p.service.repo.GetPersonByEmail(ctx, email)
	if err != nil {
		if isRecordNotFound(err) {
			fiberlog.Warnf("[Webhook] No person for checkout session %s, skipping", cs.ID)
			return true, nil
		}
		return false, err
	}
	if err := p.service.MarkPaymentMethodCaptured(ctx, person.ID, accountType, cs.Customer.ID()); err != nil {
		return false, err
	}
	return false, nil
}

// MarkPaymentMethodCaptured records that a person's payment method is on file
// for the account, storing the gateway customer id when known.
func (s *Service) MarkPaymentMethodCaptured(ctx context.Context, personID uint, accountType gateway.AccountType, customerID string) error {
	if personID == 0 {
		return invalid("person_id", "person id is required")
	}
	now := s.now()
	account := &models.BillingAccount{
		PersonID:                personID,
		AccountType:             string(accountType),
		PaymentMethodCaptured:   true,
		PaymentMethodCapturedAt: &now,
	}
	if customerID != "" {
		account.StripeCustomerID = lo.ToPtr(customerID)
		// the customer may already belong to another payer's account
		owner, err := s.repo.GetBillingAccountByCustomerID(ctx, string(accountType), customerID)
		switch {
		case err == nil:
			account.PersonID = owner.PersonID
		case !isRecordNotFound(err):
			return err
		}
	}
	if err := s.repo.UpsertBillingAccount(ctx, account); err != nil {
		return fmt.Errorf("upsert billing account: %w", err)
	}
	fiberlog.Infof("[Billing] Payment method captured for person %d on %s", account.PersonID, accountType)
	return nil
}
