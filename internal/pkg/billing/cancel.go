package billing

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// CancelSubscription cancels a subscription at the gateway, mirrors the new
// status locally and withdraws the enrollments it was paying for.
func (s *Service) CancelSubscription(ctx context.Context, stripeSubscriptionID string, accountType gateway.AccountType) (*CascadeResult, error) {
	if accountType == "" {
		return nil, &ConflictError{Message: "Account type is required to cancel a subscription"}
	}
	local, err := s.GetSubscriptionByGatewayID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	if normalizeStatus(local.Status) == models.BillingStatusCanceled {
		return nil, &ConflictError{Message: "Subscription is already canceled"}
	}
	gw, err := s.gateway(accountType)
	if err != nil {
		return nil, err
	}

	done := observe("cancel_subscription")
	_, err = gw.CancelSubscription(ctx, local.StripeSubscriptionID)
	done()
	if err != nil {
		return nil, fmt.Errorf("cancel subscription %s: %w", local.StripeSubscriptionID, err)
	}
	fiberlog.Infof("[Billing] Canceled subscription %s at gateway", local.StripeSubscriptionID)

	if _, err := s.SyncSubscriptionFromGateway(ctx, local.StripeSubscriptionID, accountType); err != nil {
		return nil, err
	}
	return s.finishSubscription(ctx, local.ID, DefaultCancellationReason)
}
