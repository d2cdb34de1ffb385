package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/metrics"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// GetSubscriptionByGatewayID loads the local mirror of a gateway subscription.
func (s *Service) GetSubscriptionByGatewayID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	id := strings.TrimSpace(stripeSubscriptionID)
	if err := validateSubscriptionID(id); err != nil {
		return nil, err
	}
	sub, err := s.repo.GetSubscriptionByGatewayID(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("subscription", "Subscription not found in database")
		}
		return nil, err
	}
	return sub, nil
}

// SyncSubscriptionFromGateway refreshes a local subscription from the
// gateway. It writes once, and only when the gateway status differs from the
// stored one, so repeated calls without a gateway-side change are no-ops.
func (s *Service) SyncSubscriptionFromGateway(ctx context.Context, stripeSubscriptionID string, accountType gateway.AccountType) (*SyncResult, error) {
	result, err := s.syncSubscription(ctx, stripeSubscriptionID, accountType)
	outcome := "unchanged"
	switch {
	case err != nil:
		outcome = "error"
	case result.Updated:
		outcome = "updated"
	}
	metrics.SubscriptionSyncs.WithLabelValues(string(accountType), outcome).Inc()
	return result, err
}

func (s *Service) syncSubscription(ctx context.Context, stripeSubscriptionID string, accountType gateway.AccountType) (*SyncResult, error) {
	local, err := s.GetSubscriptionByGatewayID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	gw, err := s.gateway(accountType)
	if err != nil {
		return nil, err
	}

	done := observe("retrieve_subscription")
	remote, err := gw.RetrieveSubscription(ctx, local.StripeSubscriptionID)
	done()
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", local.StripeSubscriptionID, err)
	}

	status := normalizeStatus(remote.Status)
	if status == normalizeStatus(local.Status) {
		return &SyncResult{Updated: false, Status: local.Status}, nil
	}

	period := ExtractPeriod(remote)
	paidUntil := local.PaidUntil
	if isBillingStatus(status) && period.End != nil {
		paidUntil = period.End
	}
	update := SubscriptionStatusUpdate{
		Status:             status,
		CurrentPeriodStart: period.Start,
		CurrentPeriodEnd:   period.End,
		PaidUntil:          paidUntil,
	}
	if err := s.repo.UpdateSubscriptionStatus(ctx, local.ID, update); err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", local.StripeSubscriptionID, err)
	}

	fiberlog.Infof("[Billing] Subscription %s status %s -> %s", local.StripeSubscriptionID, local.Status, status)
	return &SyncResult{Updated: true, Status: status}, nil
}
