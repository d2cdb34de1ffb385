package billing

import (
	"strings"

	"github.com/ManuelReschke/enrollbilling/app/models"
)

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	default:
		return models.BillingIntervalUnknown
	}
}

// isReconcilableStatus reports whether a gateway subscription is still live
// enough to be matched against local records.
func isReconcilableStatus(status string) bool {
	switch normalizeStatus(status) {
	case models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue:
		return true
	default:
		return false
	}
}

// isBillingStatus reports whether the subscription currently charges the customer.
func isBillingStatus(status string) bool {
	switch normalizeStatus(status) {
	case models.BillingStatusActive, models.BillingStatusTrialing:
		return true
	default:
		return false
	}
}

// profileStatusFor derives the local profile status from a gateway status.
func profileStatusFor(subscriptionStatus string) string {
	switch normalizeStatus(subscriptionStatus) {
	case models.BillingStatusActive, models.BillingStatusTrialing:
		return models.ProfileStatusEnrolled
	case models.BillingStatusCanceled, models.BillingStatusIncompleteExpired:
		return models.ProfileStatusWithdrawn
	default:
		return models.ProfileStatusRegistered
	}
}

// isSafeGatewayID checks a gateway id (sub_..., cus_...) before it is used as
// a lookup key.
func isSafeGatewayID(id, prefix string) bool {
	if len(id) < 5 || len(id) > 128 || !strings.HasPrefix(id, prefix) {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}

func validateSubscriptionID(id string) error {
	if !isSafeGatewayID(id, "sub_") {
		return invalid("subscription_id", "invalid subscription id format")
	}
	return nil
}
