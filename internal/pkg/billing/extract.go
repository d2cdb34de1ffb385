package billing

import (
	"time"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
)

// Period is a normalized billing period. Either bound may be nil.
type Period struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// ExtractCustomerID returns the subscription's customer id whether the
// relation was returned as a reference or expanded.
func ExtractCustomerID(sub *gateway.Subscription) (string, bool) {
	if sub == nil {
		return "", false
	}
	id := sub.Customer.ID()
	return id, id != ""
}

// ExtractCustomer returns the expanded customer, if the relation was expanded.
func ExtractCustomer(sub *gateway.Subscription) (*gateway.Customer, bool) {
	if sub == nil {
		return nil, false
	}
	return sub.Customer.Expanded()
}

// ExtractPeriod prefers the subscription-level period and falls back to the
// first item's.
func ExtractPeriod(sub *gateway.Subscription) Period {
	if sub == nil {
		return Period{}
	}
	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	if item, ok := sub.FirstItem(); ok {
		if start == 0 {
			start = item.CurrentPeriodStart
		}
		if end == 0 {
			end = item.CurrentPeriodEnd
		}
	}
	return Period{Start: unixTime(start), End: unixTime(end)}
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
