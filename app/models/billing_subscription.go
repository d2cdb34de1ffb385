package models

import "time"

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

// Gateway subscription lifecycle states.
const (
	BillingStatusTrialing          = "trialing"
	BillingStatusActive            = "active"
	BillingStatusPastDue           = "past_due"
	BillingStatusCanceled          = "canceled"
	BillingStatusUnpaid            = "unpaid"
	BillingStatusIncomplete        = "incomplete"
	BillingStatusIncompleteExpired = "incomplete_expired"
)

// Subscription is the local mirror of a gateway subscription. Rows are never
// deleted; a finished subscription transitions to canceled.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	BillingAccountID     uint       `gorm:"not null;index" json:"billing_account_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_stripe_id" json:"stripe_subscription_id"`
	StripeAccountType    string     `gorm:"type:varchar(32);not null;index" json:"stripe_account_type"`
	Status               string     `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	Amount               int64      `gorm:"not null;default:0" json:"amount"`
	Currency             string     `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Interval             string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"interval"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	LastPaymentDate      *time.Time `gorm:"type:timestamp;default:null" json:"last_payment_date,omitempty"`
	PaidUntil            *time.Time `gorm:"type:timestamp;default:null" json:"paid_until,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Assignments []BillingAssignment `gorm:"foreignKey:SubscriptionID" json:"assignments,omitempty"`
}
