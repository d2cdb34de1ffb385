package billing

import "time"

// SyncResult reports whether the synchronizer wrote and the resulting status.
type SyncResult struct {
	Updated bool   `json:"updated"`
	Status  string `json:"status"`
}

// OrphanedSubscription is a live gateway subscription with no local link.
type OrphanedSubscription struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	CustomerID        string            `json:"customer_id"`
	CustomerEmail     string            `json:"customer_email"`
	CustomerName      string            `json:"customer_name"`
	Amount            int64             `json:"amount"`
	Created           time.Time         `json:"created"`
	PeriodStart       *time.Time        `json:"period_start"`
	PeriodEnd         *time.Time        `json:"period_end"`
	Program           string            `json:"program"`
	Metadata          map[string]string `json:"metadata"`
	SubscriptionCount int               `json:"subscription_count"`
}

// OrphanReport is a cached snapshot of GetOrphanedSubscriptions.
type OrphanReport struct {
	ID            string                 `json:"id"`
	GeneratedAt   time.Time              `json:"generated_at"`
	Subscriptions []OrphanedSubscription `json:"subscriptions"`
	Cached        bool                   `json:"cached"`
}

// PotentialMatch is a candidate profile for an orphaned subscription.
type PotentialMatch struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Status          string `json:"status"`
	HasSubscription bool   `json:"has_subscription"`
	Program         string `json:"program"`
}

// CascadeError records one profile whose withdrawal failed.
type CascadeError struct {
	ProfileID uint   `json:"profile_id"`
	Error     string `json:"error"`
}

// CascadeResult aggregates a cancellation cascade.
type CascadeResult struct {
	Withdrawn int            `json:"withdrawn"`
	Errors    []CascadeError `json:"errors"`
}

// BillingStatus is the per-person billing projection for one account.
type BillingStatus struct {
	HasPaymentMethod      bool       `json:"has_payment_method"`
	HasActiveSubscription bool       `json:"has_active_subscription"`
	StripeCustomerID      *string    `json:"stripe_customer_id"`
	SubscriptionStatus    *string    `json:"subscription_status"`
	PaidUntil             *time.Time `json:"paid_until"`
}

// ProfileBillingStatus is the per-profile billing projection.
type ProfileBillingStatus struct {
	ProfileID       uint   `json:"profile_id"`
	HasSubscription bool   `json:"has_subscription"`
	Amount          *int64 `json:"amount"`
}

// SiblingMember is the input to the discount rule.
type SiblingMember struct {
	ProfileID       uint   `json:"profile_id"`
	Status          string `json:"status"`
	HasSubscription bool   `json:"has_subscription"`
}

// DiscountEligibility is the result of the sibling discount rule.
type DiscountEligibility struct {
	Eligible          bool `json:"eligible"`
	QualifyingMembers int  `json:"qualifying_members"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	AccountType     string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
