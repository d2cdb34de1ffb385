package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// Gateway account types. Each one selects the payment gateway account a
// customer or subscription lives in.
const (
	AccountTypeMahad           = "MAHAD"
	AccountTypeDugsi           = "DUGSI"
	AccountTypeYouthEvents     = "YOUTH_EVENTS"
	AccountTypeGeneralDonation = "GENERAL_DONATION"
)

// BillingAccount stores a person's recurring-payment identity for one
// gateway account.
type BillingAccount struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	PersonID                uint       `gorm:"not null;index:ux_billing_accounts_person_type,unique,priority:1" json:"person_id"`
	AccountType             string     `gorm:"type:varchar(32);not null;index:ux_billing_accounts_person_type,unique,priority:2;index:ux_billing_accounts_type_customer,unique,priority:1" json:"account_type"`
	StripeCustomerID        *string    `gorm:"type:varchar(191);index:ux_billing_accounts_type_customer,unique,priority:2" json:"stripe_customer_id,omitempty"`
	PaymentMethodCaptured   bool       `gorm:"default:false" json:"payment_method_captured"`
	PaymentMethodCapturedAt *time.Time `gorm:"type:timestamp;default:null" json:"payment_method_captured_at,omitempty"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Person        *Person        `gorm:"foreignKey:PersonID" json:"person,omitempty"`
	Subscriptions []Subscription `gorm:"foreignKey:BillingAccountID" json:"subscriptions,omitempty"`
}
