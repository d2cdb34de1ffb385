package models

import "time"

// BillingAssignment attaches one profile's share of a subscription charge.
// Deactivated rows are kept as history.
type BillingAssignment struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	SubscriptionID   uint       `gorm:"not null;index:idx_billing_assignments_sub_profile,priority:1" json:"subscription_id"`
	ProgramProfileID uint       `gorm:"not null;index:idx_billing_assignments_sub_profile,priority:2;index" json:"program_profile_id"`
	Amount           int64      `gorm:"not null" json:"amount"`
	Percentage       *int       `gorm:"default:null" json:"percentage"`
	IsActive         bool       `gorm:"not null;default:true;index" json:"is_active"`
	Notes            *string    `gorm:"type:text" json:"notes,omitempty"`
	StartDate        time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate          *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Subscription *Subscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
}
