package models

import "time"

// Programs. MAHAD bills each student on their own subscription, DUGSI bills
// a whole family on the guardian's subscription.
const (
	ProgramMahad = "MAHAD"
	ProgramDugsi = "DUGSI"
)

// Profile statuses.
const (
	ProfileStatusRegistered = "registered"
	ProfileStatusEnrolled   = "enrolled"
	ProfileStatusOnLeave    = "on_leave"
	ProfileStatusWithdrawn  = "withdrawn"
)

// ProgramProfile is a person's participation record in one program. The
// subscription linkage columns are written by the orphan link flow; Version
// guards that read-then-write against concurrent admins.
type ProgramProfile struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	PersonID                uint       `gorm:"not null;index" json:"person_id"`
	Program                 string     `gorm:"type:varchar(16);not null;index" json:"program"`
	Status                  string     `gorm:"type:varchar(32);not null;default:'registered';index" json:"status"`
	GuardianPersonID        *uint      `gorm:"index" json:"guardian_person_id,omitempty"`
	MonthlyRate             int64      `gorm:"not null;default:0" json:"monthly_rate"`
	StripeSubscriptionID    *string    `gorm:"type:varchar(191);index" json:"stripe_subscription_id,omitempty"`
	StripeCustomerID        *string    `gorm:"type:varchar(191);index" json:"stripe_customer_id,omitempty"`
	SubscriptionStatus      *string    `gorm:"type:varchar(32)" json:"subscription_status,omitempty"`
	PaidUntil               *time.Time `gorm:"type:timestamp;default:null" json:"paid_until,omitempty"`
	CurrentPeriodStart      *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd        *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	PreviousSubscriptionIDs []string   `gorm:"serializer:json;type:text" json:"previous_subscription_ids"`
	Version                 uint       `gorm:"not null;default:0" json:"version"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Person      *Person      `gorm:"foreignKey:PersonID" json:"person,omitempty"`
	Guardian    *Person      `gorm:"foreignKey:GuardianPersonID" json:"guardian,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:ProgramProfileID" json:"enrollments,omitempty"`
}

// BillingPersonID is the person whose contact points and billing account pay
// for this profile: the guardian in family programs, the student otherwise.
func (p *ProgramProfile) BillingPersonID() uint {
	if p.Program == ProgramDugsi && p.GuardianPersonID != nil {
		return *p.GuardianPersonID
	}
	return p.PersonID
}
