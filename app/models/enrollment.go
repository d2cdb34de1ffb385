package models

import "time"

const (
	EnrollmentStatusRegistered = "REGISTERED"
	EnrollmentStatusEnrolled   = "ENROLLED"
	EnrollmentStatusOnLeave    = "ON_LEAVE"
	EnrollmentStatusWithdrawn  = "WITHDRAWN"
	EnrollmentStatusCompleted  = "COMPLETED"
)

// Enrollment is a time-boxed attendance of a profile, optionally in a batch.
type Enrollment struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ProgramProfileID uint       `gorm:"not null;index" json:"program_profile_id"`
	BatchID          *uint      `gorm:"index" json:"batch_id,omitempty"`
	Status           string     `gorm:"type:varchar(32);not null;default:'REGISTERED';index" json:"status"`
	StartDate        time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate          *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	Reason           *string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActiveEnrollment reports whether the status still counts as attending.
func IsActiveEnrollment(status string) bool {
	switch status {
	case EnrollmentStatusRegistered, EnrollmentStatusEnrolled:
		return true
	default:
		return false
	}
}
