package models

import (
	"strings"
	"time"
)

const (
	ContactTypeEmail = "EMAIL"
	ContactTypePhone = "PHONE"
)

// Person is a single human identity. Program participation hangs off it as
// ProgramProfiles.
type Person struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FirstName string    `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName  string    `gorm:"type:varchar(100);not null" json:"last_name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	ContactPoints []ContactPoint   `gorm:"foreignKey:PersonID" json:"contact_points,omitempty"`
	Profiles      []ProgramProfile `gorm:"foreignKey:PersonID" json:"profiles,omitempty"`
}

// TableName pins the table name; gorm would pluralize to "people".
func (Person) TableName() string {
	return "persons"
}

// FullName joins first and last name.
func (p *Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// PrimaryContact returns the first contact point value of the given type.
func (p *Person) PrimaryContact(contactType string) string {
	for _, cp := range p.ContactPoints {
		if cp.Type == contactType && cp.IsPrimary {
			return cp.Value
		}
	}
	for _, cp := range p.ContactPoints {
		if cp.Type == contactType {
			return cp.Value
		}
	}
	return ""
}

// ContactPoint is an email address or phone number owned by a person.
// Email values are stored lower-cased.
type ContactPoint struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PersonID  uint      `gorm:"not null;index" json:"person_id"`
	Type      string    `gorm:"type:varchar(16);not null;index:idx_contact_points_type_value,priority:1" json:"type"`
	Value     string    `gorm:"type:varchar(191);not null;index:idx_contact_points_type_value,priority:2" json:"value"`
	IsPrimary bool      `gorm:"default:false" json:"is_primary"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeEmail lower-cases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
