package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleProfile is returned when a profile changed between read and write.
var ErrStaleProfile = errors.New("profile was modified concurrently")

// SubscriptionStatusUpdate is the single write the synchronizer performs.
type SubscriptionStatusUpdate struct {
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	PaidUntil          *time.Time
}

// ProfileSubscriptionLink is the subscription linkage written onto a profile.
type ProfileSubscriptionLink struct {
	StripeSubscriptionID    string
	StripeCustomerID        string
	SubscriptionStatus      string
	Status                  string
	CurrentPeriodStart      *time.Time
	CurrentPeriodEnd        *time.Time
	PaidUntil               *time.Time
	MonthlyRate             int64
	PreviousSubscriptionIDs []string
}

// Repository provides DB operations used by the billing service. A
// Repository is bound to either the root connection or an open transaction;
// Transaction hands fn a Repository bound to the new transaction so the same
// calls compose inside a caller-managed unit of work.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	GetPersonByEmail(ctx context.Context, email string) (*models.Person, error)
	GetPerson(ctx context.Context, id uint) (*models.Person, error)

	GetBillingAccountByCustomerID(ctx context.Context, accountType, customerID string) (*models.BillingAccount, error)
	GetBillingAccountByPerson(ctx context.Context, personID uint, accountType string) (*models.BillingAccount, error)
	UpsertBillingAccount(ctx context.Context, account *models.BillingAccount) error

	GetSubscriptionByID(ctx context.Context, id uint) (*models.Subscription, error)
	GetSubscriptionByGatewayID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	GetLatestSubscriptionByAccount(ctx context.Context, billingAccountID uint) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, id uint, update SubscriptionStatusUpdate) error
	ListLinkedGatewayIDs(ctx context.Context, accountType, program string) ([]string, error)

	CreateBillingAssignment(ctx context.Context, assignment *models.BillingAssignment) error
	UpdateBillingAssignmentStatus(ctx context.Context, id uint, active bool, at time.Time) error
	GetBillingAssignmentsBySubscription(ctx context.Context, subscriptionID uint) ([]models.BillingAssignment, error)
	GetBillingAssignmentsByProfile(ctx context.Context, profileID uint) ([]models.BillingAssignment, error)
	LockActiveAssignments(ctx context.Context, subscriptionID uint, profileIDs []uint) ([]models.BillingAssignment, error)

	GetProfile(ctx context.Context, id uint) (*models.ProgramProfile, error)
	GetProfiles(ctx context.Context, ids []uint) ([]models.ProgramProfile, error)
	FindProfilesByEmail(ctx context.Context, email, program string) ([]models.ProgramProfile, error)
	FindSiblingProfiles(ctx context.Context, guardianPersonID uint, program string) ([]models.ProgramProfile, error)
	UpdateProfileSubscription(ctx context.Context, profileID, expectedVersion uint, link ProfileSubscriptionLink) error

	GetActiveEnrollment(ctx context.Context, profileID uint) (*models.Enrollment, error)
	UpdateEnrollmentStatus(ctx context.Context, id uint, status, reason string, at time.Time) error

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetPersonByEmail(ctx context.Context, email string) (*models.Person, error) {
	var cp models.ContactPoint
	err := r.db.WithContext(ctx).
		Where("type = ? AND value = ?", models.ContactTypeEmail, models.NormalizeEmail(email)).
		Order("is_primary DESC, id ASC").
		First(&cp).Error
	if err != nil {
		return nil, err
	}
	return r.GetPerson(ctx, cp.PersonID)
}

func (r *gormRepository) GetPerson(ctx context.Context, id uint) (*models.Person, error) {
	var person models.Person
	if err := r.db.WithContext(ctx).Preload("ContactPoints").First(&person, id).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

func (r *gormRepository) GetBillingAccountByCustomerID(ctx context.Context, accountType, customerID string) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.WithContext(ctx).
		Where("account_type = ? AND stripe_customer_id = ?", accountType, customerID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) GetBillingAccountByPerson(ctx context.Context, personID uint, accountType string) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.WithContext(ctx).
		Where("person_id = ? AND account_type = ?", personID, accountType).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) UpsertBillingAccount(ctx context.Context, account *models.BillingAccount) error {
	updates := []string{"updated_at"}
	if account.StripeCustomerID != nil {
		updates = append(updates, "stripe_customer_id")
	}
	if account.PaymentMethodCaptured {
		updates = append(updates, "payment_method_captured", "payment_method_captured_at")
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "person_id"},
			{Name: "account_type"},
		},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(account).Error; err != nil {
		return err
	}

	// Ensure ID and untouched columns are populated after upsert.
	return r.db.WithContext(ctx).
		Where("person_id = ? AND account_type = ?", account.PersonID, account.AccountType).
		First(account).Error
}

func (r *gormRepository) GetSubscriptionByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByGatewayID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetLatestSubscriptionByAccount(ctx context.Context, billingAccountID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("billing_account_id = ?", billingAccountID).
		Order("created_at DESC, id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *gormRepository) UpdateSubscriptionStatus(ctx context.Context, id uint, update SubscriptionStatusUpdate) error {
	updates := map[string]interface{}{
		"status":               update.Status,
		"current_period_start": update.CurrentPeriodStart,
		"current_period_end":   update.CurrentPeriodEnd,
		"paid_until":           update.PaidUntil,
	}
	return r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListLinkedGatewayIDs(ctx context.Context, accountType, program string) ([]string, error) {
	var fromSubscriptions []string
	if err := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("stripe_account_type = ?", accountType).
		Pluck("stripe_subscription_id", &fromSubscriptions).Error; err != nil {
		return nil, err
	}
	var fromProfiles []string
	if err := r.db.WithContext(ctx).Model(&models.ProgramProfile{}).
		Where("program = ? AND stripe_subscription_id IS NOT NULL AND stripe_subscription_id <> ''", program).
		Distinct().
		Pluck("stripe_subscription_id", &fromProfiles).Error; err != nil {
		return nil, err
	}
	return append(fromSubscriptions, fromProfiles...), nil
}

func (r *gormRepository) CreateBillingAssignment(ctx context.Context, assignment *models.BillingAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *gormRepository) UpdateBillingAssignmentStatus(ctx context.Context, id uint, active bool, at time.Time) error {
	updates := map[string]interface{}{"is_active": active}
	if active {
		updates["end_date"] = nil
	} else {
		updates["end_date"] = at
	}
	return r.db.WithContext(ctx).Model(&models.BillingAssignment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetBillingAssignmentsBySubscription(ctx context.Context, subscriptionID uint) ([]models.BillingAssignment, error) {
	var assignments []models.BillingAssignment
	err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Order("id ASC").Find(&assignments).Error
	return assignments, err
}

func (r *gormRepository) GetBillingAssignmentsByProfile(ctx context.Context, profileID uint) ([]models.BillingAssignment, error) {
	var assignments []models.BillingAssignment
	err := r.db.WithContext(ctx).
		Preload("Subscription").
		Where("program_profile_id = ?", profileID).
		Order("id ASC").
		Find(&assignments).Error
	return assignments, err
}

func (r *gormRepository) LockActiveAssignments(ctx context.Context, subscriptionID uint, profileIDs []uint) ([]models.BillingAssignment, error) {
	var assignments []models.BillingAssignment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("subscription_id = ? AND program_profile_id IN ? AND is_active = ?", subscriptionID, profileIDs, true).
		Find(&assignments).Error
	return assignments, err
}

func (r *gormRepository) GetProfile(ctx context.Context, id uint) (*models.ProgramProfile, error) {
	var profile models.ProgramProfile
	if err := r.db.WithContext(ctx).Preload("Person").First(&profile, id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *gormRepository) GetProfiles(ctx context.Context, ids []uint) ([]models.ProgramProfile, error) {
	var profiles []models.ProgramProfile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&profiles).Error
	return profiles, err
}

func (r *gormRepository) FindProfilesByEmail(ctx context.Context, email, program string) ([]models.ProgramProfile, error) {
	var personIDs []uint
	if err := r.db.WithContext(ctx).Model(&models.ContactPoint{}).
		Where("type = ? AND value = ?", models.ContactTypeEmail, models.NormalizeEmail(email)).
		Distinct().
		Pluck("person_id", &personIDs).Error; err != nil {
		return nil, err
	}
	if len(personIDs) == 0 {
		return nil, nil
	}

	query := r.db.WithContext(ctx).
		Preload("Person.ContactPoints").
		Preload("Guardian.ContactPoints").
		Where("program = ?", program)
	if program == models.ProgramDugsi {
		query = query.Where("guardian_person_id IN ? OR person_id IN ?", personIDs, personIDs)
	} else {
		query = query.Where("person_id IN ?", personIDs)
	}

	var profiles []models.ProgramProfile
	err := query.Order("id ASC").Find(&profiles).Error
	return profiles, err
}

func (r *gormRepository) FindSiblingProfiles(ctx context.Context, guardianPersonID uint, program string) ([]models.ProgramProfile, error) {
	var profiles []models.ProgramProfile
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("guardian_person_id = ? AND program = ?", guardianPersonID, program).
		Order("id ASC").
		Find(&profiles).Error
	return profiles, err
}

func (r *gormRepository) UpdateProfileSubscription(ctx context.Context, profileID, expectedVersion uint, link ProfileSubscriptionLink) error {
	history, err := json.Marshal(link.PreviousSubscriptionIDs)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"stripe_subscription_id":    link.StripeSubscriptionID,
		"stripe_customer_id":        link.StripeCustomerID,
		"subscription_status":       link.SubscriptionStatus,
		"status":                    link.Status,
		"current_period_start":      link.CurrentPeriodStart,
		"current_period_end":        link.CurrentPeriodEnd,
		"paid_until":                link.PaidUntil,
		"monthly_rate":              link.MonthlyRate,
		"previous_subscription_ids": string(history),
		"version":                   gorm.Expr("version + 1"),
	}
	res := r.db.WithContext(ctx).Model(&models.ProgramProfile{}).
		Where("id = ? AND version = ?", profileID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleProfile
	}
	return nil
}

func (r *gormRepository) GetActiveEnrollment(ctx context.Context, profileID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Where("program_profile_id = ? AND status IN ? AND end_date IS NULL", profileID,
			[]string{models.EnrollmentStatusEnrolled, models.EnrollmentStatusRegistered}).
		Order("start_date DESC, id DESC").
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *gormRepository) UpdateEnrollmentStatus(ctx context.Context, id uint, status, reason string, at time.Time) error {
	updates := map[string]interface{}{"status": status}
	if reason != "" {
		updates["reason"] = reason
	}
	if status == models.EnrollmentStatusWithdrawn || status == models.EnrollmentStatusCompleted {
		updates["end_date"] = at
	}
	return r.db.WithContext(ctx).Model(&models.Enrollment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
