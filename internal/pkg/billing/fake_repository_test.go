package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"gorm.io/gorm"
)

// memState is the data held by fakeRepository. It is copied wholesale to
// give Transaction rollback semantics.
type memState struct {
	nextID        uint
	persons       map[uint]models.Person
	accounts      map[uint]models.BillingAccount
	subscriptions map[uint]models.Subscription
	assignments   map[uint]models.BillingAssignment
	profiles      map[uint]models.ProgramProfile
	enrollments   map[uint]models.Enrollment
	events        map[uint]models.BillingWebhookEvent
}

func newMemState() *memState {
	return &memState{
		persons:       map[uint]models.Person{},
		accounts:      map[uint]models.BillingAccount{},
		subscriptions: map[uint]models.Subscription{},
		assignments:   map[uint]models.BillingAssignment{},
		profiles:      map[uint]models.ProgramProfile{},
		enrollments:   map[uint]models.Enrollment{},
		events:        map[uint]models.BillingWebhookEvent{},
	}
}

func cloneMap[K comparable, V any](in map[K]V, cp func(V) V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = cp(v)
	}
	return out
}

func same[V any](v V) V { return v }

func (m *memState) clone() *memState {
	return &memState{
		nextID: m.nextID,
		persons: cloneMap(m.persons, func(p models.Person) models.Person {
			p.ContactPoints = append([]models.ContactPoint(nil), p.ContactPoints...)
			return p
		}),
		accounts:      cloneMap(m.accounts, same[models.BillingAccount]),
		subscriptions: cloneMap(m.subscriptions, same[models.Subscription]),
		assignments:   cloneMap(m.assignments, same[models.BillingAssignment]),
		profiles: cloneMap(m.profiles, func(p models.ProgramProfile) models.ProgramProfile {
			p.PreviousSubscriptionIDs = append([]string(nil), p.PreviousSubscriptionIDs...)
			return p
		}),
		enrollments: cloneMap(m.enrollments, same[models.Enrollment]),
		events:      cloneMap(m.events, same[models.BillingWebhookEvent]),
	}
}

func (m *memState) id() uint {
	m.nextID++
	return m.nextID
}

func sortedKeys[V any](in map[uint]V) []uint {
	keys := make([]uint, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// fakeRepository is an in-memory Repository.
type fakeRepository struct {
	mu    *sync.Mutex
	state **memState

	// Writes counts mutating calls by method name.
	writes map[string]int
	// enrollmentUpdateErr fails UpdateEnrollmentStatus for an enrollment id.
	enrollmentUpdateErr map[uint]error
	// staleProfiles makes UpdateProfileSubscription report a version conflict.
	staleProfiles map[uint]bool
}

func newFakeRepository() *fakeRepository {
	st := newMemState()
	return &fakeRepository{
		mu:                  &sync.Mutex{},
		state:               &st,
		writes:              map[string]int{},
		enrollmentUpdateErr: map[uint]error{},
		staleProfiles:       map[uint]bool{},
	}
}

func (r *fakeRepository) s() *memState { return *r.state }

func (r *fakeRepository) write(name string) { r.writes[name]++ }

// Seed helpers.

func (r *fakeRepository) addPerson(first, last string, contacts ...models.ContactPoint) models.Person {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := models.Person{ID: r.s().id(), FirstName: first, LastName: last}
	for _, cp := range contacts {
		cp.ID = r.s().id()
		cp.PersonID = p.ID
		p.ContactPoints = append(p.ContactPoints, cp)
	}
	r.s().persons[p.ID] = p
	return p
}

func (r *fakeRepository) addProfile(p models.ProgramProfile) models.ProgramProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.s().id()
	if p.Status == "" {
		p.Status = models.ProfileStatusRegistered
	}
	r.s().profiles[p.ID] = p
	return p
}

func (r *fakeRepository) addSubscription(sub models.Subscription) models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.ID = r.s().id()
	r.s().subscriptions[sub.ID] = sub
	return sub
}

func (r *fakeRepository) addAccount(a models.BillingAccount) models.BillingAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.s().id()
	r.s().accounts[a.ID] = a
	return a
}

func (r *fakeRepository) addAssignment(a models.BillingAssignment) models.BillingAssignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.s().id()
	r.s().assignments[a.ID] = a
	return a
}

func (r *fakeRepository) addEnrollment(e models.Enrollment) models.Enrollment {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.s().id()
	r.s().enrollments[e.ID] = e
	return e
}

func (r *fakeRepository) profile(id uint) models.ProgramProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s().profiles[id]
}

func (r *fakeRepository) enrollment(id uint) models.Enrollment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s().enrollments[id]
}

func (r *fakeRepository) subscription(id uint) models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s().subscriptions[id]
}

func (r *fakeRepository) activeAssignments(subscriptionID uint) []models.BillingAssignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BillingAssignment
	for _, id := range sortedKeys(r.s().assignments) {
		a := r.s().assignments[id]
		if a.SubscriptionID == subscriptionID && a.IsActive {
			out = append(out, a)
		}
	}
	return out
}

func (r *fakeRepository) accountsFor(personID uint) []models.BillingAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BillingAccount
	for _, id := range sortedKeys(r.s().accounts) {
		if a := r.s().accounts[id]; a.PersonID == personID {
			out = append(out, a)
		}
	}
	return out
}

// Repository implementation.

func (r *fakeRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	r.mu.Lock()
	snapshot := r.s().clone()
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		*r.state = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeRepository) personByEmailLocked(email string) (*models.Person, bool) {
	for _, id := range sortedKeys(r.s().persons) {
		p := r.s().persons[id]
		for _, cp := range p.ContactPoints {
			if cp.Type == models.ContactTypeEmail && cp.Value == models.NormalizeEmail(email) {
				return &p, true
			}
		}
	}
	return nil, false
}

func (r *fakeRepository) GetPersonByEmail(_ context.Context, email string) (*models.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.personByEmailLocked(email)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *fakeRepository) GetPerson(_ context.Context, id uint) (*models.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.s().persons[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *fakeRepository) GetBillingAccountByCustomerID(_ context.Context, accountType, customerID string) (*models.BillingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.s().accounts) {
		a := r.s().accounts[id]
		if a.AccountType == accountType && a.StripeCustomerID != nil && *a.StripeCustomerID == customerID {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetBillingAccountByPerson(_ context.Context, personID uint, accountType string) (*models.BillingAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.s().accounts) {
		a := r.s().accounts[id]
		if a.PersonID == personID && a.AccountType == accountType {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) UpsertBillingAccount(_ context.Context, account *models.BillingAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("UpsertBillingAccount")
	for _, id := range sortedKeys(r.s().accounts) {
		a := r.s().accounts[id]
		if a.PersonID != account.PersonID || a.AccountType != account.AccountType {
			continue
		}
		if r.customerTaken(id, account) {
			return errDuplicateCustomer
		}
		if account.StripeCustomerID != nil {
			a.StripeCustomerID = account.StripeCustomerID
		}
		if account.PaymentMethodCaptured {
			a.PaymentMethodCaptured = true
			a.PaymentMethodCapturedAt = account.PaymentMethodCapturedAt
		}
		r.s().accounts[id] = a
		*account = a
		return nil
	}
	if r.customerTaken(0, account) {
		return errDuplicateCustomer
	}
	account.ID = r.s().id()
	r.s().accounts[account.ID] = *account
	return nil
}

// errDuplicateCustomer mirrors the ux_billing_accounts_type_customer index.
var errDuplicateCustomer = errors.New("duplicate key ux_billing_accounts_type_customer")

func (r *fakeRepository) customerTaken(selfID uint, account *models.BillingAccount) bool {
	if account.StripeCustomerID == nil {
		return false
	}
	for id, a := range r.s().accounts {
		if id != selfID && a.AccountType == account.AccountType &&
			a.StripeCustomerID != nil && *a.StripeCustomerID == *account.StripeCustomerID {
			return true
		}
	}
	return false
}

func (r *fakeRepository) GetSubscriptionByID(_ context.Context, id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.s().subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &sub, nil
}

func (r *fakeRepository) GetSubscriptionByGatewayID(_ context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.s().subscriptions) {
		if sub := r.s().subscriptions[id]; sub.StripeSubscriptionID == stripeSubscriptionID {
			return &sub, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetLatestSubscriptionByAccount(_ context.Context, billingAccountID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := sortedKeys(r.s().subscriptions)
	for i := len(keys) - 1; i >= 0; i-- {
		if sub := r.s().subscriptions[keys[i]]; sub.BillingAccountID == billingAccountID {
			return &sub, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("CreateSubscription")
	for _, existing := range r.s().subscriptions {
		if existing.StripeSubscriptionID == sub.StripeSubscriptionID {
			return errors.New("duplicate stripe_subscription_id")
		}
	}
	sub.ID = r.s().id()
	r.s().subscriptions[sub.ID] = *sub
	return nil
}

func (r *fakeRepository) UpdateSubscriptionStatus(_ context.Context, id uint, update SubscriptionStatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("UpdateSubscriptionStatus")
	sub, ok := r.s().subscriptions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	sub.Status = update.Status
	sub.CurrentPeriodStart = update.CurrentPeriodStart
	sub.CurrentPeriodEnd = update.CurrentPeriodEnd
	sub.PaidUntil = update.PaidUntil
	r.s().subscriptions[id] = sub
	return nil
}

func (r *fakeRepository) ListLinkedGatewayIDs(_ context.Context, accountType, program string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, sub := range r.s().subscriptions {
		if sub.StripeAccountType == accountType {
			ids = append(ids, sub.StripeSubscriptionID)
		}
	}
	for _, p := range r.s().profiles {
		if p.Program == program && p.StripeSubscriptionID != nil && *p.StripeSubscriptionID != "" {
			ids = append(ids, *p.StripeSubscriptionID)
		}
	}
	return ids, nil
}

func (r *fakeRepository) CreateBillingAssignment(_ context.Context, assignment *models.BillingAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("CreateBillingAssignment")
	assignment.ID = r.s().id()
	r.s().assignments[assignment.ID] = *assignment
	return nil
}

func (r *fakeRepository) UpdateBillingAssignmentStatus(_ context.Context, id uint, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("UpdateBillingAssignmentStatus")
	a, ok := r.s().assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.IsActive = active
	if active {
		a.EndDate = nil
	} else {
		a.EndDate = &at
	}
	r.s().assignments[id] = a
	return nil
}

func (r *fakeRepository) GetBillingAssignmentsBySubscription(_ context.Context, subscriptionID uint) ([]models.BillingAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BillingAssignment
	for _, id := range sortedKeys(r.s().assignments) {
		if a := r.s().assignments[id]; a.SubscriptionID == subscriptionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepository) GetBillingAssignmentsByProfile(_ context.Context, profileID uint) ([]models.BillingAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BillingAssignment
	for _, id := range sortedKeys(r.s().assignments) {
		if a := r.s().assignments[id]; a.ProgramProfileID == profileID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepository) LockActiveAssignments(_ context.Context, subscriptionID uint, profileIDs []uint) ([]models.BillingAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[uint]bool{}
	for _, id := range profileIDs {
		wanted[id] = true
	}
	var out []models.BillingAssignment
	for _, id := range sortedKeys(r.s().assignments) {
		a := r.s().assignments[id]
		if a.SubscriptionID == subscriptionID && a.IsActive && wanted[a.ProgramProfileID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepository) withPeopleLocked(p models.ProgramProfile) models.ProgramProfile {
	if person, ok := r.s().persons[p.PersonID]; ok {
		p.Person = &person
	}
	if p.GuardianPersonID != nil {
		if guardian, ok := r.s().persons[*p.GuardianPersonID]; ok {
			p.Guardian = &guardian
		}
	}
	return p
}

func (r *fakeRepository) GetProfile(_ context.Context, id uint) (*models.ProgramProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.s().profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	p = r.withPeopleLocked(p)
	return &p, nil
}

func (r *fakeRepository) GetProfiles(_ context.Context, ids []uint) ([]models.ProgramProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := map[uint]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.ProgramProfile
	for _, id := range sortedKeys(r.s().profiles) {
		if wanted[id] {
			out = append(out, r.s().profiles[id])
		}
	}
	return out, nil
}

func (r *fakeRepository) FindProfilesByEmail(_ context.Context, email, program string) ([]models.ProgramProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	personIDs := map[uint]bool{}
	for _, p := range r.s().persons {
		for _, cp := range p.ContactPoints {
			if cp.Type == models.ContactTypeEmail && cp.Value == models.NormalizeEmail(email) {
				personIDs[p.ID] = true
			}
		}
	}
	var out []models.ProgramProfile
	for _, id := range sortedKeys(r.s().profiles) {
		p := r.s().profiles[id]
		if p.Program != program {
			continue
		}
		match := personIDs[p.PersonID]
		if program == models.ProgramDugsi && p.GuardianPersonID != nil && personIDs[*p.GuardianPersonID] {
			match = true
		}
		if match {
			out = append(out, r.withPeopleLocked(p))
		}
	}
	return out, nil
}

func (r *fakeRepository) FindSiblingProfiles(_ context.Context, guardianPersonID uint, program string) ([]models.ProgramProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ProgramProfile
	for _, id := range sortedKeys(r.s().profiles) {
		p := r.s().profiles[id]
		if p.Program == program && p.GuardianPersonID != nil && *p.GuardianPersonID == guardianPersonID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepository) UpdateProfileSubscription(_ context.Context, profileID, expectedVersion uint, link ProfileSubscriptionLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("UpdateProfileSubscription")
	p, ok := r.s().profiles[profileID]
	if !ok || p.Version != expectedVersion || r.staleProfiles[profileID] {
		return ErrStaleProfile
	}
	subID, custID, subStatus := link.StripeSubscriptionID, link.StripeCustomerID, link.SubscriptionStatus
	p.StripeSubscriptionID = &subID
	p.StripeCustomerID = &custID
	p.SubscriptionStatus = &subStatus
	p.Status = link.Status
	p.CurrentPeriodStart = link.CurrentPeriodStart
	p.CurrentPeriodEnd = link.CurrentPeriodEnd
	p.PaidUntil = link.PaidUntil
	p.MonthlyRate = link.MonthlyRate
	p.PreviousSubscriptionIDs = append([]string(nil), link.PreviousSubscriptionIDs...)
	p.Version++
	r.s().profiles[profileID] = p
	return nil
}

func (r *fakeRepository) GetActiveEnrollment(_ context.Context, profileID uint) (*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := sortedKeys(r.s().enrollments)
	for i := len(keys) - 1; i >= 0; i-- {
		e := r.s().enrollments[keys[i]]
		if e.ProgramProfileID == profileID && models.IsActiveEnrollment(e.Status) && e.EndDate == nil {
			return &e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) UpdateEnrollmentStatus(_ context.Context, id uint, status, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write("UpdateEnrollmentStatus")
	if err := r.enrollmentUpdateErr[id]; err != nil {
		return err
	}
	e, ok := r.s().enrollments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Status = status
	if reason != "" {
		e.Reason = &reason
	}
	if status == models.EnrollmentStatusWithdrawn || status == models.EnrollmentStatusCompleted {
		e.EndDate = &at
	}
	r.s().enrollments[id] = e
	return nil
}

func (r *fakeRepository) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.s().events) {
		e := r.s().events[id]
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			return false, &e, nil
		}
	}
	event.ID = r.s().id()
	r.s().events[event.ID] = *event
	stored := *event
	return true, &stored, nil
}

func (r *fakeRepository) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.s().events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	r.s().events[id] = e
	return nil
}

var _ Repository = (*fakeRepository)(nil)
