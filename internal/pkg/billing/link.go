package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/metrics"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/samber/lo"
)

const orphanLinkNote = "Linked from orphaned subscription"

// LinkSubscriptionToStudent confirms an orphan match. In MAHAD the profile
// is linked on its own and receives the single billing assignment; in DUGSI
// every sibling sharing the profile's guardian is pointed at the same
// subscription in one transaction.
func (s *Service) LinkSubscriptionToStudent(ctx context.Context, stripeSubscriptionID string, profileID uint, program string) ActionResult {
	linked, err := s.linkSubscriptionToStudent(ctx, strings.TrimSpace(stripeSubscriptionID), profileID, program)
	if err != nil {
		fiberlog.Warnf("[Reconcile] Linking %s to profile %d failed: %v", stripeSubscriptionID, profileID, err)
		return ResultFromError(err)
	}
	s.invalidateOrphanReport(ctx)
	fiberlog.Infof("[Reconcile] Linked %s to %d %s profile(s)", stripeSubscriptionID, linked, program)
	return ActionResult{Success: true}
}

func (s *Service) linkSubscriptionToStudent(ctx context.Context, stripeSubscriptionID string, profileID uint, program string) (int, error) {
	if err := validateSubscriptionID(stripeSubscriptionID); err != nil {
		return 0, err
	}
	if profileID == 0 {
		return 0, invalid("profile_id", "profile id is required")
	}
	accountType, err := gateway.ForProgram(program)
	if err != nil {
		return 0, invalid("program", err.Error())
	}

	profile, err := s.repo.GetProfile(ctx, profileID)
	if err != nil {
		if isRecordNotFound(err) {
			return 0, notFound("profile", "Profile not found")
		}
		return 0, err
	}
	if profile.Program != program {
		return 0, invalid("program", fmt.Sprintf("Profile belongs to %s, not %s", profile.Program, program))
	}

	gw, err := s.gateway(accountType)
	if err != nil {
		return 0, err
	}
	done := observe("retrieve_subscription")
	remote, err := gw.RetrieveSubscription(ctx, stripeSubscriptionID)
	done()
	if err != nil {
		return 0, err
	}
	customerID, ok := ExtractCustomerID(remote)
	if !ok {
		return 0, invalid("subscription_id", "Subscription has no customer")
	}

	linked := 0
	assignments := 0
	ended := 0
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		account, err := s.resolveCustomerAccount(ctx, tx, profile.BillingPersonID(), accountType, customerID)
		if err != nil {
			return err
		}
		local, err := s.ensureLocalSubscription(ctx, tx, account, accountType, remote)
		if err != nil {
			return err
		}

		if program == models.ProgramDugsi {
			linked, err = s.linkFamily(ctx, tx, profile, remote, customerID)
			return err
		}

		current, err := tx.GetProfile(ctx, profile.ID)
		if err != nil {
			return err
		}
		if err := s.writeProfileLink(ctx, tx, current, remote, customerID, remote.Amount()); err != nil {
			return err
		}
		linked = 1
		if ended, err = s.endOtherAssignments(ctx, tx, profile.ID, local.ID); err != nil {
			return err
		}
		assignments, err = s.LinkSubscriptionToProfilesTx(ctx, tx, local.ID, []uint{profile.ID}, remote.Amount(), orphanLinkNote)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.AssignmentsCreated.Add(float64(assignments))
	metrics.AssignmentsDeactivated.Add(float64(ended))
	return linked, nil
}

// endOtherAssignments deactivates the profile's active assignments on any
// subscription other than keepSubscriptionID, so a relinked profile is
// billed by exactly one subscription.
func (s *Service) endOtherAssignments(ctx context.Context, tx Repository, profileID, keepSubscriptionID uint) (int, error) {
	existing, err := tx.GetBillingAssignmentsByProfile(ctx, profileID)
	if err != nil {
		return 0, err
	}
	ended := 0
	for _, a := range existing {
		if !a.IsActive || a.SubscriptionID == keepSubscriptionID {
			continue
		}
		if err := tx.UpdateBillingAssignmentStatus(ctx, a.ID, false, s.now()); err != nil {
			return ended, fmt.Errorf("end assignment %d: %w", a.ID, err)
		}
		fiberlog.Infof("[Billing] Ended assignment %d of profile %d on subscription %d", a.ID, profileID, a.SubscriptionID)
		ended++
	}
	return ended, nil
}

// linkFamily points every sibling under the profile's guardian at the
// subscription. Family billing is one bill for all, so no split is made.
func (s *Service) linkFamily(ctx context.Context, tx Repository, profile *models.ProgramProfile, remote *gateway.Subscription, customerID string) (int, error) {
	siblings := []models.ProgramProfile{*profile}
	if profile.GuardianPersonID != nil {
		found, err := tx.FindSiblingProfiles(ctx, *profile.GuardianPersonID, models.ProgramDugsi)
		if err != nil {
			return 0, err
		}
		if len(found) > 0 {
			siblings = found
		}
	}
	for i := range siblings {
		if err := s.writeProfileLink(ctx, tx, &siblings[i], remote, customerID, siblings[i].MonthlyRate); err != nil {
			return 0, fmt.Errorf("link sibling %d: %w", siblings[i].ID, err)
		}
	}
	return len(siblings), nil
}

// writeProfileLink writes the subscription linkage onto a profile, pushing
// the previously linked subscription id onto its history. The write is
// conditional on the profile version read by the caller.
func (s *Service) writeProfileLink(ctx context.Context, tx Repository, profile *models.ProgramProfile, remote *gateway.Subscription, customerID string, rate int64) error {
	status := normalizeStatus(remote.Status)
	period := ExtractPeriod(remote)

	history := append([]string{}, profile.PreviousSubscriptionIDs...)
	if prev := lo.FromPtr(profile.StripeSubscriptionID); prev != "" && prev != remote.ID && !lo.Contains(history, prev) {
		history = append(history, prev)
	}
	paidUntil := profile.PaidUntil
	if isBillingStatus(status) && period.End != nil {
		paidUntil = period.End
	}

	link := ProfileSubscriptionLink{
		StripeSubscriptionID:    remote.ID,
		StripeCustomerID:        customerID,
		SubscriptionStatus:      status,
		Status:                  profileStatusFor(status),
		CurrentPeriodStart:      period.Start,
		CurrentPeriodEnd:        period.End,
		PaidUntil:               paidUntil,
		MonthlyRate:             rate,
		PreviousSubscriptionIDs: history,
	}
	err := tx.UpdateProfileSubscription(ctx, profile.ID, profile.Version, link)
	if errors.Is(err, ErrStaleProfile) {
		return &ConflictError{Message: "Profile was modified by another operation, please retry"}
	}
	return err
}

// resolveCustomerAccount returns the billing account that owns customerID on
// the account type. One payer covering several students owns a single
// account; only an unseen customer is written onto the person's own row.
func (s *Service) resolveCustomerAccount(ctx context.Context, tx Repository, personID uint, accountType gateway.AccountType, customerID string) (*models.BillingAccount, error) {
	existing, err := tx.GetBillingAccountByCustomerID(ctx, string(accountType), customerID)
	if err == nil {
		return existing, nil
	}
	if !isRecordNotFound(err) {
		return nil, err
	}

	account := &models.BillingAccount{
		PersonID:         personID,
		AccountType:      string(accountType),
		StripeCustomerID: lo.ToPtr(customerID),
	}
	if err := tx.UpsertBillingAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("upsert billing account: %w", err)
	}
	return account, nil
}

// ensureLocalSubscription returns the local mirror of remote, creating it on
// first link.
func (s *Service) ensureLocalSubscription(ctx context.Context, tx Repository, account *models.BillingAccount, accountType gateway.AccountType, remote *gateway.Subscription) (*models.Subscription, error) {
	existing, err := tx.GetSubscriptionByGatewayID(ctx, remote.ID)
	if err == nil {
		return existing, nil
	}
	if !isRecordNotFound(err) {
		return nil, err
	}

	status := normalizeStatus(remote.Status)
	period := ExtractPeriod(remote)
	currency := strings.ToLower(remote.Currency)
	if currency == "" {
		currency = "usd"
	}
	sub := &models.Subscription{
		BillingAccountID:     account.ID,
		StripeSubscriptionID: remote.ID,
		StripeAccountType:    string(accountType),
		Status:               status,
		Amount:               remote.Amount(),
		Currency:             currency,
		Interval:             normalizeInterval(remote.Interval()),
		CurrentPeriodStart:   period.Start,
		CurrentPeriodEnd:     period.End,
	}
	if isBillingStatus(status) {
		sub.PaidUntil = period.End
	}
	if err := tx.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription %s: %w", remote.ID, err)
	}
	return sub, nil
}
