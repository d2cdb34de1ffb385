package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/metrics"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/samber/lo"
)

func validateLinkInput(profileIDs []uint, totalAmount int64) ([]uint, error) {
	ids := lo.Uniq(profileIDs)
	if len(ids) == 0 {
		return nil, invalid("profile_ids", "at least one profile is required")
	}
	if lo.Contains(ids, 0) {
		return nil, invalid("profile_ids", "profile id must be positive")
	}
	if totalAmount < 0 {
		return nil, invalid("total_amount", "total amount must not be negative")
	}
	return ids, nil
}

// LinkSubscriptionToProfiles splits totalAmount across the given profiles and
// creates one active assignment per profile, in one transaction. Profiles that
// already hold an active assignment to the subscription are skipped and the
// split is computed over the rest. It returns the number of assignments created.
func (s *Service) LinkSubscriptionToProfiles(ctx context.Context, subscriptionID uint, profileIDs []uint, totalAmount int64, notes string) (int, error) {
	if _, err := validateLinkInput(profileIDs, totalAmount); err != nil {
		return 0, err
	}

	created := 0
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		n, err := s.LinkSubscriptionToProfilesTx(ctx, tx, subscriptionID, profileIDs, totalAmount, notes)
		created = n
		return err
	})
	if err != nil {
		return 0, err
	}

	metrics.AssignmentsCreated.Add(float64(created))
	fiberlog.Infof("[Billing] Linked subscription %d to %d profile(s)", subscriptionID, created)
	return created, nil
}

// LinkSubscriptionToProfilesTx is LinkSubscriptionToProfiles inside a
// caller-managed transaction.
func (s *Service) LinkSubscriptionToProfilesTx(ctx context.Context, tx Repository, subscriptionID uint, profileIDs []uint, totalAmount int64, notes string) (int, error) {
	ids, err := validateLinkInput(profileIDs, totalAmount)
	if err != nil {
		return 0, err
	}

	if _, err := tx.GetSubscriptionByID(ctx, subscriptionID); err != nil {
		if isRecordNotFound(err) {
			return 0, notFound("subscription", "Subscription not found in database")
		}
		return 0, err
	}

	profiles, err := tx.GetProfiles(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(profiles) != len(ids) {
		found := lo.Map(profiles, func(p models.ProgramProfile, _ int) uint { return p.ID })
		missing, _ := lo.Difference(ids, found)
		return 0, notFound("profile", fmt.Sprintf("Profile %d not found", missing[0]))
	}

	active, err := tx.LockActiveAssignments(ctx, subscriptionID, ids)
	if err != nil {
		return 0, err
	}
	linked := lo.Map(active, func(a models.BillingAssignment, _ int) uint { return a.ProgramProfileID })
	remaining := lo.Without(ids, linked...)
	if len(remaining) == 0 {
		return 0, nil
	}

	shares, err := CalculateSplitAmounts(totalAmount, len(remaining))
	if err != nil {
		return 0, err
	}
	var notesPtr *string
	if n := strings.TrimSpace(notes); n != "" {
		notesPtr = &n
	}

	now := s.now()
	for i, profileID := range remaining {
		assignment := &models.BillingAssignment{
			SubscriptionID:   subscriptionID,
			ProgramProfileID: profileID,
			Amount:           shares[i],
			Percentage:       SplitPercentage(len(remaining)),
			IsActive:         true,
			Notes:            notesPtr,
			StartDate:        now,
		}
		if err := tx.CreateBillingAssignment(ctx, assignment); err != nil {
			return 0, fmt.Errorf("create assignment for profile %d: %w", profileID, err)
		}
	}
	return len(remaining), nil
}

// UnlinkSubscription deactivates every active assignment of a subscription
// and returns how many were deactivated.
func (s *Service) UnlinkSubscription(ctx context.Context, subscriptionID uint) (int, error) {
	deactivated := 0
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.GetSubscriptionByID(ctx, subscriptionID); err != nil {
			if isRecordNotFound(err) {
				return notFound("subscription", "Subscription not found in database")
			}
			return err
		}
		assignments, err := tx.GetBillingAssignmentsBySubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, a := range assignments {
			if !a.IsActive {
				continue
			}
			if err := tx.UpdateBillingAssignmentStatus(ctx, a.ID, false, now); err != nil {
				return fmt.Errorf("deactivate assignment %d: %w", a.ID, err)
			}
			deactivated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.AssignmentsDeactivated.Add(float64(deactivated))
	if deactivated > 0 {
		fiberlog.Infof("[Billing] Unlinked subscription %d: %d assignment(s) deactivated", subscriptionID, deactivated)
	}
	return deactivated, nil
}
