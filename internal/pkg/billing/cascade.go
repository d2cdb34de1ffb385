package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/metrics"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// DefaultCancellationReason is recorded on enrollments withdrawn by a cascade.
const DefaultCancellationReason = "Subscription canceled"

// HandleSubscriptionCancellationEnrollments withdraws the active enrollment
// of every profile actively assigned to the subscription. Each profile is
// processed on its own: a failure is recorded in the result and the
// remaining profiles are still processed. Profiles without an active
// enrollment and inactive assignments are skipped.
func (s *Service) HandleSubscriptionCancellationEnrollments(ctx context.Context, subscriptionID uint, reason string) (*CascadeResult, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultCancellationReason
	}
	assignments, err := s.repo.GetBillingAssignmentsBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load assignments for subscription %d: %w", subscriptionID, err)
	}

	result := &CascadeResult{Errors: []CascadeError{}}
	for _, a := range assignments {
		if !a.IsActive {
			continue
		}
		withdrawn, err := s.withdrawActiveEnrollment(ctx, a.ProgramProfileID, reason)
		if err != nil {
			fiberlog.Warnf("[Billing] Cascade withdrawal failed for profile %d: %v", a.ProgramProfileID, err)
			metrics.CascadeWithdrawals.WithLabelValues("error").Inc()
			result.Errors = append(result.Errors, CascadeError{ProfileID: a.ProgramProfileID, Error: err.Error()})
			continue
		}
		if withdrawn {
			metrics.CascadeWithdrawals.WithLabelValues("withdrawn").Inc()
			result.Withdrawn++
		}
	}

	fiberlog.Infof("[Billing] Cancellation cascade for subscription %d: %d withdrawn, %d error(s)",
		subscriptionID, result.Withdrawn, len(result.Errors))
	return result, nil
}

func (s *Service) withdrawActiveEnrollment(ctx context.Context, profileID uint, reason string) (bool, error) {
	enrollment, err := s.repo.GetActiveEnrollment(ctx, profileID)
	if err != nil {
		if isRecordNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := s.repo.UpdateEnrollmentStatus(ctx, enrollment.ID, models.EnrollmentStatusWithdrawn, reason, s.now()); err != nil {
		return false, err
	}
	return true, nil
}

// finishSubscription runs the cancellation cascade and, when every
// withdrawal succeeded, deactivates the subscription's assignments. With
// failures the assignments stay active so a retry reaches the same profiles.
func (s *Service) finishSubscription(ctx context.Context, subscriptionID uint, reason string) (*CascadeResult, error) {
	result, err := s.HandleSubscriptionCancellationEnrollments(ctx, subscriptionID, reason)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return result, nil
	}
	if _, err := s.UnlinkSubscription(ctx, subscriptionID); err != nil {
		return result, err
	}
	return result, nil
}
