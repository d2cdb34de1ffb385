package billing

import (
	"context"
	"strings"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/samber/lo"
)

// minDiscountMembers is the number of enrolled, billed siblings a family
// needs before the sibling discount applies.
const minDiscountMembers = 2

// GetBillingStatusByEmail reports the billing state of the person owning
// email on one gateway account. Only an unknown email is an error; missing
// accounts or subscriptions yield an empty status.
func (s *Service) GetBillingStatusByEmail(ctx context.Context, email string, accountType gateway.AccountType) (*BillingStatus, error) {
	normalized := models.NormalizeEmail(email)
	if normalized == "" {
		return nil, invalid("email", "email is required")
	}
	if accountType == "" {
		return nil, invalid("account_type", "account type is required")
	}

	person, err := s.repo.GetPersonByEmail(ctx, normalized)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("person", "Person not found")
		}
		return nil, err
	}

	status := &BillingStatus{}
	account, err := s.repo.GetBillingAccountByPerson(ctx, person.ID, string(accountType))
	if err != nil {
		if isRecordNotFound(err) {
			return status, nil
		}
		return nil, err
	}
	status.HasPaymentMethod = account.PaymentMethodCaptured
	status.StripeCustomerID = account.StripeCustomerID

	sub, err := s.repo.GetLatestSubscriptionByAccount(ctx, account.ID)
	if err != nil {
		if isRecordNotFound(err) {
			return status, nil
		}
		return nil, err
	}
	subStatus := sub.Status
	status.SubscriptionStatus = &subStatus
	status.HasActiveSubscription = isBillingStatus(sub.Status)
	status.PaidUntil = sub.PaidUntil
	return status, nil
}

// GetBillingStatusForProfiles reports, per profile, whether it holds an
// active assignment and the summed amount of its active assignments.
func (s *Service) GetBillingStatusForProfiles(ctx context.Context, profileIDs []uint) ([]ProfileBillingStatus, error) {
	ids := lo.Uniq(profileIDs)
	out := make([]ProfileBillingStatus, 0, len(ids))
	for _, id := range ids {
		assignments, err := s.repo.GetBillingAssignmentsByProfile(ctx, id)
		if err != nil {
			return nil, err
		}
		active := lo.Filter(assignments, func(a models.BillingAssignment, _ int) bool { return a.IsActive })
		st := ProfileBillingStatus{ProfileID: id}
		if len(active) > 0 {
			amount := lo.SumBy(active, func(a models.BillingAssignment) int64 { return a.Amount })
			st.HasSubscription = true
			st.Amount = &amount
		}
		out = append(out, st)
	}
	return out, nil
}

// SiblingDiscountEligible applies the sibling discount rule: at least two
// members that are enrolled and billed.
func SiblingDiscountEligible(members []SiblingMember) DiscountEligibility {
	qualifying := lo.CountBy(members, func(m SiblingMember) bool {
		return m.HasSubscription && strings.EqualFold(m.Status, models.ProfileStatusEnrolled)
	})
	return DiscountEligibility{
		Eligible:          qualifying >= minDiscountMembers,
		QualifyingMembers: qualifying,
	}
}

// GetSiblingDiscountEligibility loads the given sibling profiles and applies
// SiblingDiscountEligible.
func (s *Service) GetSiblingDiscountEligibility(ctx context.Context, profileIDs []uint) (*DiscountEligibility, error) {
	ids := lo.Uniq(profileIDs)
	if len(ids) == 0 {
		return nil, invalid("profile_ids", "at least one profile is required")
	}
	profiles, err := s.repo.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	statuses, err := s.GetBillingStatusForProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	billed := lo.SliceToMap(statuses, func(st ProfileBillingStatus) (uint, bool) {
		return st.ProfileID, st.HasSubscription
	})

	members := lo.Map(profiles, func(p models.ProgramProfile, _ int) SiblingMember {
		return SiblingMember{ProfileID: p.ID, Status: p.Status, HasSubscription: billed[p.ID]}
	})
	result := SiblingDiscountEligible(members)
	return &result, nil
}
