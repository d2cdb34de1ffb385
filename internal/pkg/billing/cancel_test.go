package billing

import (
	"context"
	"testing"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelSubscription_RequiresAccountType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CancelSubscription(context.Background(), "sub_1", "")
	assert.True(t, IsConflict(err))
	assert.Empty(t, env.mahad.Cancels)
}

func TestCancelSubscription_AlreadyCanceled(t *testing.T) {
	env := newTestEnv(t)
	env.repo.addSubscription(models.Subscription{StripeSubscriptionID: "sub_1", Status: "canceled"})
	_, err := env.svc.CancelSubscription(context.Background(), "sub_1", gateway.AccountMahad)
	assert.True(t, IsConflict(err))
	assert.Empty(t, env.mahad.Cancels)
}

func TestCancelSubscription_CascadesAndUnlinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub, ids := seedSubscriptionWithProfiles(env, 2)
	env.mahad.PutSubscription(remoteSubscription(sub.StripeSubscriptionID, "active", "cus_1", 1000))
	_, err := env.svc.LinkSubscriptionToProfiles(ctx, sub.ID, ids, 1000, "")
	require.NoError(t, err)
	e1 := env.repo.addEnrollment(models.Enrollment{ProgramProfileID: ids[0], Status: models.EnrollmentStatusEnrolled})
	e2 := env.repo.addEnrollment(models.Enrollment{ProgramProfileID: ids[1], Status: models.EnrollmentStatusEnrolled})

	res, err := env.svc.CancelSubscription(ctx, sub.StripeSubscriptionID, gateway.AccountYouthEvents)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Withdrawn)
	assert.Equal(t, []string{sub.StripeSubscriptionID}, env.mahad.Cancels)

	assert.Equal(t, models.BillingStatusCanceled, env.repo.subscription(sub.ID).Status)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, env.repo.enrollment(e1.ID).Status)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, env.repo.enrollment(e2.ID).Status)
	assert.Empty(t, env.repo.activeAssignments(sub.ID))

	_, err = env.svc.CancelSubscription(ctx, sub.StripeSubscriptionID, gateway.AccountMahad)
	assert.True(t, IsConflict(err))
}
