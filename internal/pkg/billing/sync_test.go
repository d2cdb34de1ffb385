package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/ManuelReschke/enrollbilling/app/models"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncSubscription_NotFoundLocally(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.SyncSubscriptionFromGateway(context.Background(), "sub_missing", gateway.AccountMahad)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Subscription not found in database", err.Error())
	assert.Zero(t, env.mahad.Retrievals)
}

func TestSyncSubscription_RejectsMalformedID(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"", "cus_123", "sub_1; DROP", "sub_"} {
		_, err := env.svc.SyncSubscriptionFromGateway(context.Background(), id, gateway.AccountMahad)
		assert.True(t, IsValidation(err), "id %q", id)
	}
}

func TestSyncSubscription_IdempotentUnderRepeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	local := env.repo.addSubscription(models.Subscription{
		StripeSubscriptionID: "sub_1",
		StripeAccountType:    models.AccountTypeMahad,
		Status:               models.BillingStatusActive,
	})
	env.mahad.PutSubscription(remoteSubscription("sub_1", "past_due", "cus_1", 1000))

	first, err := env.svc.SyncSubscriptionFromGateway(ctx, "sub_1", gateway.AccountMahad)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Updated: true, Status: models.BillingStatusPastDue}, first)
	assert.Equal(t, 1, env.repo.writes["UpdateSubscriptionStatus"])

	second, err := env.svc.SyncSubscriptionFromGateway(ctx, "sub_1", gateway.AccountMahad)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Updated: false, Status: models.BillingStatusPastDue}, second)
	assert.Equal(t, 1, env.repo.writes["UpdateSubscriptionStatus"])

	stored := env.repo.subscription(local.ID)
	assert.Equal(t, models.BillingStatusPastDue, stored.Status)
	require.NotNil(t, stored.CurrentPeriodEnd)
}

func TestSyncSubscription_UnchangedDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	env.repo.addSubscription(models.Subscription{StripeSubscriptionID: "sub_1", Status: "active"})
	env.mahad.PutSubscription(remoteSubscription("sub_1", "active", "cus_1", 1000))

	res, err := env.svc.SyncSubscriptionFromGateway(context.Background(), "sub_1", gateway.AccountMahad)
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, "active", res.Status)
	assert.Zero(t, env.repo.writes["UpdateSubscriptionStatus"])
}

func TestSyncSubscription_SetsPaidUntilWhenBilling(t *testing.T) {
	env := newTestEnv(t)
	local := env.repo.addSubscription(models.Subscription{StripeSubscriptionID: "sub_1", Status: "incomplete"})
	remote := remoteSubscription("sub_1", "active", "cus_1", 1000)
	env.mahad.PutSubscription(remote)

	_, err := env.svc.SyncSubscriptionFromGateway(context.Background(), "sub_1", gateway.AccountMahad)
	require.NoError(t, err)

	stored := env.repo.subscription(local.ID)
	require.NotNil(t, stored.PaidUntil)
	assert.Equal(t, remote.CurrentPeriodEnd, stored.PaidUntil.Unix())
}

func TestSyncSubscription_UsesAccountGateway(t *testing.T) {
	env := newTestEnv(t)
	env.repo.addSubscription(models.Subscription{StripeSubscriptionID: "sub_d", Status: "active"})
	env.dugsi.PutSubscription(remoteSubscription("sub_d", "canceled", "cus_d", 500))

	res, err := env.svc.SyncSubscriptionFromGateway(context.Background(), "sub_d", gateway.AccountDugsi)
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 1, env.dugsi.Retrievals)
	assert.Zero(t, env.mahad.Retrievals)
}

func TestSyncSubscription_GatewayErrorPropagates(t *testing.T) {
	env := newTestEnv(t)
	env.repo.addSubscription(models.Subscription{StripeSubscriptionID: "sub_1", Status: "active"})
	env.mahad.RetrieveErr = gateway.NewGatewayError("resource_missing", "No such subscription", nil)

	_, err := env.svc.SyncSubscriptionFromGateway(context.Background(), "sub_1", gateway.AccountMahad)
	require.Error(t, err)
	var ge *gateway.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "not found", ge.Message)
	assert.Zero(t, env.repo.writes["UpdateSubscriptionStatus"])
}
