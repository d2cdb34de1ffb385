package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCustomerID(t *testing.T) {
	id, ok := ExtractCustomerID(nil)
	assert.False(t, ok)
	assert.Empty(t, id)

	id, ok = ExtractCustomerID(&gateway.Subscription{Customer: gateway.CustomerReference("cus_1")})
	assert.True(t, ok)
	assert.Equal(t, "cus_1", id)

	id, ok = ExtractCustomerID(&gateway.Subscription{Customer: gateway.ExpandedCustomer(&gateway.Customer{ID: "cus_2", Email: "a@b.c"})})
	assert.True(t, ok)
	assert.Equal(t, "cus_2", id)

	_, ok = ExtractCustomerID(&gateway.Subscription{})
	assert.False(t, ok)
}

func TestExtractCustomerID_FromWebhookJSON(t *testing.T) {
	var ref, expanded gateway.Subscription
	require.NoError(t, json.Unmarshal([]byte(`{"id":"sub_1","customer":"cus_9"}`), &ref))
	require.NoError(t, json.Unmarshal([]byte(`{"id":"sub_2","customer":{"id":"cus_8","email":"x@y.z"}}`), &expanded))

	id, _ := ExtractCustomerID(&ref)
	assert.Equal(t, "cus_9", id)
	id, _ = ExtractCustomerID(&expanded)
	assert.Equal(t, "cus_8", id)

	c, ok := ExtractCustomer(&expanded)
	require.True(t, ok)
	assert.Equal(t, "x@y.z", c.Email)
	_, ok = ExtractCustomer(&ref)
	assert.False(t, ok)
}

func TestExtractPeriod(t *testing.T) {
	assert.Equal(t, Period{}, ExtractPeriod(nil))
	assert.Equal(t, Period{}, ExtractPeriod(&gateway.Subscription{}))

	sub := &gateway.Subscription{CurrentPeriodStart: 1700000000, CurrentPeriodEnd: 1702592000}
	p := ExtractPeriod(sub)
	require.NotNil(t, p.Start)
	require.NotNil(t, p.End)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *p.Start)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), *p.End)
}

func TestExtractPeriod_FallsBackToFirstItem(t *testing.T) {
	sub := &gateway.Subscription{
		Items: gateway.SubscriptionItems{Data: []gateway.SubscriptionItem{
			{ID: "si_1", CurrentPeriodStart: 1700000000, CurrentPeriodEnd: 1702592000},
		}},
	}
	p := ExtractPeriod(sub)
	require.NotNil(t, p.Start)
	require.NotNil(t, p.End)
	assert.Equal(t, int64(1702592000), p.End.Unix())
}
