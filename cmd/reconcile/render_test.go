package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/billing"
)

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "0.00", formatCents(0))
	assert.Equal(t, "0.05", formatCents(5))
	assert.Equal(t, "150.00", formatCents(15000))
	assert.Equal(t, "33.34", formatCents(3334))
}

func TestRenderOrphanReportTable(t *testing.T) {
	report := &billing.OrphanReport{
		ID:          "r-1",
		GeneratedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Cached:      true,
		Subscriptions: []billing.OrphanedSubscription{
			{ID: "sub_1", Program: "MAHAD", Status: "active", CustomerName: "Amina", CustomerEmail: "a@example.com", Amount: 15000, SubscriptionCount: 2},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderOrphanReport(&buf, report, false))

	out := buf.String()
	assert.Contains(t, out, "Orphan report r-1 (cached, generated 2026-03-01 09:30)")
	assert.Contains(t, out, "sub_1")
	assert.Contains(t, out, "150.00")
	assert.Contains(t, out, "1 orphaned subscription(s)")
}

func TestRenderOrphanReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderOrphanReport(&buf, &billing.OrphanReport{ID: "r-2"}, false))
	assert.Contains(t, buf.String(), "No orphaned subscriptions.")
}

func TestRenderOrphanReportJSON(t *testing.T) {
	report := &billing.OrphanReport{ID: "r-3", Subscriptions: []billing.OrphanedSubscription{{ID: "sub_9"}}}

	var buf bytes.Buffer
	require.NoError(t, renderOrphanReport(&buf, report, true))

	var decoded billing.OrphanReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "r-3", decoded.ID)
	require.Len(t, decoded.Subscriptions, 1)
	assert.Equal(t, "sub_9", decoded.Subscriptions[0].ID)
}

func TestRenderMatches(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderMatches(&buf, []billing.PotentialMatch{
		{ID: 7, Name: "Yusuf", Email: "y@example.com", Status: "enrolled", HasSubscription: true},
	}, false))
	assert.Contains(t, buf.String(), "Yusuf")
	assert.Contains(t, buf.String(), "yes")

	buf.Reset()
	require.NoError(t, renderMatches(&buf, nil, false))
	assert.Contains(t, buf.String(), "No matching profiles.")
}
