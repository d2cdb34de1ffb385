// Package metrics holds the Prometheus collectors for the billing engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "enrollbilling"

var (
	// SubscriptionSyncs counts synchronizer runs by account and outcome
	// (updated, unchanged, error).
	SubscriptionSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "subscription_syncs_total",
		Help:      "Subscription synchronizations by account type and outcome.",
	}, []string{"account", "outcome"})

	// AssignmentsCreated counts billing assignments written by the split engine.
	AssignmentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "assignments_created_total",
		Help:      "Billing assignments created by split allocation.",
	})

	// AssignmentsDeactivated counts billing assignments deactivated by unlink.
	AssignmentsDeactivated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "assignments_deactivated_total",
		Help:      "Billing assignments deactivated by unlink.",
	})

	// OrphanedSubscriptions is the size of the last orphan scan per program.
	OrphanedSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "orphaned_subscriptions",
		Help:      "Orphaned gateway subscriptions found by the last scan.",
	}, []string{"program"})

	// CascadeWithdrawals counts enrollment withdrawals by outcome (withdrawn, error).
	CascadeWithdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enrollment",
		Name:      "cascade_withdrawals_total",
		Help:      "Enrollment withdrawals caused by subscription cancellation.",
	}, []string{"outcome"})

	// WebhookEvents counts webhook deliveries by account, event type and result.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Gateway webhook deliveries by account, event type and result.",
	}, []string{"account", "event_type", "result"})

	// GatewayCallDuration tracks gateway latency per operation.
	GatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "call_duration_seconds",
		Help:      "Payment gateway call duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)
