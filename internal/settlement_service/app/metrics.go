package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sequenceCallsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "sequence_calls_total",
			Help:      "Total sequence generator calls.",
		},
		[]string{"kind", "outcome"}, // outcome: "success", "error"
	)

	sequenceLatencyHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "settlement",
			Name:      "sequence_call_duration_seconds",
			Help:      "Latency of sequence generator calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	chargeTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "charge_transitions_total",
			Help:      "Total charge status transitions by operation.",
		},
		[]string{"operation", "outcome"}, // operation: "create", "payment", "refund", "cancel"; outcome: "success", "replay", "conflict", "invalid_state", "error"
	)

	chargeTransitionDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "settlement",
			Name:      "charge_transition_duration_seconds",
			Help:      "Duration of charge transition operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	inventoryAdjustmentsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "inventory_adjustments_total",
			Help:      "Total inventory stock adjustments.",
		},
		[]string{"direction", "outcome"}, // direction: "restock", "consume"
	)

	outboxPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "outbox_events_published_total",
			Help:      "Total outbox events published to the message broker.",
		},
		[]string{"subject", "outcome"},
	)
)
