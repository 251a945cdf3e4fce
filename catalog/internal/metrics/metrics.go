package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbox metrics
	OutboxAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_outbox_appends_total",
			Help: "Total number of outbox rows appended",
		},
		[]string{"aggregate", "event_type"},
	)

	OutboxRelayedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_outbox_relayed_total",
			Help: "Total number of outbox rows relayed to the broker",
		},
	)

	OutboxRelayErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_outbox_relay_errors_total",
			Help: "Total number of relay batch failures",
		},
	)

	OutboxBacklog = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_outbox_backlog",
			Help: "Unpublished outbox rows at the last backlog sample",
		},
	)

	// Dispatch metrics
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_dispatch_envelopes_total",
			Help: "Total number of envelopes dispatched, by terminal state",
		},
		[]string{"state"},
	)

	HandlerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_dispatch_handler_duration_seconds",
			Help:    "Duration of event handler invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_dispatch_dead_lettered_total",
			Help: "Total number of envelopes routed to the dead-letter queue",
		},
		[]string{"reason"},
	)

	// Slot pool metrics
	SlotConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_coupon_slot_consume_total",
			Help: "Total number of slot consume attempts, by result",
		},
		[]string{"result"},
	)

	// Inventory metrics
	InventoryApplyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_inventory_apply_total",
			Help: "Total number of versioned inventory applies, by result",
		},
		[]string{"result"},
	)

	InventoryRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_inventory_conflict_retries_total",
			Help: "Total number of optimistic-concurrency retries",
		},
	)
)
