package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion
var (
	// EventsIngested counts Ingest calls by result (ok, invalid, failed).
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livex_events_ingested_total",
		Help: "Events handled by the ingestion pipeline, by result.",
	}, []string{"result"})

	EventLogAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livex_event_log_append_failures_total",
		Help: "Event log appends that failed after retries.",
	})

	AggregateIncrementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "livex_aggregate_increment_duration_seconds",
		Help:    "Latency of aggregate store increments, retries included.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

// Fan-out
var (
	// Broadcasts counts fan-outs by outcome (delivered, undelivered, no_subscribers).
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livex_broadcasts_total",
		Help: "Broadcast calls by outcome.",
	}, []string{"outcome"})

	// Deliveries counts per-connection pushes by status (sent, dropped, closed, stale).
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livex_deliveries_total",
		Help: "Per-connection update deliveries by status.",
	}, []string{"status"})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livex_notify_failures_total",
		Help: "Updates that could not be handed to the fan-out layer.",
	})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livex_websocket_connections_current",
		Help: "Open viewer connections on this instance.",
	})

	WidgetSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livex_widget_subscriptions_current",
		Help: "Connection/widget subscriptions held by this instance.",
	})
)

// Dependencies
var (
	// CircuitBreakerState is 0=closed, 1=half-open, 2=open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livex_circuit_breaker_state",
		Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"component"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livex_ingest_rate_limited_total",
		Help: "Ingest requests rejected by the rate limiter.",
	})
)
