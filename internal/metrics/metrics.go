// Package metrics provides Prometheus metrics collection for deskwatch.
// It covers the push channel lifecycle, REST polling and the clipboard
// cascade, and is exposed via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the desk client.
type Metrics struct {
	// Push channel metrics
	Reconnects      prometheus.Counter // Reconnect attempts scheduled
	ConnectionOpen  prometheus.Gauge   // 1 while the push channel is open
	SnapshotsTotal  prometheus.Counter // Snapshots applied
	MalformedTotal  prometheus.Counter // Inbound frames dropped by the parser
	DroppedSends    prometheus.Counter // Outbound messages dropped while not open
	JournalWrites   prometheus.Counter // Snapshots written to the local journal
	JournalFailures prometheus.Counter // Journal write failures

	// Polling metrics
	PollFetches       *prometheus.CounterVec   // Fetches by resource and result
	PollFetchDuration *prometheus.HistogramVec // Fetch latency by resource

	// Clipboard metrics
	ClipboardOutcomes        *prometheus.CounterVec // Copy outcomes
	ClipboardStrategyFailure *prometheus.CounterVec // Failed strategies in the cascade
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "desk_reconnects_total",
			Help: "Total number of push channel reconnect attempts scheduled",
		}),
		ConnectionOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "desk_connection_open",
			Help: "1 while the push channel is open, 0 otherwise",
		}),
		SnapshotsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "desk_snapshots_total",
			Help: "Total number of snapshots applied from the push channel",
		}),
		MalformedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "desk_malformed_messages_total",
			Help: "Total number of inbound push messages dropped as malformed",
		}),
		DroppedSends: factory.NewCounter(prometheus.CounterOpts{
			Name: "desk_dropped_sends_total",
			Help: "Total number of outbound messages dropped while the channel was not open",
		}),
		JournalWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "desk_journal_writes_total",
			Help: "Total number of snapshots written to the local journal",
		}),
		JournalFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "desk_journal_failures_total",
			Help: "Total number of failed journal writes",
		}),
		PollFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poll_fetches_total",
			Help: "Total number of polling fetches by resource and result",
		}, []string{"resource", "result"}),
		PollFetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "poll_fetch_duration_seconds",
			Help:    "Duration of polling fetches in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"resource"}),
		ClipboardOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipboard_outcomes_total",
			Help: "Total number of copy attempts by outcome",
		}, []string{"outcome"}),
		ClipboardStrategyFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipboard_strategy_failures_total",
			Help: "Total number of failed clipboard strategies by name",
		}, []string{"strategy"}),
	}
}
