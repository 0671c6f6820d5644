// Package metrics provides Prometheus metrics collection for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the gateway.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
	StreamDuration   *prometheus.HistogramVec

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Ledger metrics
	QuotaRejections *prometheus.CounterVec

	// Usage metrics
	TokensTotal         *prometheus.CounterVec
	CostMicrodollars    *prometheus.CounterVec
	RecorderQueueDrops  prometheus.Counter
	RecorderFlushErrors prometheus.Counter

	// Relay metrics
	KeepalivesSent prometheus.Counter
	UpstreamErrors *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "requests_total",
				Help:      "Total number of proxied requests",
			},
			[]string{"model", "status", "plan"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "llmgate",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		StreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "llmgate",
				Name:      "stream_duration_seconds",
				Help:      "End-to-end request duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"model", "streaming"},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),
		QuotaRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "quota_rejections_total",
				Help:      "Total number of requests rejected by the quota ledger",
			},
			[]string{"reason", "plan"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "tokens_total",
				Help:      "Total tokens metered across requests",
			},
			[]string{"model", "kind"},
		),
		CostMicrodollars: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "cost_microdollars_total",
				Help:      "Total metered cost in microdollars",
			},
			[]string{"model"},
		),
		RecorderQueueDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "recorder_queue_drops_total",
				Help:      "Usage records dropped because the recorder buffer was full",
			},
		),
		RecorderFlushErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "recorder_flush_errors_total",
				Help:      "Failed usage record batch writes",
			},
		),
		KeepalivesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "keepalives_sent_total",
				Help:      "SSE keepalive comments written while awaiting upstream",
			},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "upstream_errors_total",
				Help:      "Total number of upstream errors",
			},
			[]string{"type"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "llmgate",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
	}
}
