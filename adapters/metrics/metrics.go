// Package metrics provides Prometheus metrics collection for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the gateway.
type Collector struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Admission metrics
	AdmissionDecisions *prometheus.CounterVec
	RateLimitHits      *prometheus.CounterVec
	StoreErrors        prometheus.Counter
	DegradedDecisions  *prometheus.CounterVec

	// Pool metrics
	PoolActive prometheus.Gauge
	PoolIdle   prometheus.Gauge

	// WebSocket metrics
	OpenSessions    prometheus.Gauge
	MessageSize     prometheus.Histogram
	MessagesTotal   *prometheus.CounterVec
	OversizeRejects prometheus.Counter

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
				Namespace: "wsgate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wsgate",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),

		AdmissionDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wsgate",
				Name:      "admission_decisions_total",
				Help:      "Admission decisions by scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wsgate",
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit denials",
			},
			[]string{"scope"},
		),
		StoreErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wsgate",
				Name:      "store_errors_total",
				Help:      "Counter store operations that failed after retry",
			},
		),
		DegradedDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wsgate",
				Name:      "degraded_decisions_total",
				Help:      "Decisions taken while the store was unreachable",
			},
			[]string{"policy"},
		),

		PoolActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wsgate",
				Name:      "pool_active_connections",
				Help:      "Pool leases currently held",
			},
		),
		PoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wsgate",
				Name:      "pool_idle_connections",
				Help:      "Pool slots currently free",
			},
		),

		OpenSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wsgate",
				Name:      "ws_open_sessions",
				Help:      "WebSocket sessions currently open",
			},
		),
		MessageSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "wsgate",
				Name:      "ws_message_size_bytes",
				Help:      "Size of received WebSocket messages in bytes",
				Buckets:   []float64{64, 256, 1024, 4096, 8192, 16384, 32768},
			},
		),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wsgate",
				Name:      "ws_messages_total",
				Help:      "WebSocket messages by direction",
			},
			[]string{"direction"},
		),
		OversizeRejects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wsgate",
				Name:      "ws_oversize_rejects_total",
				Help:      "Messages rejected for exceeding the size ceiling",
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wsgate",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "wsgate",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
	}
}

// SetPoolStats publishes pool utilization gauges.
func (c *Collector) SetPoolStats(active, idle int) {
	c.PoolActive.Set(float64(active))
	c.PoolIdle.Set(float64(idle))
}
