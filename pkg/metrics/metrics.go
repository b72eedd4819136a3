// Package metrics defines the Prometheus metric collectors used by the ingest
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ingest outcomes recorded by IngestResults.
const (
	OutcomeCreated        = "created"
	OutcomeMisconfigured  = "misconfigured"
	OutcomeRateLimited    = "rate_limited"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeTooLarge       = "too_large"
	OutcomeMalformed      = "malformed"
	OutcomeInvalid        = "invalid"
	OutcomeDuplicate      = "duplicate"
	OutcomePersistFailure = "persist_failure"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	IngestResults        *prometheus.CounterVec
	AuthFailures         *prometheus.CounterVec
	StoreLatency         *prometheus.HistogramVec
	EventsPublished      *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		IngestResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_ingest_results_total",
				Help: "Asset ingest requests by outcome.",
			},
			[]string{"outcome"},
		),
		AuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_ingest_auth_failures_total",
				Help: "Rejected ingest authentications by internal reason.",
			},
			[]string{"reason"},
		),
		StoreLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_store_latency_seconds",
				Help:    "Catalog store call latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_ingest_events_published_total",
				Help: "Asset ingested events by publish status (ok, error, skipped).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IngestResults,
		m.AuthFailures,
		m.StoreLatency,
		m.EventsPublished,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveIngest counts one ingest outcome. Safe on a nil receiver.
func (m *Metrics) ObserveIngest(outcome string) {
	if m == nil {
		return
	}
	m.IngestResults.WithLabelValues(outcome).Inc()
}

// ObserveAuthFailure counts one authentication rejection. Safe on a nil
// receiver.
func (m *Metrics) ObserveAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// ObserveStore records the latency of one store call. Safe on a nil receiver.
func (m *Metrics) ObserveStore(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreLatency.WithLabelValues(operation).Observe(seconds)
}

// ObservePublish counts one event publish attempt. Safe on a nil receiver.
func (m *Metrics) ObservePublish(status string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(status).Inc()
}

// SetBreakerState records a circuit breaker's state. Safe on a nil receiver.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
