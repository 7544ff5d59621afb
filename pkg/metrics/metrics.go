// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal        *prometheus.CounterVec
	HTTPRequestDuration      *prometheus.HistogramVec
	HTTPRequestsInFlight     prometheus.Gauge
	IngestionRunsTotal       *prometheus.CounterVec
	IngestionRunDuration     prometheus.Histogram
	IngestionOutcomesTotal   *prometheus.CounterVec
	ObjectStoreRequestsTotal *prometheus.CounterVec
	ObjectStoreLatency       *prometheus.HistogramVec
	CacheWritesTotal         *prometheus.CounterVec
	CacheEntries             prometheus.Gauge
	CircuitBreakerState      *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg. Tests pass
// a fresh prometheus.NewRegistry() so repeated construction does not panic.
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
		IngestionRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_runs_total",
				Help: "Ingestion runs by result (completed, failed_discovery, cancelled).",
			},
			[]string{"result"},
		),
		IngestionRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingestion_run_duration_seconds",
				Help:    "Wall-clock duration of ingestion runs in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		IngestionOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_outcomes_total",
				Help: "Per-key ingestion outcomes by status (ok, cached, invalid, error).",
			},
			[]string{"status"},
		),
		ObjectStoreRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objectstore_requests_total",
				Help: "Object store requests by operation and result.",
			},
			[]string{"operation", "result"},
		),
		ObjectStoreLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "objectstore_request_duration_seconds",
				Help:    "Object store request latency in seconds, retries included.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		CacheWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_writes_total",
				Help: "Cache entry writes by result.",
			},
			[]string{"result"},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cache_entries",
				Help: "Number of entries in the local cache after the last run.",
			},
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
		m.IngestionRunsTotal,
		m.IngestionRunDuration,
		m.IngestionOutcomesTotal,
		m.ObjectStoreRequestsTotal,
		m.ObjectStoreLatency,
		m.CacheWritesTotal,
		m.CacheEntries,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
