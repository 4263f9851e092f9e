package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry outcomes.
const (
	OutcomeSent     = "sent"
	OutcomeRejected = "rejected" // sink answered non-2xx
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped" // no sink configured
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	redirects         *prometheus.CounterVec
	telemetry         *prometheus.CounterVec
	telemetryDuration prometheus.Histogram
	statsRequests     *prometheus.CounterVec
	ingested          prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.redirects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qr_router",
		Name:      "redirects_total",
		Help:      "Redirects issued by matched slug and method",
	}, []string{"slug", "method"})
	m.telemetry = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qr_router",
		Name:      "telemetry_events_total",
		Help:      "Scan events handed to the telemetry sink by outcome",
	}, []string{"outcome"})
	m.telemetryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qr_router",
		Name:      "telemetry_duration_seconds",
		Help:      "Time spent submitting a scan event",
		Buckets:   []float64{.01, .025, .05, .1, .2, .3, .4, .5, 1, 2.5, 5},
	})
	m.statsRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qr_router",
		Name:      "stats_requests_total",
		Help:      "Stats queries by backend and result",
	}, []string{"backend", "result"})
	m.ingested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "qr_router",
		Name:      "scans_ingested_total",
		Help:      "Scan events stored through the ingest endpoint",
	})

	m.registry.MustRegister(
		m.redirects, m.telemetry, m.telemetryDuration, m.statsRequests, m.ingested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Redirect(slug, method string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(slug, method).Inc()
}

func (m *Metrics) Telemetry(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.telemetry.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.telemetryDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) StatsRequest(backend, result string) {
	if m == nil {
		return
	}
	m.statsRequests.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) Ingested() {
	if m == nil {
		return
	}
	m.ingested.Inc()
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
