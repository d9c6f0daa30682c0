package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records Prometheus metrics for document processing. It satisfies
// the observer interfaces of the processor, preflight and dataload packages.
// A disabled Metrics accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	documentsProcessed *prometheus.CounterVec
	documentDuration   *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	errors             *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	preflightRequests  *prometheus.CounterVec
	runsCompleted      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	namespace := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		documentsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_processed_total",
				Help:      "Total number of chart documents processed",
			},
			[]string{"status"},
		),
		documentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_duration_seconds",
				Help:      "Time to resolve one chart document",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Resolution errors by kind and code",
			},
			[]string{"kind", "code"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loader_cache_total",
				Help:      "Data loader cache lookups",
			},
			[]string{"result"},
		),
		preflightRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "preflight_requests_total",
				Help:      "Preflight reports computed",
			},
			[]string{"ready"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Generate runs completed",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.documentsProcessed,
		m.documentDuration,
		m.stageDuration,
		m.errors,
		m.cacheLookups,
		m.preflightRequests,
		m.runsCompleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Enabled reports whether metrics are being recorded.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// RecordDocument counts a processed document.
func (m *Metrics) RecordDocument(status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.documentsProcessed.WithLabelValues(status).Inc()
	m.documentDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStage observes the duration of one pipeline stage.
func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordError counts a resolution error.
func (m *Metrics) RecordError(kind, code string) {
	if !m.Enabled() {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.errors.WithLabelValues(kind, code).Inc()
}

// RecordCacheLookup counts a loader cache hit or miss.
func (m *Metrics) RecordCacheLookup(result string) {
	if !m.Enabled() {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordPreflight counts a preflight report.
func (m *Metrics) RecordPreflight(ready bool) {
	if !m.Enabled() {
		return
	}
	m.preflightRequests.WithLabelValues(strconv.FormatBool(ready)).Inc()
}

// RecordRun counts a finished generate run. A run with any failed document
// is counted as failed.
func (m *Metrics) RecordRun(failed int) {
	if !m.Enabled() {
		return
	}
	status := "succeeded"
	if failed > 0 {
		status = "failed"
	}
	m.runsCompleted.WithLabelValues(status).Inc()
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
