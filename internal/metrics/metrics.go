package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector provides Prometheus metrics collection for export operations
type PrometheusCollector struct {
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	recordsTotal   *prometheus.CounterVec
	bytesTotal     *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec
	activeJobs     prometheus.Gauge
	registry       *prometheus.Registry
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exportd_jobs_total",
			Help: "Total number of finished export jobs by type and terminal status",
		},
		[]string{"type", "status"},
	)

	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exportd_job_duration_seconds",
			Help:    "Wall-clock duration of export jobs by type",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
		[]string{"type"},
	)

	recordsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exportd_records_written_total",
			Help: "Total number of records written to artifacts by export type",
		},
		[]string{"type"},
	)

	bytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exportd_bytes_written_total",
			Help: "Total artifact bytes written by export type",
		},
		[]string{"type"},
	)

	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exportd_format_fallbacks_total",
			Help: "Per-row values replaced with the placeholder because they could not be formatted",
		},
		[]string{"field"},
	)

	activeJobs := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exportd_active_jobs",
			Help: "Export jobs currently in PROCESSING",
		},
	)

	registry.MustRegister(jobsTotal)
	registry.MustRegister(jobDuration)
	registry.MustRegister(recordsTotal)
	registry.MustRegister(bytesTotal)
	registry.MustRegister(fallbacksTotal)
	registry.MustRegister(activeJobs)

	return &PrometheusCollector{
		jobsTotal:      jobsTotal,
		jobDuration:    jobDuration,
		recordsTotal:   recordsTotal,
		bytesTotal:     bytesTotal,
		fallbacksTotal: fallbacksTotal,
		activeJobs:     activeJobs,
		registry:       registry,
	}
}

// JobFinished records a job reaching a terminal state
func (m *PrometheusCollector) JobFinished(exportType string, status string, durationMs int64) {
	m.jobsTotal.WithLabelValues(exportType, status).Inc()
	m.jobDuration.WithLabelValues(exportType).Observe(float64(durationMs) / 1000.0)
}

// AddRecords adds to the written-record counter
func (m *PrometheusCollector) AddRecords(exportType string, n int64) {
	m.recordsTotal.WithLabelValues(exportType).Add(float64(n))
}

// AddBytes adds to the written-byte counter
func (m *PrometheusCollector) AddBytes(exportType string, n int64) {
	m.bytesTotal.WithLabelValues(exportType).Add(float64(n))
}

// SetActiveJobs sets the processing gauge
func (m *PrometheusCollector) SetActiveJobs(n int64) {
	m.activeJobs.Set(float64(n))
}

// RecordFallback counts a formatting fallback
func (m *PrometheusCollector) RecordFallback(field string) {
	m.fallbacksTotal.WithLabelValues(field).Inc()
}

// Registry returns the prometheus registry for the /metrics endpoint
func (m *PrometheusCollector) Registry() *prometheus.Registry {
	return m.registry
}
