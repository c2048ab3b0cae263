package batch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricScoringJobsTotal       = "batch_scoring_jobs_total"
	MetricScoringJobsDuration    = "batch_scoring_jobs_duration_seconds"
	MetricScoringChunksTotal     = "batch_scoring_chunks_total"
	MetricScoringChunkErrors     = "batch_scoring_chunk_errors_total"
	MetricScoringJobsInFlight    = "batch_scoring_jobs_in_flight"
	MetricScoringArticlesSkipped = "batch_scoring_articles_skipped_total"
)

// Outcome labels for job completion.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics contains Prometheus metrics for batch scoring jobs.
// All operations are thread-safe.
type Metrics struct {
	jobsTotal       *prometheus.CounterVec
	jobsDuration    prometheus.Histogram
	chunksTotal     prometheus.Counter
	chunkErrors     *prometheus.CounterVec
	jobsInFlight    prometheus.Gauge
	articlesSkipped prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to
// register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricScoringJobsTotal,
				Help: "Total number of batch scoring job executions by status",
			},
			[]string{"status"},
		),
		jobsDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricScoringJobsDuration,
				Help:    "Histogram of whole-job batch scoring duration in seconds",
				Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0},
			},
		),
		chunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricScoringChunksTotal,
				Help: "Total number of scoring chunks processed",
			},
		),
		chunkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricScoringChunkErrors,
				Help: "Total number of chunk failures by error type",
			},
			[]string{"error_type"},
		),
		jobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricScoringJobsInFlight,
				Help: "Number of batch scoring jobs currently executing",
			},
		),
		articlesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricScoringArticlesSkipped,
				Help: "Total number of submitted article ids not found in the catalog",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncJobsTotal records a finished job with the given outcome.
func (m *Metrics) IncJobsTotal(status string) {
	m.jobsTotal.WithLabelValues(status).Inc()
}

// ObserveJobDuration records a whole-job duration sample.
func (m *Metrics) ObserveJobDuration(seconds float64) {
	m.jobsDuration.Observe(seconds)
}

// IncChunksTotal records one processed chunk.
func (m *Metrics) IncChunksTotal() {
	m.chunksTotal.Inc()
}

// IncChunkErrors increments the chunk errors counter.
// errorType: The failure class (e.g., "catalog_fetch", "store_write")
func (m *Metrics) IncChunkErrors(errorType string) {
	m.chunkErrors.WithLabelValues(errorType).Inc()
}

// JobStarted and JobFinished track the in-flight gauge.
func (m *Metrics) JobStarted()  { m.jobsInFlight.Inc() }
func (m *Metrics) JobFinished() { m.jobsInFlight.Dec() }

// AddArticlesSkipped records submitted ids missing from the catalog.
func (m *Metrics) AddArticlesSkipped(n int) {
	m.articlesSkipped.Add(float64(n))
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.jobsTotal,
		m.jobsDuration,
		m.chunksTotal,
		m.chunkErrors,
		m.jobsInFlight,
		m.articlesSkipped,
	}
}
