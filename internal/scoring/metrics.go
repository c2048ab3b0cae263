// Package scoring combines recency decay and persona relevance into a
// single relevance score per article.
package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricOracleCallsTotal     = "scoring_oracle_calls_total"
	MetricOracleFallbacksTotal = "scoring_oracle_fallbacks_total"
	MetricOracleCallDuration   = "scoring_oracle_call_duration_seconds"
)

// Metrics contains Prometheus metrics for oracle scoring calls.
// All operations are thread-safe.
type Metrics struct {
	oracleCalls        prometheus.Counter
	oracleFallbacks    prometheus.Counter
	oracleCallDuration prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		oracleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricOracleCallsTotal,
			Help: "Total number of relevance oracle calls issued",
		}),
		oracleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricOracleFallbacksTotal,
			Help: "Total number of oracle failures absorbed by the fallback scorer",
		}),
		oracleCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricOracleCallDuration,
			Help:    "Histogram of relevance oracle call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncOracleCalls increments the oracle call counter.
func (m *Metrics) IncOracleCalls() {
	m.oracleCalls.Inc()
}

// IncOracleFallbacks increments the absorbed-failure counter.
func (m *Metrics) IncOracleFallbacks() {
	m.oracleFallbacks.Inc()
}

// ObserveOracleCallDuration records an oracle call duration sample.
func (m *Metrics) ObserveOracleCallDuration(seconds float64) {
	m.oracleCallDuration.Observe(seconds)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.oracleCalls,
		m.oracleFallbacks,
		m.oracleCallDuration,
	}
}
