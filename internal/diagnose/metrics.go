package diagnose

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the diagnostic engine
type Metrics struct {
	DiagnosesTotal    prometheus.CounterVec
	IssuesTotal       prometheus.CounterVec
	RefreshesTotal    prometheus.CounterVec
	TransitionsTotal  prometheus.Counter
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
	MonitorPollsTotal prometheus.Counter
	DiagnosisDuration prometheus.Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// InitMetrics initializes global Prometheus metrics
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			DiagnosesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "authdoctor_diagnoses_total",
					Help: "Total diagnoses by result severity",
				},
				[]string{"severity"},
			),
			IssuesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "authdoctor_issues_total",
					Help: "Total issues observed by kind and severity",
				},
				[]string{"kind", "severity"},
			),
			RefreshesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "authdoctor_token_refreshes_total",
					Help: "Total token refresh attempts by outcome",
				},
				[]string{"outcome"},
			),
			TransitionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "authdoctor_health_transitions_total",
					Help: "Total health state transitions observed by the monitor",
				},
			),
			CacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "authdoctor_cache_hits_total",
					Help: "Diagnostic cache hits",
				},
			),
			CacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "authdoctor_cache_misses_total",
					Help: "Diagnostic cache misses (absent or stale)",
				},
			),
			MonitorPollsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "authdoctor_monitor_polls_total",
					Help: "Total health monitor poll iterations",
				},
			),
			DiagnosisDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "authdoctor_diagnosis_duration_seconds",
					Help:    "Diagnosis execution duration",
					Buckets: prometheus.DefBuckets,
				},
			),
		}
	})
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// RecordDiagnosis records one completed diagnosis
func (m *Metrics) RecordDiagnosis(severity string, seconds float64) {
	if m == nil {
		return
	}
	m.DiagnosesTotal.WithLabelValues(severity).Inc()
	m.DiagnosisDuration.Observe(seconds)
}

// RecordIssue records one observed issue
func (m *Metrics) RecordIssue(kind, severity string) {
	if m == nil {
		return
	}
	m.IssuesTotal.WithLabelValues(kind, severity).Inc()
}

// RecordRefresh records a token refresh outcome
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordTransition records a health state transition
func (m *Metrics) RecordTransition() {
	if m == nil {
		return
	}
	m.TransitionsTotal.Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordMonitorPoll records one monitor poll iteration
func (m *Metrics) RecordMonitorPoll() {
	if m == nil {
		return
	}
	m.MonitorPollsTotal.Inc()
}
