// Package metrics exposes Prometheus collectors for engine runs. All
// recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "semdiff"

// Metrics holds the engine collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	sections     *prometheus.CounterVec
	matches      *prometheus.CounterVec
	changes      *prometheus.CounterVec
	manualReview prometheus.Counter
	issues       *prometheus.CounterVec
	coverage     prometheus.Histogram
}

// New creates collectors registered in a fresh registry. Process and Go
// runtime collectors are included so /metrics is useful on its own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations run, by operation.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency, by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		sections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_detected_total",
			Help:      "Sections produced by segmentation, by detector.",
		}, []string{"detector"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "section_matches_total",
			Help:      "Section match results, by tier.",
		}, []string{"tier"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Change records, by change type and significance.",
		}, []string{"change_type", "significance"}),
		manualReview: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_review_total",
			Help:      "Matches flagged for manual review.",
		}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Degraded-input issues folded into results, by code.",
		}, []string{"code"}),
		coverage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_coverage_percent",
			Help:      "Derived-document coverage reported by verification.",
			Buckets:   []float64{10, 25, 50, 75, 90, 100, 150},
		}),
	}

	reg.MustRegister(m.runs, m.duration, m.sections, m.matches, m.changes,
		m.manualReview, m.issues, m.coverage)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation records one engine operation and its latency.
func (m *Metrics) ObserveOperation(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(operation).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddSection counts one detected section.
func (m *Metrics) AddSection(detector string) {
	if m == nil {
		return
	}
	m.sections.WithLabelValues(detector).Inc()
}

// AddMatch counts one match result.
func (m *Metrics) AddMatch(tier string, manualReview bool) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(tier).Inc()
	if manualReview {
		m.manualReview.Inc()
	}
}

// AddChange counts one change record.
func (m *Metrics) AddChange(changeType, significance string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(changeType, significance).Inc()
}

// AddIssue counts one folded issue.
func (m *Metrics) AddIssue(code string) {
	if m == nil {
		return
	}
	m.issues.WithLabelValues(code).Inc()
}

// ObserveCoverage records a verification coverage percentage.
func (m *Metrics) ObserveCoverage(percent float64) {
	if m == nil {
		return
	}
	m.coverage.Observe(percent)
}
