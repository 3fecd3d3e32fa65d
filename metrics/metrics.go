// Package metrics holds the Prometheus instruments of the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/schemabounce/waterfall-bridge/types"
)

const namespace = "waterfall_bridge"

// Metrics groups every instrument. A nil *Metrics is valid and records
// nothing, so packages can take one optionally.
type Metrics struct {
	// RecordsTotal counts create attempts.
	// Labels: resource, outcome (created, failed)
	RecordsTotal *prometheus.CounterVec

	// ReferencesTotal counts reference resolutions.
	// Labels: status (resolved, ambiguous, missing, error)
	ReferencesTotal *prometheus.CounterVec

	// ExportsTotal counts export runs.
	// Labels: format, outcome (success, error)
	ExportsTotal *prometheus.CounterVec

	// ImportsTotal counts import runs.
	// Labels: outcome (created, partial, failed, rejected)
	ImportsTotal *prometheus.CounterVec

	// ImportDurationSeconds measures whole import runs.
	ImportDurationSeconds prometheus.Histogram

	// StageDurationSeconds measures pipeline stages.
	// Labels: stage, outcome (success, error)
	StageDurationSeconds *prometheus.HistogramVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Records submitted to the target service, by outcome.",
		}, []string{"resource", "outcome"}),
		ReferencesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "references_total",
			Help:      "Foreign-key references resolved, by resolution status.",
		}, []string{"status"}),
		ExportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "runs_total",
			Help:      "Export runs, by format and outcome.",
		}, []string{"format", "outcome"}),
		ImportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Import runs, by outcome.",
		}, []string{"outcome"}),
		ImportDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Wall time of whole import runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		StageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "outcome"}),
	}
}

// RecordCreated counts one successful create.
func (m *Metrics) RecordCreated(resource string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(resource, "created").Inc()
}

// RecordFailed counts one failed create.
func (m *Metrics) RecordFailed(resource string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(resource, "failed").Inc()
}

// Reference counts one resolution.
func (m *Metrics) Reference(status types.ResolutionStatus) {
	if m == nil {
		return
	}
	m.ReferencesTotal.WithLabelValues(string(status)).Inc()
}

// Export counts one export run.
func (m *Metrics) Export(format string, err error) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(format, outcome(err)).Inc()
}

// Import counts one finished import run. report is nil when the run was
// rejected before creating anything.
func (m *Metrics) Import(report *types.ImportReport, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "rejected"
	if report != nil {
		switch {
		case report.Failed == 0:
			label = "created"
		case report.Success > 0:
			label = "partial"
		default:
			label = "failed"
		}
	}
	m.ImportsTotal.WithLabelValues(label).Inc()
	m.ImportDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveStage implements telemetry.Observer.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage, outcome(err)).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
