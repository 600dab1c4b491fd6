// Package metrics exposes Prometheus instruments for the import pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crmimport"

var (
	importRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Total number of import runs broken down by target, stage and outcome.",
	}, []string{"target", "stage", "outcome"})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Total number of rows committed broken down by target and result.",
	}, []string{"target", "result"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Duration of validate and execute calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"target", "stage"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "duration_seconds",
		Help:      "Duration of one batch commit including the duplicate check.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"target"})

	batchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "failures_total",
		Help:      "Total number of batches rejected by the store.",
	}, []string{"target"})

	activeImports = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "active",
		Help:      "Number of execute calls currently holding an import slot.",
	})
)

// Stage names used as label values.
const (
	StageValidate = "validate"
	StageExecute  = "execute"
)

// RecordRun counts a finished validate or execute call.
func RecordRun(target, stage, outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "ok"
	}
	importRuns.WithLabelValues(target, stage, outcome).Inc()
	importDuration.WithLabelValues(target, stage).Observe(d.Seconds())
}

// RecordRows adds committed row counts for a target.
func RecordRows(target string, inserted, skipped, failed int) {
	importRows.WithLabelValues(target, "inserted").Add(float64(inserted))
	importRows.WithLabelValues(target, "skipped").Add(float64(skipped))
	importRows.WithLabelValues(target, "failed").Add(float64(failed))
}

// RecordBatch observes one batch commit.
func RecordBatch(target string, d time.Duration, failed bool) {
	batchDuration.WithLabelValues(target).Observe(d.Seconds())
	if failed {
		batchFailures.WithLabelValues(target).Inc()
	}
}

// SetActiveImports exposes the number of running imports.
func SetActiveImports(n int) {
	activeImports.Set(float64(n))
}
