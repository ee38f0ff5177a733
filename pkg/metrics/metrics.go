// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ramsey-B/clover/pkg/models"
)

var (
	// ConsolidationRunsTotal tracks executions by final status
	ConsolidationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "consolidation",
			Name:      "runs_total",
			Help:      "Total number of consolidation executions by status",
		},
		[]string{"status"},
	)

	ConsolidationRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "consolidation",
			Name:      "run_duration_seconds",
			Help:      "Duration of consolidation executions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	ChildRecordsMigratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "consolidation",
			Name:      "child_records_migrated_total",
			Help:      "Total number of child records repointed onto a surviving resource",
		},
	)

	ResourcesRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "consolidation",
			Name:      "resources_removed_total",
			Help:      "Total number of duplicate resources deleted",
		},
	)

	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "consolidation",
			Name:      "validations_total",
			Help:      "Total number of plan validations by outcome",
		},
		[]string{"safe"},
	)

	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "consolidation",
			Name:      "recommendations_total",
			Help:      "Total number of recommendations by confidence",
		},
		[]string{"confidence"},
	)

	LeaseConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "consolidation",
			Name:      "lease_conflicts_total",
			Help:      "Total number of executions rejected because a resource was already leased",
		},
	)
)

// Recorder feeds the consolidation engine's observations into the package collectors.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) ObserveRun(status models.ConsolidationRunStatus, migrated, removed int, seconds float64) {
	ConsolidationRunsTotal.WithLabelValues(string(status)).Inc()
	ConsolidationRunDuration.WithLabelValues(string(status)).Observe(seconds)
	ChildRecordsMigratedTotal.Add(float64(migrated))
	ResourcesRemovedTotal.Add(float64(removed))
}

func (Recorder) ObserveValidation(safe bool) {
	label := "false"
	if safe {
		label = "true"
	}
	ValidationsTotal.WithLabelValues(label).Inc()
}

func (Recorder) ObserveRecommendation(confidence models.Confidence) {
	RecommendationsTotal.WithLabelValues(string(confidence)).Inc()
}

func (Recorder) ObserveLeaseConflict() {
	LeaseConflictsTotal.Inc()
}
