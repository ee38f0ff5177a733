package consolidation

import "github.com/Ramsey-B/clover/pkg/models"

type noopMetrics struct{}

func (noopMetrics) ObserveRun(models.ConsolidationRunStatus, int, int, float64) {}
func (noopMetrics) ObserveValidation(bool)                                      {}
func (noopMetrics) ObserveRecommendation(models.Confidence)                     {}
func (noopMetrics) ObserveLeaseConflict()                                       {}
