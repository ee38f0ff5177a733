package consolidation

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Engine bundles the consolidation operations exposed over HTTP and the CLI.
type Engine struct {
	Recommender *Recommender
	Validator   *Validator
	Executor    *Executor
	Detector    *Detector
}

func (e *Engine) Recommend(ctx context.Context, candidateIDs []string) (models.Recommendation, error) {
	return e.Recommender.Recommend(ctx, candidateIDs)
}

func (e *Engine) Validate(ctx context.Context, plan models.ConsolidationPlan) (models.ValidationResult, error) {
	return e.Validator.Validate(ctx, plan)
}

func (e *Engine) Execute(ctx context.Context, plan models.ConsolidationPlan, force bool) (models.MigrationResult, error) {
	return e.Executor.Execute(ctx, plan, force)
}

func (e *Engine) Discover(ctx context.Context) ([]models.DuplicateGroup, error) {
	return e.Detector.Discover(ctx)
}
