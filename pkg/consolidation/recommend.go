package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
)

// HighConfidenceRatio is how far the top score must lead the runner-up for a high confidence pick.
const HighConfidenceRatio = 1.2

type Recommender struct {
	resources ResourceStore
	index     *ChildRecordIndex
	scoring   *ScoringEngine
	timeout   time.Duration
	metrics   MetricsRecorder
	logger    ectologger.Logger
}

func NewRecommender(resources ResourceStore, index *ChildRecordIndex, scoring *ScoringEngine, timeout time.Duration, metrics MetricsRecorder, logger ectologger.Logger) *Recommender {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Recommender{resources: resources, index: index, scoring: scoring, timeout: timeout, metrics: metrics, logger: logger}
}

// Recommend picks the highest scoring candidate as keep and everything else as remove.
func (r *Recommender) Recommend(ctx context.Context, candidateIDs []string) (models.Recommendation, error) {
	ids := dedupe(candidateIDs)
	if len(ids) < 2 {
		return models.Recommendation{}, ErrInsufficientCandidates
	}

	loadCtx, cancel := context.WithTimeout(ctx, r.timeout)
	resources, err := r.resources.GetByIDs(loadCtx, ids)
	cancel()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load candidate resources")
		return models.Recommendation{}, storeUnavailable("load resources", err)
	}

	found := ectolinq.Map(resources, func(res models.Resource) string { return res.ID })
	missing := ectolinq.Filter(ids, func(id string) bool { return !ectolinq.Contains(found, id) })
	if len(missing) > 0 {
		return models.Recommendation{}, notFound("candidates %v", missing)
	}

	children, err := r.index.LoadFor(ctx, ids)
	if err != nil {
		return models.Recommendation{}, err
	}

	ranked := r.scoring.Rank(resources, children)
	rec := models.Recommendation{
		Keep:       ranked[0].ResourceID,
		Remove:     ectolinq.Map(ranked[1:], func(b models.ScoreBreakdown) string { return b.ResourceID }),
		Confidence: ConfidenceOf(ranked[0].Score, ranked[1].Score),
		Scores:     ranked,
	}
	r.metrics.ObserveRecommendation(rec.Confidence)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"keep":       rec.Keep,
		"remove":     rec.Remove,
		"confidence": rec.Confidence,
		"top_score":  fmt.Sprintf("%.2f", ranked[0].Score),
	}).Debug("Recommended consolidation")

	return rec, nil
}

func ConfidenceOf(top, second float64) models.Confidence {
	if top > HighConfidenceRatio*second {
		return models.ConfidenceHigh
	}
	return models.ConfidenceMedium
}
