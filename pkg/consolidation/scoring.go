package consolidation

import (
	"sort"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Ramsey-B/clover/pkg/models"
)

// ScoringWeights are the multipliers applied to each authority signal of a resource.
type ScoringWeights struct {
	ChildRecord    float64
	Schema         float64
	Documentation  float64
	Active         float64
	BaseURL        float64
	CanonicalName  float64
	CanonicalNames []string
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		ChildRecord:   3.0,
		Schema:        2.5,
		Documentation: 15,
		Active:        10,
		BaseURL:       5,
		CanonicalName: 5,
	}
}

// ScoringEngine is pure: the same resource and children always produce the same score.
type ScoringEngine struct {
	weights   ScoringWeights
	canonical map[string]struct{}
}

func NewScoringEngine(weights ScoringWeights) *ScoringEngine {
	canonical := make(map[string]struct{}, len(weights.CanonicalNames))
	for _, name := range weights.CanonicalNames {
		if strings.TrimSpace(name) == "" {
			continue
		}
		canonical[name] = struct{}{}
	}
	return &ScoringEngine{weights: weights, canonical: canonical}
}

func (e *ScoringEngine) Score(resource models.Resource, children []models.ChildRecord) float64 {
	return e.Breakdown(resource, children).Score
}

func (e *ScoringEngine) Breakdown(resource models.Resource, children []models.ChildRecord) models.ScoreBreakdown {
	withSchema := len(ectolinq.Filter(children, func(c models.ChildRecord) bool {
		return c.HasSchema()
	}))

	b := models.ScoreBreakdown{
		ResourceID:   resource.ID,
		Name:         resource.Name,
		ChildRecords: e.weights.ChildRecord * float64(len(children)),
		Schemas:      e.weights.Schema * float64(withSchema),
	}
	if resource.HasDocumentationURL() {
		b.Documentation = e.weights.Documentation
	}
	if resource.Status == models.ResourceStatusActive {
		b.Active = e.weights.Active
	}
	if resource.HasBaseURL() {
		b.BaseURL = e.weights.BaseURL
	}
	if _, ok := e.canonical[resource.Name]; ok {
		b.CanonicalName = e.weights.CanonicalName
	}
	b.Score = b.ChildRecords + b.Schemas + b.Documentation + b.Active + b.BaseURL + b.CanonicalName
	return b
}

// Rank scores every resource and orders them best first. Equal scores fall back to the smaller ID.
func (e *ScoringEngine) Rank(resources []models.Resource, children map[string][]models.ChildRecord) []models.ScoreBreakdown {
	ranked := ectolinq.Map(resources, func(r models.Resource) models.ScoreBreakdown {
		return e.Breakdown(r, children[r.ID])
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ResourceID < ranked[j].ResourceID
	})
	return ranked
}
