package consolidation

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
)

type ValidatorOptions struct {
	// StrictSchema treats any schema coverage loss as unsafe.
	StrictSchema bool
}

type Validator struct {
	index   *ChildRecordIndex
	options ValidatorOptions
	metrics MetricsRecorder
	logger  ectologger.Logger
}

func NewValidator(index *ChildRecordIndex, options ValidatorOptions, metrics MetricsRecorder, logger ectologger.Logger) *Validator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Validator{index: index, options: options, metrics: metrics, logger: logger}
}

// Validate reports whether removing plan.RemoveIDs loses any (method, path) that keep does not also own.
func (v *Validator) Validate(ctx context.Context, plan models.ConsolidationPlan) (models.ValidationResult, error) {
	if err := CheckPlan(plan); err != nil {
		return models.ValidationResult{}, err
	}
	result, _, err := v.validate(ctx, plan)
	return result, err
}

// validate also hands back the children it loaded so the executor can count them.
func (v *Validator) validate(ctx context.Context, plan models.ConsolidationPlan) (models.ValidationResult, map[string][]models.ChildRecord, error) {
	children, err := v.index.LoadFor(ctx, plan.IDs())
	if err != nil {
		return models.ValidationResult{}, nil, err
	}

	result := Evaluate(plan, children, v.options)
	v.metrics.ObserveValidation(result.SafeToRemove)

	v.logger.WithContext(ctx).WithFields(map[string]any{
		"keep_id":               plan.KeepID,
		"remove_ids":            plan.RemoveIDs,
		"safe_to_remove":        result.SafeToRemove,
		"unique_children_lost":  len(result.UniqueChildrenLost),
		"schema_coverage_delta": result.SchemaCoverageDelta,
	}).Debug("Validated consolidation plan")

	return result, children, nil
}

// Evaluate is the pure part of Validate over already loaded children.
func Evaluate(plan models.ConsolidationPlan, children map[string][]models.ChildRecord, options ValidatorOptions) models.ValidationResult {
	keepSchema := map[models.ChildKey]bool{}
	for _, child := range children[plan.KeepID] {
		keepSchema[child.Key()] = keepSchema[child.Key()] || child.HasSchema()
	}

	result := models.ValidationResult{
		UniqueChildrenLost: []models.ChildRecordRef{},
		Notes:              []string{},
	}

	removeKeys := map[models.ChildKey]bool{}
	removeSchemas := 0
	noted := map[models.ChildKey]bool{}
	for _, removeID := range plan.RemoveIDs {
		for _, child := range children[removeID] {
			key := child.Key()
			removeKeys[key] = true
			if child.HasSchema() {
				removeSchemas++
			}
			hasKeep, overlaps := keepSchema[key]
			if !overlaps {
				result.UniqueChildrenLost = append(result.UniqueChildrenLost, child.Ref())
				continue
			}
			if child.HasSchema() && !hasKeep && !noted[key] {
				noted[key] = true
				result.Notes = append(result.Notes, fmt.Sprintf("%s %s: schema present on %s but missing on %s", key.Method, key.Path, removeID, plan.KeepID))
			}
		}
	}

	// every schema on the remove side, less the keep-side schemas on keys both sides share
	keepSchemaOnOverlap := 0
	for _, child := range children[plan.KeepID] {
		if removeKeys[child.Key()] && child.HasSchema() {
			keepSchemaOnOverlap++
		}
	}
	result.SchemaCoverageDelta = removeSchemas - keepSchemaOnOverlap

	sort.SliceStable(result.UniqueChildrenLost, func(i, j int) bool {
		a, b := result.UniqueChildrenLost[i], result.UniqueChildrenLost[j]
		if a.ParentID != b.ParentID {
			return a.ParentID < b.ParentID
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.ID < b.ID
	})

	result.SafeToRemove = len(result.UniqueChildrenLost) == 0
	if len(result.UniqueChildrenLost) > 0 {
		result.Notes = append(result.Notes, fmt.Sprintf("%d child records exist only on removed resources", len(result.UniqueChildrenLost)))
	}
	if result.SchemaCoverageDelta > 0 {
		result.Notes = append(result.Notes, fmt.Sprintf("schema coverage would drop by %d", result.SchemaCoverageDelta))
		if options.StrictSchema {
			result.SafeToRemove = false
		}
	}
	return result
}
