package consolidation

import (
	"errors"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
)

var (
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrPlanUnsafe              = errors.New("plan is unsafe")
	ErrInsufficientCandidates  = errors.New("at least two distinct candidates are required")
	ErrInvalidPlan             = errors.New("invalid consolidation plan")
	ErrResourceNotFound        = errors.New("resource not found")
	ErrConsolidationInProgress = errors.New("consolidation already in progress")
)

// PlanUnsafeError carries the validation result that rejected the plan.
type PlanUnsafeError struct {
	Result models.ValidationResult
}

func (e *PlanUnsafeError) Error() string {
	return fmt.Sprintf("%s: %d unique child records would be lost", ErrPlanUnsafe, len(e.Result.UniqueChildrenLost))
}

func (e *PlanUnsafeError) Is(target error) bool {
	return target == ErrPlanUnsafe
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func invalidPlan(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidPlan, reason)
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrResourceNotFound, fmt.Sprintf(format, args...))
}

// CheckPlan verifies a plan is well formed: a keep ID and at least one distinct remove ID that is not keep.
func CheckPlan(plan models.ConsolidationPlan) error {
	if plan.KeepID == "" {
		return invalidPlan("keep_id is required")
	}
	if len(plan.RemoveIDs) == 0 {
		return invalidPlan("remove_ids must not be empty")
	}
	seen := make(map[string]struct{}, len(plan.RemoveIDs))
	for _, id := range plan.RemoveIDs {
		if id == "" {
			return invalidPlan("remove_ids must not contain empty ids")
		}
		if id == plan.KeepID {
			return invalidPlan(fmt.Sprintf("remove_ids contains keep_id %s", id))
		}
		if _, dup := seen[id]; dup {
			return invalidPlan(fmt.Sprintf("remove_ids contains %s more than once", id))
		}
		seen[id] = struct{}{}
	}
	return nil
}
