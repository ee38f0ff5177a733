package consolidation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/lease"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultLeaseTTL = 2 * time.Minute

type ExecutorConfig struct {
	Resources  ResourceStore
	Children   ChildRecordStore
	Transactor Transactor
	Validator  *Validator
	Leases     lease.Registry
	Runs       RunRecorder
	Events     EventPublisher
	Archiver   Archiver
	Metrics    MetricsRecorder
	Logger     ectologger.Logger

	// Transactional runs the mutation steps in one transaction. Ignored when Transactor is nil.
	Transactional bool
	StoreTimeout  time.Duration
	LeaseTTL      time.Duration
}

// Executor repoints child records onto the surviving resource and deletes the duplicates.
type Executor struct {
	resources     ResourceStore
	children      ChildRecordStore
	transactor    Transactor
	validator     *Validator
	leases        lease.Registry
	runs          RunRecorder
	events        EventPublisher
	archiver      Archiver
	metrics       MetricsRecorder
	logger        ectologger.Logger
	transactional bool
	timeout       time.Duration
	leaseTTL      time.Duration
	now           func() time.Time
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		resources:     cfg.Resources,
		children:      cfg.Children,
		transactor:    cfg.Transactor,
		validator:     cfg.Validator,
		leases:        cfg.Leases,
		runs:          cfg.Runs,
		events:        cfg.Events,
		archiver:      cfg.Archiver,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		transactional: cfg.Transactional && cfg.Transactor != nil,
		timeout:       cfg.StoreTimeout,
		leaseTTL:      cfg.LeaseTTL,
		now:           time.Now,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultStoreTimeout
	}
	if e.leaseTTL <= 0 {
		e.leaseTTL = DefaultLeaseTTL
	}
	if e.leases == nil {
		e.leases = lease.NewMemoryRegistry()
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	return e
}

// Execute validates plan again and, when safe or forced, migrates it. Once the lease is held the
// caller's cancellation no longer applies.
func (e *Executor) Execute(ctx context.Context, plan models.ConsolidationPlan, force bool) (models.MigrationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "consolidation.Execute",
		attribute.String("consolidation.keep_id", plan.KeepID),
		attribute.Int("consolidation.remove_count", len(plan.RemoveIDs)),
		attribute.Bool("consolidation.force", force),
	)
	defer span.End()

	result, err := e.execute(ctx, plan, force)
	tracing.Fail(span, err)
	return result, err
}

func (e *Executor) execute(ctx context.Context, plan models.ConsolidationPlan, force bool) (models.MigrationResult, error) {
	if err := CheckPlan(plan); err != nil {
		return models.MigrationResult{}, err
	}

	held, err := e.leases.Acquire(ctx, plan.IDs(), e.leaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			e.metrics.ObserveLeaseConflict()
			return models.MigrationResult{}, fmt.Errorf("%w: %s", ErrConsolidationInProgress, plan.KeepID)
		}
		return models.MigrationResult{}, storeUnavailable("acquire lease", err)
	}

	ctx = context.WithoutCancel(ctx)
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"keep_id":    plan.KeepID,
		"remove_ids": plan.RemoveIDs,
		"force":      force,
	})
	defer func() {
		if err := e.leases.Release(ctx, held); err != nil {
			log.WithError(err).Warn("Failed to release consolidation lease")
		}
	}()

	run := models.ConsolidationRun{
		ID:          uuid.New().String(),
		KeepID:      plan.KeepID,
		RemoveIDs:   plan.RemoveIDs,
		Forced:      force,
		PerformedBy: appctx.GetActor(ctx),
		StartedAt:   e.now(),
	}

	effective, removed, skipped, err := e.resolve(ctx, plan)
	if err != nil {
		return models.MigrationResult{}, err
	}
	if len(skipped) > 0 {
		log.WithField("skipped_ids", skipped).Info("Some remove ids no longer exist, skipping them")
	}

	validation, children, err := e.validator.validate(ctx, effective)
	if err != nil {
		return models.MigrationResult{}, err
	}
	if !validation.SafeToRemove && !force {
		run.Status = models.ConsolidationRunRejected
		e.finish(ctx, run, nil)
		log.WithField("unique_children_lost", len(validation.UniqueChildrenLost)).Info("Consolidation rejected as unsafe")
		return models.MigrationResult{}, &PlanUnsafeError{Result: validation}
	}

	result := models.MigrationResult{
		RunID:         run.ID,
		KeepID:        effective.KeepID,
		RemovedIDs:    effective.RemoveIDs,
		SkippedIDs:    skipped,
		Forced:        force,
		Transactional: e.transactional,
		Errors:        []string{},
	}
	result.ChildRecordCount = len(children[effective.KeepID])
	for _, id := range effective.RemoveIDs {
		result.ChildRecordCount += len(children[id])
	}

	if e.archiver != nil {
		if err := e.archive(ctx, run.ID, effective, removed, children); err != nil {
			run.Status = models.ConsolidationRunFailed
			run.Errors = []string{err.Error()}
			e.finish(ctx, run, nil)
			log.WithError(err).Error("Failed to archive resources before consolidation")
			return models.MigrationResult{}, storeUnavailable("archive", err)
		}
	}

	if e.transactional {
		err = e.transactor.WithTx(ctx, func(txCtx context.Context) error {
			return e.mutate(txCtx, effective, &result)
		})
		if err != nil {
			run.Status = models.ConsolidationRunFailed
			run.Errors = []string{err.Error()}
			e.finish(ctx, run, nil)
			log.WithError(err).Error("Consolidation rolled back")
			return models.MigrationResult{}, storeUnavailable("consolidate", err)
		}
	} else {
		e.mutateBestEffort(ctx, effective, &result)
	}

	run.Status = models.ConsolidationRunCompleted
	if len(result.Errors) > 0 {
		run.Status = models.ConsolidationRunPartial
	}
	run.ChildRecordsMigrated = result.ChildRecordsMigrated
	run.ResourcesRemoved = result.ResourcesRemoved
	run.Errors = result.Errors
	e.finish(ctx, run, &result)

	log.WithFields(map[string]any{
		"run_id":                 run.ID,
		"status":                 run.Status,
		"child_records_migrated": result.ChildRecordsMigrated,
		"resources_removed":      result.ResourcesRemoved,
		"errors":                 len(result.Errors),
	}).Info("Consolidation finished")

	return result, nil
}

// resolve drops remove ids that no longer exist. A missing keep, or nothing left to remove, is ErrResourceNotFound.
func (e *Executor) resolve(ctx context.Context, plan models.ConsolidationPlan) (models.ConsolidationPlan, []models.Resource, []string, error) {
	loadCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	found, err := e.resources.GetByIDs(loadCtx, plan.IDs())
	if err != nil {
		return plan, nil, nil, storeUnavailable("load resources", err)
	}
	byID := make(map[string]models.Resource, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}

	if _, ok := byID[plan.KeepID]; !ok {
		return plan, nil, nil, notFound("keep resource %s", plan.KeepID)
	}

	effective := models.ConsolidationPlan{KeepID: plan.KeepID}
	var removed []models.Resource
	skipped := []string{}
	for _, id := range plan.RemoveIDs {
		r, ok := byID[id]
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		effective.RemoveIDs = append(effective.RemoveIDs, id)
		removed = append(removed, r)
	}
	if len(effective.RemoveIDs) == 0 {
		return plan, nil, nil, notFound("plan already applied, none of %v exist", plan.RemoveIDs)
	}
	return effective, removed, skipped, nil
}

func (e *Executor) archive(ctx context.Context, runID string, plan models.ConsolidationPlan, removed []models.Resource, children map[string][]models.ChildRecord) error {
	snapshot := models.ArchiveSnapshot{
		RunID:        runID,
		KeepID:       plan.KeepID,
		Resources:    removed,
		ChildRecords: []models.ChildRecord{},
		TakenAt:      e.now(),
	}
	for _, id := range plan.RemoveIDs {
		snapshot.ChildRecords = append(snapshot.ChildRecords, children[id]...)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.archiver.Archive(ctx, snapshot)
}

// mutate stops at the first failing step so the surrounding transaction rolls back.
func (e *Executor) mutate(ctx context.Context, plan models.ConsolidationPlan, result *models.MigrationResult) error {
	if err := e.persistCount(ctx, plan.KeepID, result.ChildRecordCount); err != nil {
		return err
	}
	migrated, err := e.repoint(ctx, plan)
	if err != nil {
		return err
	}
	removed, err := e.deleteRemoved(ctx, plan)
	if err != nil {
		return err
	}
	result.ChildRecordsMigrated = migrated
	result.ResourcesRemoved = removed
	return nil
}

// mutateBestEffort keeps going past a failed step where that is safe. Each step is idempotent, so
// running the same plan again converges. Resources are never deleted while they may still own
// child records, otherwise a rerun would find nothing to repoint from.
func (e *Executor) mutateBestEffort(ctx context.Context, plan models.ConsolidationPlan, result *models.MigrationResult) {
	if err := e.persistCount(ctx, plan.KeepID, result.ChildRecordCount); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	migrated, err := e.repoint(ctx, plan)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Errors = append(result.Errors, fmt.Sprintf("skipped deleting resources %v: child records were not repointed", plan.RemoveIDs))
	} else {
		result.ChildRecordsMigrated = migrated
		if removed, err := e.deleteRemoved(ctx, plan); err != nil {
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.ResourcesRemoved = removed
		}
	}

	if len(result.Errors) == 0 {
		return
	}

	// reconcile the counter with whatever actually landed
	count, err := e.recount(ctx, plan.KeepID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return
	}
	if err := e.persistCount(ctx, plan.KeepID, count); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return
	}
	result.ChildRecordCount = count
}

func (e *Executor) persistCount(ctx context.Context, keepID string, count int) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.resources.UpsertChildRecordCount(ctx, keepID, count); err != nil {
		return fmt.Errorf("update child record count of %s: %w", keepID, err)
	}
	return nil
}

func (e *Executor) repoint(ctx context.Context, plan models.ConsolidationPlan) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	n, err := e.children.Repoint(ctx, plan.RemoveIDs, plan.KeepID)
	if err != nil {
		return 0, fmt.Errorf("repoint child records onto %s: %w", plan.KeepID, err)
	}
	return n, nil
}

func (e *Executor) deleteRemoved(ctx context.Context, plan models.ConsolidationPlan) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	n, err := e.resources.DeleteByIDs(ctx, plan.RemoveIDs)
	if err != nil {
		return 0, fmt.Errorf("delete resources %v: %w", plan.RemoveIDs, err)
	}
	return n, nil
}

func (e *Executor) recount(ctx context.Context, keepID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	n, err := e.children.CountByParentID(ctx, keepID)
	if err != nil {
		return 0, fmt.Errorf("recount child records of %s: %w", keepID, err)
	}
	return n, nil
}

// finish records the audit row, publishes the event and metrics. Failures are logged only.
func (e *Executor) finish(ctx context.Context, run models.ConsolidationRun, result *models.MigrationResult) {
	run.FinishedAt = e.now()
	if run.Errors == nil {
		run.Errors = []string{}
	}
	run.RemoveIDs = append([]string(nil), run.RemoveIDs...)
	sort.Strings(run.RemoveIDs)
	log := e.logger.WithContext(ctx).WithField("run_id", run.ID)

	if e.runs != nil {
		recCtx, cancel := context.WithTimeout(ctx, e.timeout)
		if err := e.runs.Record(recCtx, run); err != nil {
			log.WithError(err).Warn("Failed to record consolidation run")
		}
		cancel()
	}

	e.metrics.ObserveRun(run.Status, run.ChildRecordsMigrated, run.ResourcesRemoved, run.FinishedAt.Sub(run.StartedAt).Seconds())

	if result == nil || e.events == nil {
		return
	}
	event := models.ConsolidatedEvent{
		RunID:                run.ID,
		KeepID:               run.KeepID,
		RemovedIDs:           result.RemovedIDs,
		Status:               run.Status,
		ChildRecordsMigrated: run.ChildRecordsMigrated,
		ResourcesRemoved:     run.ResourcesRemoved,
		Forced:               run.Forced,
		PerformedBy:          run.PerformedBy,
		Timestamp:            run.FinishedAt,
	}
	pubCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.events.PublishConsolidated(pubCtx, event); err != nil {
		log.WithError(err).Warn("Failed to publish consolidation event")
	}
}
