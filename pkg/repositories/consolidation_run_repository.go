package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const consolidationRunsTable = "consolidation_runs"

type consolidationRunRow struct {
	ID                   string                        `db:"id"`
	KeepID               string                        `db:"keep_id"`
	RemoveIDs            database.JSONB[[]string]      `db:"remove_ids"`
	Forced               bool                          `db:"forced"`
	Status               models.ConsolidationRunStatus `db:"status"`
	ChildRecordsMigrated int                           `db:"child_records_migrated"`
	ResourcesRemoved     int                           `db:"resources_removed"`
	Errors               database.JSONB[[]string]      `db:"errors"`
	PerformedBy          string                        `db:"performed_by"`
	StartedAt            time.Time                     `db:"started_at"`
	FinishedAt           time.Time                     `db:"finished_at"`
}

func (row consolidationRunRow) model() models.ConsolidationRun {
	return models.ConsolidationRun{
		ID:                   row.ID,
		KeepID:               row.KeepID,
		RemoveIDs:            row.RemoveIDs.GetValue(),
		Forced:               row.Forced,
		Status:               row.Status,
		ChildRecordsMigrated: row.ChildRecordsMigrated,
		ResourcesRemoved:     row.ResourcesRemoved,
		Errors:               row.Errors.GetValue(),
		PerformedBy:          row.PerformedBy,
		StartedAt:            row.StartedAt,
		FinishedAt:           row.FinishedAt,
	}
}

var consolidationRunStruct = database.NewStruct(new(consolidationRunRow))

type ConsolidationRunRepository struct {
	*Repository
}

func NewConsolidationRunRepository(db database.DB, logger ectologger.Logger) *ConsolidationRunRepository {
	return &ConsolidationRunRepository{Repository: NewRepository(db, logger)}
}

// Record inserts the run, or updates it when the id was already recorded.
func (r *ConsolidationRunRepository) Record(ctx context.Context, run models.ConsolidationRun) error {
	ctx, span := tracing.StartSpan(ctx, "ConsolidationRunRepository.Record")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(consolidationRunsTable).
		Cols("id", "keep_id", "remove_ids", "forced", "status", "child_records_migrated", "resources_removed",
			"errors", "performed_by", "started_at", "finished_at").
		Values(run.ID, run.KeepID, database.NewJSONB(run.RemoveIDs), run.Forced, run.Status, run.ChildRecordsMigrated,
			run.ResourcesRemoved, database.NewJSONB(run.Errors), run.PerformedBy, run.StartedAt, run.FinishedAt)
	ib.OnConflictUpdate([]string{"id"}, "status", "child_records_migrated", "resources_removed", "errors", "finished_at")

	query, args := ib.Build()
	if _, err := r.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return internalError(ctx, r.logger, err, map[string]any{"run_id": run.ID}, "failed to record consolidation run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": run.ID,
		"status": run.Status,
	}).Debugf("Recorded %s", consolidationRunsTable)
	return nil
}

func (r *ConsolidationRunRepository) GetByID(ctx context.Context, id string) (*models.ConsolidationRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ConsolidationRunRepository.GetByID")
	defer span.End()

	sb := consolidationRunStruct.SelectFrom(consolidationRunsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row consolidationRunRow
	err := r.Conn(ctx).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("consolidation run %s does not exist", id)
	}
	if err != nil {
		return nil, internalError(ctx, r.logger, err, map[string]any{"run_id": id}, "failed to get consolidation run")
	}
	run := row.model()
	return &run, nil
}

func (r *ConsolidationRunRepository) ListRecent(ctx context.Context, limit int) ([]models.ConsolidationRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ConsolidationRunRepository.ListRecent")
	defer span.End()

	sb := consolidationRunStruct.SelectFrom(consolidationRunsTable)
	sb.OrderBy("started_at").Desc().Limit(limit)

	query, args := sb.Build()
	rows := []consolidationRunRow{}
	if err := r.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, internalError(ctx, r.logger, err, nil, "failed to list consolidation runs")
	}

	runs := make([]models.ConsolidationRun, len(rows))
	for i, row := range rows {
		runs[i] = row.model()
	}
	return runs, nil
}
