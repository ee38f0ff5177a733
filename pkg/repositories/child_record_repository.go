package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const childRecordsTable = "child_records"

var childRecordStruct = database.NewStruct(new(models.ChildRecord))

type ChildRecordRepository struct {
	*Repository
}

func NewChildRecordRepository(db database.DB, logger ectologger.Logger) *ChildRecordRepository {
	return &ChildRecordRepository{Repository: NewRepository(db, logger)}
}

func (r *ChildRecordRepository) ListByParentIDs(ctx context.Context, parentIDs []string) ([]models.ChildRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "ChildRecordRepository.ListByParentIDs")
	defer span.End()

	records := []models.ChildRecord{}
	if len(parentIDs) == 0 {
		return records, nil
	}

	sb := childRecordStruct.SelectFrom(childRecordsTable)
	sb.Where(sb.In("parent_id", database.AnyOf(parentIDs)...)).OrderBy("parent_id", "id")

	query, args := sb.Build()
	if err := r.Conn(ctx).SelectContext(ctx, &records, query, args...); err != nil {
		return nil, internalError(ctx, r.logger, err, map[string]any{"parent_ids": parentIDs}, "failed to list child records")
	}
	return records, nil
}

func (r *ChildRecordRepository) CountByParentID(ctx context.Context, parentID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ChildRecordRepository.CountByParentID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(childRecordsTable).Where(sb.Equal("parent_id", parentID))

	query, args := sb.Build()
	var count int
	if err := r.Conn(ctx).GetContext(ctx, &count, query, args...); err != nil {
		return 0, internalError(ctx, r.logger, err, map[string]any{"parent_id": parentID}, "failed to count child records")
	}
	return count, nil
}

// Repoint moves every child owned by fromIDs under toID in one statement.
func (r *ChildRecordRepository) Repoint(ctx context.Context, fromIDs []string, toID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ChildRecordRepository.Repoint")
	defer span.End()

	if len(fromIDs) == 0 {
		return 0, nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update(childRecordsTable).
		Set(ub.Assign("parent_id", toID), ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))).
		Where(ub.In("parent_id", database.AnyOf(fromIDs)...))

	query, args := ub.Build()
	res, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, internalError(ctx, r.logger, err, map[string]any{"from_ids": fromIDs, "to_id": toID}, "failed to repoint child records")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, internalError(ctx, r.logger, err, map[string]any{"from_ids": fromIDs, "to_id": toID}, "failed to repoint child records")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"from_ids": fromIDs,
		"to_id":    toID,
	}).Debugf("Repointed %d %s", n, childRecordsTable)
	return int(n), nil
}
