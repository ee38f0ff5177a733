package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const resourcesTable = "resources"

var resourceStruct = database.NewStruct(new(models.Resource))

type ResourceRepository struct {
	*Repository
}

func NewResourceRepository(db database.DB, logger ectologger.Logger) *ResourceRepository {
	return &ResourceRepository{Repository: NewRepository(db, logger)}
}

func (r *ResourceRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Resource, error) {
	ctx, span := tracing.StartSpan(ctx, "ResourceRepository.GetByIDs")
	defer span.End()

	resources := []models.Resource{}
	if len(ids) == 0 {
		return resources, nil
	}

	sb := resourceStruct.SelectFrom(resourcesTable)
	sb.Where(sb.In("id", database.AnyOf(ids)...)).OrderBy("id")

	query, args := sb.Build()
	if err := r.Conn(ctx).SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, internalError(ctx, r.logger, err, map[string]any{"resource_ids": ids}, "failed to get resources")
	}
	return resources, nil
}

func (r *ResourceRepository) ListPage(ctx context.Context, afterID string, limit int) ([]models.Resource, error) {
	ctx, span := tracing.StartSpan(ctx, "ResourceRepository.ListPage")
	defer span.End()

	sb := resourceStruct.SelectFrom(resourcesTable)
	if afterID != "" {
		sb.Where(sb.GreaterThan("id", afterID))
	}
	sb.OrderBy("id").Limit(limit)

	query, args := sb.Build()
	resources := []models.Resource{}
	if err := r.Conn(ctx).SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, internalError(ctx, r.logger, err, map[string]any{"after_id": afterID}, "failed to list resources")
	}
	return resources, nil
}

// UpsertChildRecordCount writes the denormalized counter. A missing row is left alone.
func (r *ResourceRepository) UpsertChildRecordCount(ctx context.Context, id string, count int) error {
	ctx, span := tracing.StartSpan(ctx, "ResourceRepository.UpsertChildRecordCount")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(resourcesTable).
		Set(ub.Assign("child_record_count", count), ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		return internalError(ctx, r.logger, err, map[string]any{"resource_id": id}, "failed to update child record count")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"resource_id":        id,
		"child_record_count": count,
	}).Debugf("Updated %s child record count", resourcesTable)
	return nil
}

func (r *ResourceRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ResourceRepository.DeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	delb := database.NewDeleteBuilder()
	delb.DeleteFrom(resourcesTable).Where(delb.In("id", database.AnyOf(ids)...))

	query, args := delb.Build()
	res, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, internalError(ctx, r.logger, err, map[string]any{"resource_ids": ids}, "failed to delete resources")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, internalError(ctx, r.logger, err, map[string]any{"resource_ids": ids}, "failed to delete resources")
	}

	r.logger.WithContext(ctx).WithField("resource_ids", ids).Debugf("Deleted %d %s", n, resourcesTable)
	return int(n), nil
}
