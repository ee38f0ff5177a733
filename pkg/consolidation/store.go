package consolidation

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ResourceStore is the resources table as seen by the engine.
type ResourceStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.Resource, error)
	// ListPage returns up to limit resources ordered by id, starting after afterID.
	ListPage(ctx context.Context, afterID string, limit int) ([]models.Resource, error)
	UpsertChildRecordCount(ctx context.Context, id string, count int) error
	// DeleteByIDs deletes the rows still present and reports how many went.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// ChildRecordStore is the child_records table as seen by the engine.
type ChildRecordStore interface {
	ListByParentIDs(ctx context.Context, parentIDs []string) ([]models.ChildRecord, error)
	CountByParentID(ctx context.Context, parentID string) (int, error)
	// Repoint moves every child owned by one of fromIDs under toID and reports how many moved.
	Repoint(ctx context.Context, fromIDs []string, toID string) (int, error)
}

// Transactor runs fn inside one store transaction. Stores that join the transaction read it from ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type RunRecorder interface {
	Record(ctx context.Context, run models.ConsolidationRun) error
}

type EventPublisher interface {
	PublishConsolidated(ctx context.Context, event models.ConsolidatedEvent) error
}

type Archiver interface {
	Archive(ctx context.Context, snapshot models.ArchiveSnapshot) error
}

type MetricsRecorder interface {
	ObserveRun(status models.ConsolidationRunStatus, migrated, removed int, seconds float64)
	ObserveValidation(safe bool)
	ObserveRecommendation(confidence models.Confidence)
	ObserveLeaseConflict()
}
