package consolidation

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
)

const DefaultStoreTimeout = 5 * time.Second

// ChildRecordIndex loads child records grouped by owning resource.
type ChildRecordIndex struct {
	children ChildRecordStore
	timeout  time.Duration
	logger   ectologger.Logger
}

func NewChildRecordIndex(children ChildRecordStore, timeout time.Duration, logger ectologger.Logger) *ChildRecordIndex {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &ChildRecordIndex{children: children, timeout: timeout, logger: logger}
}

// LoadFor returns every child owned by any of ids. Every requested id is present in the map.
// A failed or timed out read aborts the whole call with ErrStoreUnavailable.
func (i *ChildRecordIndex) LoadFor(ctx context.Context, ids []string) (map[string][]models.ChildRecord, error) {
	unique := dedupe(ids)
	grouped := make(map[string][]models.ChildRecord, len(unique))
	for _, id := range unique {
		grouped[id] = []models.ChildRecord{}
	}
	if len(unique) == 0 {
		return grouped, nil
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	records, err := i.children.ListByParentIDs(ctx, unique)
	if err != nil {
		i.logger.WithContext(ctx).WithError(err).WithField("resource_ids", unique).Error("Failed to load child records")
		return nil, storeUnavailable("load child records", err)
	}

	for _, record := range records {
		if _, ok := grouped[record.ParentID]; !ok {
			continue
		}
		grouped[record.ParentID] = append(grouped[record.ParentID], record)
	}
	return grouped, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
