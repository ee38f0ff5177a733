// Package memstore is an in-memory resource store used by tests and the CLI dry runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/Ramsey-B/clover/pkg/models"
)

type Op string

const (
	OpGetResources  Op = "get_resources"
	OpListPage      Op = "list_page"
	OpUpsertCount   Op = "upsert_count"
	OpDelete        Op = "delete_resources"
	OpListChildren  Op = "list_children"
	OpCountChildren Op = "count_children"
	OpRepoint       Op = "repoint"
	OpRecordRun     Op = "record_run"
	OpBeginTx       Op = "begin_tx"
)

type state struct {
	resources map[string]models.Resource
	children  map[string]models.ChildRecord
}

func (s state) clone() state {
	c := state{
		resources: make(map[string]models.Resource, len(s.resources)),
		children:  make(map[string]models.ChildRecord, len(s.children)),
	}
	for k, v := range s.resources {
		c.resources[k] = v
	}
	for k, v := range s.children {
		c.children[k] = v
	}
	return c
}

// Store implements the consolidation store interfaces over maps.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	data     state
	runs     []models.ConsolidationRun
	failures map[Op]error
	calls    map[Op]int
}

func New() *Store {
	return &Store{
		data:     state{resources: map[string]models.Resource{}, children: map[string]models.ChildRecord{}},
		failures: map[Op]error{},
		calls:    map[Op]int{},
	}
}

func (s *Store) PutResource(r models.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.resources[r.ID] = r
}

func (s *Store) PutChild(c models.ChildRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.children[c.ID] = c
}

// Fail makes every later call of op return err. A nil err clears the failure.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Store) Resource(id string) (models.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.resources[id]
	return r, ok
}

func (s *Store) ChildrenOf(parentID string) []models.ChildRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.childrenOf(parentID)
}

func (s *Store) Runs() []models.ConsolidationRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ConsolidationRun(nil), s.runs...)
}

func (s *Store) enter(ctx context.Context, op Op) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failures[op]
}

func (s *Store) childrenOf(parentID string) []models.ChildRecord {
	out := []models.ChildRecord{}
	for _, c := range s.data.children {
		if c.ParentID == parentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpGetResources); err != nil {
		return nil, err
	}
	out := []models.Resource{}
	seen := map[string]bool{}
	for _, id := range ids {
		if r, ok := s.data.resources[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ListPage(ctx context.Context, afterID string, limit int) ([]models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListPage); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.data.resources))
	for id := range s.data.resources {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]models.Resource, len(ids))
	for i, id := range ids {
		out[i] = s.data.resources[id]
	}
	return out, nil
}

func (s *Store) UpsertChildRecordCount(ctx context.Context, id string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpUpsertCount); err != nil {
		return err
	}
	// a missing row stays missing, as with an UPDATE that matches nothing
	r, ok := s.data.resources[id]
	if !ok {
		return nil
	}
	r.ChildRecordCount = count
	s.data.resources[id] = r
	return nil
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDelete); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, ok := s.data.resources[id]; ok {
			delete(s.data.resources, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListByParentIDs(ctx context.Context, parentIDs []string) ([]models.ChildRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListChildren); err != nil {
		return nil, err
	}
	out := []models.ChildRecord{}
	for _, id := range parentIDs {
		out = append(out, s.childrenOf(id)...)
	}
	return out, nil
}

func (s *Store) CountByParentID(ctx context.Context, parentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpCountChildren); err != nil {
		return 0, err
	}
	return len(s.childrenOf(parentID)), nil
}

func (s *Store) Repoint(ctx context.Context, fromIDs []string, toID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpRepoint); err != nil {
		return 0, err
	}
	from := map[string]bool{}
	for _, id := range fromIDs {
		from[id] = true
	}
	n := 0
	for id, c := range s.data.children {
		if from[c.ParentID] {
			c.ParentID = toID
			s.data.children[id] = c
			n++
		}
	}
	return n, nil
}

func (s *Store) Record(ctx context.Context, run models.ConsolidationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpRecordRun); err != nil {
		return err
	}
	s.runs = append(s.runs, run)
	return nil
}

// WithTx snapshots the data, runs fn and restores the snapshot when fn fails. Transactions are serialized.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if err := s.enter(ctx, OpBeginTx); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}
