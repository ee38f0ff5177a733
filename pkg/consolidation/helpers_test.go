package consolidation_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/Ramsey-B/clover/internal/memstore"
	"github.com/Ramsey-B/clover/pkg/consolidation"
	"github.com/Ramsey-B/clover/pkg/lease"
	"github.com/Ramsey-B/clover/pkg/models"
	"go.uber.org/zap"
)

const (
	internalID = "internal_healthcare_api"
	coreID     = "core_healthcare_api"
)

func testLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

func strPtr(s string) *string {
	return &s
}

// seedHealthcare loads the two duplicate healthcare registrations. internal scores 42, core scores 125.
// When withUnique is set, internal owns GET /unique which core lacks.
func seedHealthcare(store *memstore.Store, withUnique bool) {
	store.PutResource(models.Resource{
		ID:      internalID,
		Name:    "Internal Healthcare API",
		Status:  models.ResourceStatusActive,
		BaseURL: strPtr("https://internal.example.com/healthcare"),
	})
	store.PutResource(models.Resource{
		ID:               coreID,
		Name:             "Core Healthcare API",
		Status:           models.ResourceStatusDraft,
		DocumentationURL: strPtr("https://docs.example.com/healthcare"),
	})

	for i := 0; i < 20; i++ {
		store.PutChild(models.ChildRecord{
			ID:             fmt.Sprintf("core-%02d", i),
			ParentID:       coreID,
			Method:         "GET",
			Path:           fmt.Sprintf("/records/%d", i),
			RequestSchema:  strPtr(`{"type":"object"}`),
			ResponseSchema: strPtr(`{"type":"object"}`),
		})
	}

	shared := 9
	if withUnique {
		shared = 8
		store.PutChild(models.ChildRecord{ID: "internal-unique", ParentID: internalID, Method: "GET", Path: "/unique"})
	}
	for i := 0; i < shared; i++ {
		store.PutChild(models.ChildRecord{
			ID:       fmt.Sprintf("internal-%02d", i),
			ParentID: internalID,
			Method:   "get",
			Path:     fmt.Sprintf("/records/%d", i),
		})
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ConsolidatedEvent
	err    error
}

func (p *recordingPublisher) PublishConsolidated(_ context.Context, event models.ConsolidatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type recordingArchiver struct {
	snapshots []models.ArchiveSnapshot
	err       error
}

func (a *recordingArchiver) Archive(_ context.Context, snapshot models.ArchiveSnapshot) error {
	if a.err != nil {
		return a.err
	}
	a.snapshots = append(a.snapshots, snapshot)
	return nil
}

type harness struct {
	store     *memstore.Store
	leases    *lease.MemoryRegistry
	events    *recordingPublisher
	archiver  *recordingArchiver
	index     *consolidation.ChildRecordIndex
	validator *consolidation.Validator
	executor  *consolidation.Executor
}

type harnessOption func(*consolidation.ExecutorConfig, *consolidation.ValidatorOptions)

func bestEffort() harnessOption {
	return func(cfg *consolidation.ExecutorConfig, _ *consolidation.ValidatorOptions) {
		cfg.Transactional = false
	}
}

func strictSchema() harnessOption {
	return func(_ *consolidation.ExecutorConfig, opts *consolidation.ValidatorOptions) {
		opts.StrictSchema = true
	}
}

func withArchiver(a *recordingArchiver) harnessOption {
	return func(cfg *consolidation.ExecutorConfig, _ *consolidation.ValidatorOptions) {
		cfg.Archiver = a
	}
}

func newHarness(store *memstore.Store, opts ...harnessOption) *harness {
	h := &harness{
		store:  store,
		leases: lease.NewMemoryRegistry(),
		events: &recordingPublisher{},
	}
	logger := testLogger()
	h.index = consolidation.NewChildRecordIndex(store, time.Second, logger)

	cfg := consolidation.ExecutorConfig{
		Resources:     store,
		Children:      store,
		Transactor:    store,
		Leases:        h.leases,
		Runs:          store,
		Events:        h.events,
		Logger:        logger,
		Transactional: true,
		StoreTimeout:  time.Second,
		LeaseTTL:      time.Minute,
	}
	var vopts consolidation.ValidatorOptions
	for _, opt := range opts {
		opt(&cfg, &vopts)
	}
	if a, ok := cfg.Archiver.(*recordingArchiver); ok {
		h.archiver = a
	}

	h.validator = consolidation.NewValidator(h.index, vopts, nil, logger)
	cfg.Validator = h.validator
	h.executor = consolidation.NewExecutor(cfg)
	return h
}
