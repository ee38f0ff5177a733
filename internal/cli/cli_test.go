package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/internal/memstore"
	"github.com/Ramsey-B/clover/pkg/lease"
	"github.com/Ramsey-B/clover/pkg/models"
	routes "github.com/Ramsey-B/clover/pkg/routes/consolidation"
)

func newStore() *memstore.Store {
	store := memstore.New()
	for _, id := range []string{"orders", "orders_service"} {
		store.PutResource(models.Resource{ID: id, Name: strings.ReplaceAll(id, "_", " "), Status: models.ResourceStatusActive})
	}
	store.PutChild(models.ChildRecord{ID: "c1", ParentID: "orders", Method: "GET", Path: "/orders"})
	store.PutChild(models.ChildRecord{ID: "c2", ParentID: "orders", Method: "POST", Path: "/orders"})
	store.PutChild(models.ChildRecord{ID: "c3", ParentID: "orders_service", Method: "get", Path: "/orders"})
	return store
}

func factoryFor(t *testing.T, store *memstore.Store) ServiceFactory {
	cfg, err := config.Load()
	require.NoError(t, err)
	engine := app.Build(app.EngineDeps{
		Resources:  store,
		Children:   store,
		Transactor: store,
		Runs:       store,
		Leases:     lease.NewMemoryRegistry(),
	}, cfg, zapadapter.NewZapEctoLogger(zap.NewNop(), nil))

	return func(context.Context) (routes.Service, func(), error) {
		return engine, func() {}, nil
	}
}

func execute(t *testing.T, factory ServiceFactory, stdin string, args ...string) (string, error) {
	cmd := NewRootCommand(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writePlan(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestGroups(t *testing.T) {
	out, err := execute(t, factoryFor(t, newStore()), "", "groups")
	require.NoError(t, err)

	var groups []models.DuplicateGroup
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"orders", "orders_service"}, groups[0].ResourceIDs)
}

func TestRecommend(t *testing.T) {
	out, err := execute(t, factoryFor(t, newStore()), "", "recommend", "orders", "orders_service")
	require.NoError(t, err)

	var rec models.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "orders", rec.Keep)
	assert.Equal(t, []string{"orders_service"}, rec.Remove)
}

func TestRecommend_NeedsTwoIDs(t *testing.T) {
	_, err := execute(t, factoryFor(t, newStore()), "", "recommend", "orders")
	assert.Error(t, err)
}

func TestValidate_ReadsYAML(t *testing.T) {
	plan := writePlan(t, "keep_id: orders\nremove_ids:\n  - orders_service\n")

	out, err := execute(t, factoryFor(t, newStore()), "", "validate", "-f", plan)
	require.NoError(t, err)

	var result models.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.SafeToRemove)
}

func TestValidate_UnsafePlanFails(t *testing.T) {
	out, err := execute(t, factoryFor(t, newStore()), `{"keep_id":"orders_service","remove_ids":["orders"]}`, "validate", "-f", "-")
	require.Error(t, err)

	var result models.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.SafeToRemove)
	assert.Len(t, result.UniqueChildrenLost, 1)
}

func TestValidate_RejectsMalformedPlan(t *testing.T) {
	plan := writePlan(t, "keep_id: orders\n")

	_, err := execute(t, factoryFor(t, newStore()), "", "validate", "-f", plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid plan")
}

func TestConsolidate(t *testing.T) {
	store := newStore()
	plan := writePlan(t, "keep_id: orders\nremove_ids: [orders_service]\n")

	out, err := execute(t, factoryFor(t, store), "", "consolidate", "-f", plan, "--actor", "ops-bot")
	require.NoError(t, err)

	var result models.MigrationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.ResourcesRemoved)
	assert.Equal(t, 3, result.ChildRecordCount)

	_, ok := store.Resource("orders_service")
	assert.False(t, ok)
	require.Len(t, store.Runs(), 1)
	assert.Equal(t, "ops-bot", store.Runs()[0].PerformedBy)
}

func TestConsolidate_UnsafeNeedsForce(t *testing.T) {
	store := newStore()
	plan := writePlan(t, "keep_id: orders_service\nremove_ids: [orders]\n")

	_, err := execute(t, factoryFor(t, store), "", "consolidate", "-f", plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
	_, ok := store.Resource("orders")
	assert.True(t, ok)

	_, err = execute(t, factoryFor(t, store), "", "consolidate", "-f", plan, "--force")
	require.NoError(t, err)
	assert.Len(t, store.ChildrenOf("orders_service"), 3)
}

func TestFactoryErrorIsReturned(t *testing.T) {
	failing := func(context.Context) (routes.Service, func(), error) {
		return nil, nil, fmt.Errorf("connection refused")
	}
	_, err := execute(t, failing, "", "groups")
	assert.EqualError(t, err, "connection refused")
}
