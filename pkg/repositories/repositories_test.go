package repositories_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	host := os.Getenv("DB_HOST")
	if host == "" {
		t.Skip("DB_HOST not set")
	}
	cfg := database.ConnectionConfig{
		Driver:   "postgres",
		Host:     host,
		Port:     envOr("DB_PORT", "5432"),
		UserName: envOr("DB_USER_NAME", "user"),
		Password: envOr("DB_PASSWORD", "password"),
		Name:     envOr("DB_NAME", "clover"),
		SSLMode:  "disable",
	}
	logger := getTestLogger()
	db, err := database.Connect(context.Background(), cfg, logger)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(logger, database.MigrationConfig{Folder: "../../db/pg"}).Up(db))
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestRepositories_Consolidate(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	logger := getTestLogger()
	resources := repositories.NewResourceRepository(db, logger)
	children := repositories.NewChildRecordRepository(db, logger)

	keep := "keep-" + uuid.NewString()
	dup := "dup-" + uuid.NewString()
	for _, id := range []string{keep, dup} {
		_, err := db.ExecContext(ctx, `INSERT INTO resources (id, name, status) VALUES ($1, $2, 'active')`, id, id)
		require.NoError(t, err)
	}
	_, err := db.ExecContext(ctx, `INSERT INTO child_records (id, parent_id, method, path) VALUES ($1, $2, 'GET', '/a'), ($3, $4, 'GET', '/b')`,
		uuid.NewString(), keep, uuid.NewString(), dup)
	require.NoError(t, err)

	found, err := resources.GetByIDs(ctx, []string{keep, dup, "missing"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	listed, err := children.ListByParentIDs(ctx, []string{keep, dup})
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	// a failed transaction leaves nothing behind
	boom := errors.New("boom")
	err = db.WithTx(ctx, func(ctx context.Context) error {
		if _, err := children.Repoint(ctx, []string{dup}, keep); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	count, err := children.CountByParentID(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = db.WithTx(ctx, func(ctx context.Context) error {
		if err := resources.UpsertChildRecordCount(ctx, keep, 2); err != nil {
			return err
		}
		if _, err := children.Repoint(ctx, []string{dup}, keep); err != nil {
			return err
		}
		_, err := resources.DeleteByIDs(ctx, []string{dup})
		return err
	})
	require.NoError(t, err)

	count, err = children.CountByParentID(ctx, keep)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	removed, err := resources.DeleteByIDs(ctx, []string{dup})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = resources.DeleteByIDs(ctx, []string{keep})
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM child_records WHERE parent_id = $1`, keep)
	require.NoError(t, err)
}

func TestConsolidationRunRepository_RecordUpserts(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	runs := repositories.NewConsolidationRunRepository(db, getTestLogger())

	run := models.ConsolidationRun{
		ID:          uuid.NewString(),
		KeepID:      "keep",
		RemoveIDs:   []string{"a", "b"},
		Status:      models.ConsolidationRunFailed,
		Errors:      []string{"boom"},
		PerformedBy: "tester",
		StartedAt:   time.Now().UTC().Truncate(time.Millisecond),
		FinishedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, runs.Record(ctx, run))

	run.Status = models.ConsolidationRunCompleted
	run.Errors = []string{}
	run.ResourcesRemoved = 2
	require.NoError(t, runs.Record(ctx, run))

	got, err := runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConsolidationRunCompleted, got.Status)
	assert.Equal(t, []string{"a", "b"}, got.RemoveIDs)
	assert.Empty(t, got.Errors)
	assert.Equal(t, 2, got.ResourcesRemoved)
}
