package consolidation_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	engine "github.com/Ramsey-B/clover/pkg/consolidation"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	routes "github.com/Ramsey-B/clover/pkg/routes/consolidation"
)

type fakeService struct {
	recommendIDs []string
	force        bool
	recommend    func([]string) (models.Recommendation, error)
	validate     func(models.ConsolidationPlan) (models.ValidationResult, error)
	execute      func(models.ConsolidationPlan) (models.MigrationResult, error)
	discover     func() ([]models.DuplicateGroup, error)
}

func (f *fakeService) Recommend(_ context.Context, ids []string) (models.Recommendation, error) {
	f.recommendIDs = ids
	return f.recommend(ids)
}

func (f *fakeService) Validate(_ context.Context, plan models.ConsolidationPlan) (models.ValidationResult, error) {
	return f.validate(plan)
}

func (f *fakeService) Execute(_ context.Context, plan models.ConsolidationPlan, force bool) (models.MigrationResult, error) {
	f.force = force
	return f.execute(plan)
}

func (f *fakeService) Discover(context.Context) ([]models.DuplicateGroup, error) {
	return f.discover()
}

type fakeRuns struct {
	runs map[string]models.ConsolidationRun
}

func (f *fakeRuns) GetByID(_ context.Context, id string) (*models.ConsolidationRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, repositories.NotFound("consolidation run %s not found", id)
	}
	return &run, nil
}

func (f *fakeRuns) ListRecent(_ context.Context, limit int) ([]models.ConsolidationRun, error) {
	var out []models.ConsolidationRun
	for _, run := range f.runs {
		out = append(out, run)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newServer(svc *fakeService, runs routes.RunReader) *echo.Echo {
	logger := zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	routes.NewHandler(svc, runs, logger).Register(e.Group("/api/v1/consolidation"))
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRecommend_SplitsCandidateIDs(t *testing.T) {
	svc := &fakeService{recommend: func(ids []string) (models.Recommendation, error) {
		return models.Recommendation{Keep: ids[0], Remove: ids[1:], Confidence: models.ConfidenceHigh}, nil
	}}
	e := newServer(svc, nil)

	rec := do(e, http.MethodGet, "/api/v1/consolidation/recommendation?candidate_ids=a,%20b&candidate_ids=c", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "b", "c"}, svc.recommendIDs)

	var body models.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a", body.Keep)
	assert.Equal(t, models.ConfidenceHigh, body.Confidence)
}

func TestRecommend_InsufficientCandidates(t *testing.T) {
	svc := &fakeService{recommend: func([]string) (models.Recommendation, error) {
		return models.Recommendation{}, engine.ErrInsufficientCandidates
	}}
	e := newServer(svc, nil)

	rec := do(e, http.MethodGet, "/api/v1/consolidation/recommendation?candidate_ids=a", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.RequestID)
}

func TestValidate(t *testing.T) {
	svc := &fakeService{validate: func(plan models.ConsolidationPlan) (models.ValidationResult, error) {
		assert.Equal(t, "keep", plan.KeepID)
		return models.ValidationResult{
			SafeToRemove:       false,
			UniqueChildrenLost: []models.ChildRecordRef{{ID: "child-1", ParentID: "rm", Method: "GET", Path: "/x"}},
		}, nil
	}}
	e := newServer(svc, nil)

	rec := do(e, http.MethodPost, "/api/v1/consolidation/validate", `{"keep_id":"keep","remove_ids":["rm"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body models.ValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.SafeToRemove)
	assert.Len(t, body.UniqueChildrenLost, 1)
}

func TestValidate_RejectsMissingKeep(t *testing.T) {
	e := newServer(&fakeService{}, nil)

	rec := do(e, http.MethodPost, "/api/v1/consolidation/validate", `{"remove_ids":["rm"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/consolidation/validate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsolidate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid plan", fmt.Errorf("%w: keep listed in remove", engine.ErrInvalidPlan), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: rm", engine.ErrResourceNotFound), http.StatusNotFound},
		{"in progress", engine.ErrConsolidationInProgress, http.StatusConflict},
		{"store down", fmt.Errorf("%w: delete: boom", engine.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"store down over repository error", fmt.Errorf("%w: load: %w", engine.ErrStoreUnavailable, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resources")), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{execute: func(models.ConsolidationPlan) (models.MigrationResult, error) {
				return models.MigrationResult{}, tt.err
			}}
			e := newServer(svc, nil)

			rec := do(e, http.MethodPost, "/api/v1/consolidation/consolidate", `{"keep_id":"keep","remove_ids":["rm"]}`)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestConsolidate_PlanUnsafeReturnsValidation(t *testing.T) {
	result := models.ValidationResult{
		UniqueChildrenLost: []models.ChildRecordRef{{ID: "child-1", ParentID: "rm", Method: "DELETE", Path: "/patients/{id}"}},
		Notes:              []string{"1 child record exists only on resources marked for removal"},
	}
	svc := &fakeService{execute: func(models.ConsolidationPlan) (models.MigrationResult, error) {
		return models.MigrationResult{}, &engine.PlanUnsafeError{Result: result}
	}}
	e := newServer(svc, nil)

	rec := do(e, http.MethodPost, "/api/v1/consolidation/consolidate", `{"keep_id":"keep","remove_ids":["rm"]}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body routes.PlanUnsafeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, result.UniqueChildrenLost, body.Validation.UniqueChildrenLost)
	assert.NotEmpty(t, body.Message)
}

func TestConsolidate_PassesForce(t *testing.T) {
	svc := &fakeService{execute: func(plan models.ConsolidationPlan) (models.MigrationResult, error) {
		return models.MigrationResult{KeepID: plan.KeepID, RemovedIDs: plan.RemoveIDs, ResourcesRemoved: 1, Forced: true}, nil
	}}
	e := newServer(svc, nil)

	rec := do(e, http.MethodPost, "/api/v1/consolidation/consolidate", `{"keep_id":"keep","remove_ids":["rm"],"force":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.force)
	var body models.MigrationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.ResourcesRemoved)
}

func TestGroups(t *testing.T) {
	svc := &fakeService{discover: func() ([]models.DuplicateGroup, error) {
		return []models.DuplicateGroup{{Key: "healthcare", Reason: models.DuplicateReasonName, ResourceIDs: []string{"a", "b"}}}, nil
	}}
	e := newServer(svc, nil)

	rec := do(e, http.MethodGet, "/api/v1/consolidation/groups", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body []models.DuplicateGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, []string{"a", "b"}, body[0].ResourceIDs)
}

func TestRuns(t *testing.T) {
	runs := &fakeRuns{runs: map[string]models.ConsolidationRun{
		"run-1": {ID: "run-1", KeepID: "keep", Status: models.ConsolidationRunCompleted},
	}}
	e := newServer(&fakeService{}, runs)

	rec := do(e, http.MethodGet, "/api/v1/consolidation/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/consolidation/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/consolidation/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/consolidation/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body []models.ConsolidationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 1)
}

func TestRuns_NotRegisteredWithoutReader(t *testing.T) {
	e := newServer(&fakeService{}, nil)

	rec := do(e, http.MethodGet, "/api/v1/consolidation/runs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
