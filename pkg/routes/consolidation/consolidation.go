package consolidation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	engine "github.com/Ramsey-B/clover/pkg/consolidation"
	"github.com/Ramsey-B/clover/pkg/models"
)

var validate = validator.New()

// Service is the consolidation engine as the API uses it.
type Service interface {
	Recommend(ctx context.Context, candidateIDs []string) (models.Recommendation, error)
	Validate(ctx context.Context, plan models.ConsolidationPlan) (models.ValidationResult, error)
	Execute(ctx context.Context, plan models.ConsolidationPlan, force bool) (models.MigrationResult, error)
	Discover(ctx context.Context) ([]models.DuplicateGroup, error)
}

// RunReader reads the consolidation audit trail.
type RunReader interface {
	GetByID(ctx context.Context, id string) (*models.ConsolidationRun, error)
	ListRecent(ctx context.Context, limit int) ([]models.ConsolidationRun, error)
}

type ConsolidateRequest struct {
	KeepID    string   `json:"keep_id" validate:"required"`
	RemoveIDs []string `json:"remove_ids" validate:"required,min=1,dive,required"`
	Force     bool     `json:"force"`
}

func (r ConsolidateRequest) Plan() models.ConsolidationPlan {
	return models.ConsolidationPlan{KeepID: r.KeepID, RemoveIDs: r.RemoveIDs}
}

// PlanUnsafeResponse is returned with 409 when a plan would lose unique child records.
type PlanUnsafeResponse struct {
	Message    string                  `json:"message"`
	Validation models.ValidationResult `json:"validation"`
}

type Handler struct {
	service Service
	runs    RunReader
	logger  ectologger.Logger
}

func NewHandler(service Service, runs RunReader, logger ectologger.Logger) *Handler {
	return &Handler{service: service, runs: runs, logger: logger}
}

// Register registers consolidation routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/recommendation", h.Recommend)
	g.GET("/groups", h.Groups)
	g.POST("/validate", h.Validate)
	g.POST("/consolidate", h.Consolidate)
	if h.runs != nil {
		g.GET("/runs", h.ListRuns)
		g.GET("/runs/:id", h.GetRun)
	}
}

// Recommend scores ?candidate_ids=a,b and proposes which one to keep
func (h *Handler) Recommend(c echo.Context) error {
	var ids []string
	for _, raw := range c.QueryParams()["candidate_ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	rec, err := h.service.Recommend(c.Request().Context(), ids)
	if err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Groups(c echo.Context) error {
	groups, err := h.service.Discover(c.Request().Context())
	if err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) Validate(c echo.Context) error {
	var req ConsolidateRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.Validate(c.Request().Context(), req.Plan())
	if err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// Consolidate executes a plan. Partial failures still answer 200 with the errors in the body.
func (h *Handler) Consolidate(c echo.Context) error {
	ctx := c.Request().Context()

	var req ConsolidateRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.service.Execute(ctx, req.Plan(), req.Force)
	var unsafe *engine.PlanUnsafeError
	if errors.As(err, &unsafe) {
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"keep_id":              req.KeepID,
			"unique_children_lost": len(unsafe.Result.UniqueChildrenLost),
		}).Info("Rejected unsafe consolidation plan")
		return c.JSON(http.StatusConflict, PlanUnsafeResponse{Message: unsafe.Error(), Validation: unsafe.Result})
	}
	if err != nil {
		return ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListRuns(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}

func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.runs.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

func bind(c echo.Context, req *ConsolidateRequest) error {
	if err := c.Bind(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// ToHTTPError maps engine errors onto API status codes.
func ToHTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrInvalidPlan), errors.Is(err, engine.ErrInsufficientCandidates):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrResourceNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrConsolidationInProgress), errors.Is(err, engine.ErrPlanUnsafe):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrStoreUnavailable):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "store unavailable")
	case httperror.IsHTTPError(err):
		return err
	default:
		return httperror.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
