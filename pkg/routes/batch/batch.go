package batch

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store reads batch lineage records.
type Store interface {
	Get(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context, page, pageSize int) (*models.BatchListResponse, error)
}

// CheckStore reads the persisted quality verdicts for a batch.
type CheckStore interface {
	ListByBatch(ctx context.Context, batchID string) ([]models.QualityCheck, error)
}

// Handler serves the batch lineage API
type Handler struct {
	batches Store
	checks  CheckStore
	logger  ectologger.Logger
}

// NewHandler creates a new batch handler
func NewHandler(batches Store, checks CheckStore, logger ectologger.Logger) *Handler {
	return &Handler{
		batches: batches,
		checks:  checks,
		logger:  logger,
	}
}

// Register registers batch routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// DetailResponse is a batch with its quality verdicts.
type DetailResponse struct {
	Batch  models.Batch          `json:"batch"`
	Checks []models.QualityCheck `json:"checks"`
}

// List returns batches, newest first
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "batch_handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	resp, err := h.batches.List(ctx, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Get returns one batch and its quality checks
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "batch_handler.Get")
	defer span.End()

	id := c.Param("id")

	b, err := h.batches.Get(ctx, id)
	if err != nil {
		return err
	}

	checks, err := h.checks.ListByBatch(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, DetailResponse{
		Batch:  *b,
		Checks: checks,
	})
}
