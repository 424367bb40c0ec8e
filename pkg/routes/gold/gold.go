package gold

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/gold"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Refresher rebuilds and inspects the gold projection.
type Refresher interface {
	Refresh(ctx context.Context, concurrent bool) (*models.RefreshResult, error)
	Stats(ctx context.Context) (*models.GoldStats, error)
}

// Handler serves the gold projection API
type Handler struct {
	refresher         Refresher
	emitter           *events.Emitter
	logger            ectologger.Logger
	defaultConcurrent bool
}

// NewHandler creates a new gold handler
func NewHandler(refresher Refresher, emitter *events.Emitter, logger ectologger.Logger, defaultConcurrent bool) *Handler {
	return &Handler{
		refresher:         refresher,
		emitter:           emitter,
		logger:            logger,
		defaultConcurrent: defaultConcurrent,
	}
}

// Register registers gold routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/refresh", h.Refresh)
	g.GET("/stats", h.Stats)
}

// RefreshRequest optionally overrides the configured refresh mode.
type RefreshRequest struct {
	Concurrent *bool `json:"concurrent"`
}

// Refresh triggers a refresh of the gold projection. An empty body
// uses the configured default mode.
func (h *Handler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "gold_handler.Refresh")
	defer span.End()

	var req RefreshRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	concurrent := h.defaultConcurrent
	if req.Concurrent != nil {
		concurrent = *req.Concurrent
	}

	result, err := h.refresher.Refresh(ctx, concurrent)
	if err != nil {
		if errors.Is(err, gold.ErrRefreshInFlight) {
			return httperror.NewHTTPError(http.StatusConflict, "a refresh is already in progress")
		}
		var refreshErr *fernerrors.RefreshError
		if errors.As(err, &refreshErr) {
			return refreshErr.ToHTTPError()
		}
		return err
	}

	h.emitter.EmitGoldRefreshed(ctx, result)

	return c.JSON(http.StatusOK, result)
}

// Stats returns summary statistics for the gold projection
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "gold_handler.Stats")
	defer span.End()

	stats, err := h.refresher.Stats(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}
