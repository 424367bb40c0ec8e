package batch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles batch lifecycle persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new batch repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

const batchColumns = "id, source_id, name, file_path, declared_row_count, row_count, start_time, end_time, status, error_message, quality_score, created_at"

// Create opens a new RUNNING batch. The id returned is the lineage key
// every fact row of this ingestion will carry.
func (r *Repository) Create(ctx context.Context, req models.CreateBatchRequest) (*models.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Repository.Create")
	defer span.End()

	id := uuid.New().String()
	now := time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("batch_meta")
	ib.Cols("id", "source_id", "name", "file_path", "declared_row_count", "start_time", "status", "created_at")
	ib.Values(id, req.SourceID, req.Name, req.FilePath, req.DeclaredRowCount, now, string(models.BatchStatusRunning), now)

	query, args := ib.Build()
	ex := database.FromContext(ctx, r.db)
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": req.Name, "source_id": req.SourceID}).Error("Failed to create batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create batch")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"batch_id": id, "name": req.Name}).Info("Created batch")

	return &models.Batch{
		ID:               id,
		SourceID:         req.SourceID,
		Name:             req.Name,
		FilePath:         req.FilePath,
		DeclaredRowCount: req.DeclaredRowCount,
		StartTime:        now,
		Status:           models.BatchStatusRunning,
		CreatedAt:        now,
	}, nil
}

// Get retrieves a batch by id
func (r *Repository) Get(ctx context.Context, id string) (*models.Batch, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(batchColumns)
	sb.From("batch_meta")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var batch models.Batch
	ex := database.FromContext(ctx, r.db)
	if err := ex.GetContext(ctx, &batch, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("batch %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": id}).Error("Failed to get batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get batch")
	}

	return &batch, nil
}

// Finalize moves a RUNNING batch to its terminal status and stamps
// end_time. The WHERE clause enforces the lifecycle: a terminal batch is
// never transitioned again, so a late finalize is reported, not applied.
func (r *Repository) Finalize(ctx context.Context, id string, req models.FinalizeBatchRequest) error {
	ctx, span := tracing.StartSpan(ctx, "batch.Repository.Finalize")
	defer span.End()

	if !models.BatchStatusRunning.CanTransitionTo(req.Status) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid terminal status %s", req.Status)
	}

	query := `
		UPDATE batch_meta
		SET status = $2,
		    row_count = $3,
		    quality_score = $4,
		    error_message = $5,
		    end_time = now()
		WHERE id = $1 AND status = 'RUNNING'
	`

	ex := database.FromContext(ctx, r.db)
	result, err := ex.ExecContext(ctx, query, id, string(req.Status), req.RowCount, req.QualityScore, req.ErrorMessage)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": id, "status": req.Status}).Error("Failed to finalize batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finalize batch")
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "batch %s is not RUNNING", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"batch_id": id, "status": req.Status, "row_count": req.RowCount}).Info("Finalized batch")
	return nil
}

// MarkFailed finalizes a batch as FAILED outside any open transaction.
// Used after a load rollback so the failure itself is never rolled back.
func (r *Repository) MarkFailed(ctx context.Context, id string, score *float64, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "batch.Repository.MarkFailed")
	defer span.End()

	query := `
		UPDATE batch_meta
		SET status = 'FAILED',
		    quality_score = $2,
		    error_message = $3,
		    end_time = now()
		WHERE id = $1 AND status = 'RUNNING'
	`

	if _, err := r.db.ExecContext(ctx, query, id, score, reason); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": id}).Error("Failed to mark batch failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark batch failed")
	}

	return nil
}

// List returns batches newest-first with a total count for paging.
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.BatchListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(batchColumns)
	sb.From("batch_meta")
	sb.OrderBy("start_time DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list batches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list batches")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM batch_meta"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count batches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count batches")
	}

	return &models.BatchListResponse{
		Items:      batches,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
