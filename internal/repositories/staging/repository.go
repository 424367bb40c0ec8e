package staging

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// insertChunkSize bounds the multi-row VALUES list per statement.
const insertChunkSize = 500

// Repository handles the append-only staging area
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertRows appends staged rows for a batch. The staging area is
// append-only and writes do not wait on scoring; rows are chunked to
// bound statement size.
func (r *Repository) InsertRows(ctx context.Context, batchID string, rows []models.StagedRow) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.InsertRows")
	defer span.End()

	for start := 0; start < len(rows); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(rows) {
			end = len(rows)
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto("stage_raw_prices")
		ib.Cols("batch_id", "symbol", "date_raw", "open_raw", "high_raw", "low_raw", "close_raw", "volume_raw", "adj_close_raw", "source_file", "row_number")
		for _, row := range rows[start:end] {
			ib.Values(batchID, row.Symbol, row.DateRaw, row.OpenRaw, row.HighRaw, row.LowRaw, row.CloseRaw, row.VolumeRaw, row.AdjCloseRaw, row.SourceFile, row.RowNumber)
		}

		query, args := ib.Build()
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": batchID, "rows": end - start}).Error("Failed to insert staged rows")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert staged rows")
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"batch_id": batchID, "rows": len(rows)}).Debug("Staged rows persisted")
	return nil
}

// GetByBatch returns a batch's staged rows in file order.
func (r *Repository) GetByBatch(ctx context.Context, batchID string) ([]models.StagedRow, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.GetByBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "batch_id", "symbol", "date_raw", "open_raw", "high_raw", "low_raw", "close_raw", "volume_raw", "adj_close_raw", "source_file", "row_number", "created_at")
	sb.From("stage_raw_prices")
	sb.Where(sb.Equal("batch_id", batchID))
	sb.OrderBy("row_number")

	query, args := sb.Build()
	var rows []models.StagedRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": batchID}).Error("Failed to get staged rows")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get staged rows")
	}

	return rows, nil
}

// CountByBatch returns the number of staged rows for a batch.
func (r *Repository) CountByBatch(ctx context.Context, batchID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.CountByBatch")
	defer span.End()

	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM stage_raw_prices WHERE batch_id = $1", batchID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": batchID}).Error("Failed to count staged rows")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count staged rows")
	}

	return count, nil
}
