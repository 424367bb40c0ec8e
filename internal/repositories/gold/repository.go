package gold

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles the price_gold materialized view
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new gold repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Refresh rebuilds the projection. Concurrent mode rebuilds into a
// shadow and swaps, so readers keep seeing the old rows throughout;
// blocking mode locks readers out but needs no unique index. Either way
// Postgres publishes only on full success, so a failed refresh leaves
// the previous projection intact.
func (r *Repository) Refresh(ctx context.Context, concurrent bool) error {
	ctx, span := tracing.StartSpan(ctx, "gold.Repository.Refresh")
	defer span.End()

	query := "REFRESH MATERIALIZED VIEW price_gold"
	if concurrent {
		query = "REFRESH MATERIALIZED VIEW CONCURRENTLY price_gold"
	}

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"concurrent": concurrent}).Error("Failed to refresh price_gold")
		return err
	}

	return nil
}

// HasConcurrentIndex reports whether price_gold carries the unique index
// REFRESH CONCURRENTLY requires.
func (r *Repository) HasConcurrentIndex(ctx context.Context) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "gold.Repository.HasConcurrentIndex")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename = 'price_gold'
		  AND indexdef LIKE 'CREATE UNIQUE INDEX%'
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to inspect price_gold indexes")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to inspect price_gold indexes")
	}

	return count > 0, nil
}

// IsPopulated reports whether the view has ever been refreshed. A never-
// populated view cannot be refreshed concurrently.
func (r *Repository) IsPopulated(ctx context.Context) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "gold.Repository.IsPopulated")
	defer span.End()

	var populated bool
	if err := r.db.GetContext(ctx, &populated, "SELECT ispopulated FROM pg_matviews WHERE matviewname = 'price_gold'"); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return false, httperror.NewHTTPError(http.StatusNotFound, "price_gold view does not exist")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to inspect price_gold view")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to inspect price_gold view")
	}

	return populated, nil
}

// Stats summarizes the published projection.
func (r *Repository) Stats(ctx context.Context) (*models.GoldStats, error) {
	ctx, span := tracing.StartSpan(ctx, "gold.Repository.Stats")
	defer span.End()

	query := `
		SELECT
			COUNT(*) AS row_count,
			COUNT(DISTINCT asset_id) AS asset_count,
			MIN(price_date) AS min_date,
			MAX(price_date) AS max_date
		FROM price_gold
	`

	var stats models.GoldStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get price_gold stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get price_gold stats")
	}

	return &stats, nil
}

// GetBySymbolRange reads published gold rows for operator spot checks.
func (r *Repository) GetBySymbolRange(ctx context.Context, symbol string, limit int) ([]models.GoldRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "gold.Repository.GetBySymbolRange")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT asset_id, symbol, price_date, open, high, low, close, volume, adj_close, source_id, batch_id, batch_start_time
		FROM price_gold
		WHERE symbol = $1
		ORDER BY price_date DESC
		LIMIT $2
	`

	var records []models.GoldRecord
	if err := r.db.SelectContext(ctx, &records, query, symbol, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"symbol": symbol}).Error("Failed to read price_gold")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read price_gold")
	}

	return records, nil
}
