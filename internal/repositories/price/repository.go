package price

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles raw price fact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new price repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertRow is one fact destined for price_raw.
type UpsertRow struct {
	AssetID     int64
	PriceDate   time.Time
	SourceID    int64
	BatchID     string
	Granularity models.Granularity
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      *int64
	AdjClose    *float64
}

// factTable names the storage table a granularity routes to: daily
// facts live in price_raw keyed by date, intraday facts in the
// timestamp-partitioned price_raw_intraday keyed by observation time.
func factTable(g models.Granularity) string {
	if g.IsIntraday() {
		return "price_raw_intraday"
	}
	return "price_raw"
}

// splitByTable partitions rows by destination table, preserving order.
func splitByTable(rows []UpsertRow) (daily, intraday []UpsertRow) {
	for _, row := range rows {
		if row.Granularity.IsIntraday() {
			intraday = append(intraday, row)
		} else {
			daily = append(daily, row)
		}
	}
	return daily, intraday
}

// UpsertChunk inserts facts keyed by (asset_id, price_date, source_id,
// granularity), routing intraday granularities to price_raw_intraday
// keyed by observed_at. A key that already exists from a prior batch has
// its price fields and lineage replaced with the new batch's values,
// which makes reloading the same or a corrected file safe and
// convergent. The unique constraint is the sole arbiter; concurrent
// batches hitting the same key resolve last-writer-wins. Rows in one
// chunk must carry distinct keys; the loader dedupes before chunking.
//
// Returns how many rows were written, and how many of those were newly
// inserted (as opposed to replaced).
func (r *Repository) UpsertChunk(ctx context.Context, rows []UpsertRow) (int, int, error) {
	ctx, span := tracing.StartSpan(ctx, "price.Repository.UpsertChunk")
	defer span.End()

	if len(rows) == 0 {
		return 0, 0, nil
	}

	loaded := 0
	inserted := 0
	daily, intraday := splitByTable(rows)
	for _, group := range [][]UpsertRow{daily, intraday} {
		if len(group) == 0 {
			continue
		}
		groupLoaded, groupInserted, err := r.upsertInto(ctx, factTable(group[0].Granularity), group)
		if err != nil {
			return 0, 0, err
		}
		loaded += groupLoaded
		inserted += groupInserted
	}

	return loaded, inserted, nil
}

func (r *Repository) upsertInto(ctx context.Context, table string, rows []UpsertRow) (int, int, error) {
	dateColumn := "price_date"
	withAdjClose := true
	if table == "price_raw_intraday" {
		dateColumn = "observed_at"
		withAdjClose = false
	}

	cols := []string{"asset_id", dateColumn, "source_id", "batch_id", "granularity", "open", "high", "low", "close", "volume"}
	if withAdjClose {
		cols = append(cols, "adj_close")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(cols...)
	for _, row := range rows {
		values := []any{row.AssetID, row.PriceDate, row.SourceID, row.BatchID, string(row.Granularity), row.Open, row.High, row.Low, row.Close, row.Volume}
		if withAdjClose {
			values = append(values, row.AdjClose)
		}
		ib.Values(values...)
	}

	query, args := ib.Build()
	query += fmt.Sprintf(`
		ON CONFLICT (asset_id, %s, source_id, granularity)
		DO UPDATE SET
			batch_id = EXCLUDED.batch_id,
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,`, dateColumn)
	if withAdjClose {
		query += `
			adj_close = EXCLUDED.adj_close,`
	}
	query += `
			created_at = now()
		RETURNING (xmax = 0) AS inserted
	`

	ex := database.FromContext(ctx, r.db)
	result, err := ex.QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": table, "rows": len(rows)}).Error("Failed to upsert price facts")
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert price facts")
	}
	defer result.Close()

	loaded := 0
	inserted := 0
	for result.Next() {
		var isNew bool
		if err := result.Scan(&isNew); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to scan upsert result")
			return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to scan upsert result")
		}
		loaded++
		if isNew {
			inserted++
		}
	}
	if err := result.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read upsert results")
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read upsert results")
	}

	return loaded, inserted, nil
}

// CountByBatch returns how many facts currently carry the batch's lineage.
func (r *Repository) CountByBatch(ctx context.Context, batchID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "price.Repository.CountByBatch")
	defer span.End()

	var count int
	ex := database.FromContext(ctx, r.db)
	if err := ex.GetContext(ctx, &count, "SELECT COUNT(*) FROM price_raw WHERE batch_id = $1", batchID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": batchID}).Error("Failed to count price facts")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count price facts")
	}

	return count, nil
}

// GetByAssetRange returns facts for an asset within [from, to] at one
// granularity, oldest first.
func (r *Repository) GetByAssetRange(ctx context.Context, assetID int64, granularity models.Granularity, from, to time.Time) ([]models.PriceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "price.Repository.GetByAssetRange")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "asset_id", "price_date", "source_id", "batch_id", "granularity", "open", "high", "low", "close", "volume", "adj_close", "created_at")
	sb.From("price_raw")
	sb.Where(
		sb.Equal("asset_id", assetID),
		sb.Equal("granularity", string(granularity)),
		sb.GreaterEqualThan("price_date", from),
		sb.LessEqualThan("price_date", to),
	)
	sb.OrderBy("price_date")

	query, args := sb.Build()
	var records []models.PriceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"asset_id": assetID}).Error("Failed to get price facts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get price facts")
	}

	return records, nil
}
