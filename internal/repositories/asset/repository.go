package asset

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

// Repository handles asset persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new asset repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	Asset *models.Asset
	IsNew bool
}

// Upsert creates or updates an asset keyed by (symbol, asset_type).
//
// Descriptive fields are merged: a batch that supplies NULL for a field
// never erases a value a previous batch supplied. The unique constraint
// arbitrates concurrent first-time inserts of the same symbol, so no
// application-level locking is needed.
func (r *Repository) Upsert(ctx context.Context, req models.UpsertAssetRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.Upsert")
	defer span.End()

	query := `
		INSERT INTO asset (symbol, asset_type, name, exchange, sector, currency, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, 'USD'), TRUE, now(), now())
		ON CONFLICT (symbol, asset_type)
		DO UPDATE SET
			name = COALESCE(EXCLUDED.name, asset.name),
			exchange = COALESCE(EXCLUDED.exchange, asset.exchange),
			sector = COALESCE(EXCLUDED.sector, asset.sector),
			currency = COALESCE(EXCLUDED.currency, asset.currency),
			updated_at = now()
		RETURNING
			id, symbol, asset_type, name, exchange, sector, currency, is_active,
			created_at, updated_at, deleted_at,
			(xmax = 0) AS inserted
	`

	var row struct {
		models.Asset
		Inserted bool `db:"inserted"`
	}

	ex := database.FromContext(ctx, r.db)
	if err := ex.GetContext(ctx, &row, query, req.Symbol, req.AssetType, req.Name, req.Exchange, req.Sector, req.Currency); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"symbol": req.Symbol, "asset_type": req.AssetType}).Error("Failed to upsert asset")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert asset")
	}

	return &UpsertResult{Asset: &row.Asset, IsNew: row.Inserted}, nil
}

// GetBySymbolAndType retrieves an asset by its natural key. Returns nil
// when no asset matches.
func (r *Repository) GetBySymbolAndType(ctx context.Context, symbol, assetType string) (*models.Asset, error) {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.GetBySymbolAndType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "symbol", "asset_type", "name", "exchange", "sector", "currency", "is_active", "created_at", "updated_at", "deleted_at")
	sb.From("asset")
	sb.Where(
		sb.Equal("symbol", symbol),
		sb.Equal("asset_type", assetType),
		sb.IsNull("deleted_at"),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var asset models.Asset
	ex := database.FromContext(ctx, r.db)
	if err := ex.GetContext(ctx, &asset, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"symbol": symbol, "asset_type": assetType}).Error("Failed to get asset")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get asset")
	}

	return &asset, nil
}

// SetActive flips the active flag. Inactive assets drop out of the gold
// projection on the next refresh.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.SetActive")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("asset")
	ub.Set(
		ub.Assign("is_active", active),
		"updated_at = now()",
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	ex := database.FromContext(ctx, r.db)
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "active": active}).Error("Failed to set asset active flag")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update asset")
	}

	return nil
}

// List returns non-deleted assets ordered by symbol.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.Asset, error) {
	ctx, span := tracing.StartSpan(ctx, "asset.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "symbol", "asset_type", "name", "exchange", "sector", "currency", "is_active", "created_at", "updated_at", "deleted_at")
	sb.From("asset")
	sb.Where(sb.IsNull("deleted_at"))
	sb.OrderBy("symbol", "asset_type")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var assets []models.Asset
	if err := r.db.SelectContext(ctx, &assets, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list assets")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list assets")
	}

	return assets, nil
}
