package datasource

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles the data source catalog
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new data source repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create registers a provider. Names are unique; re-registering an
// existing name is a no-op returning the existing row.
func (r *Repository) Create(ctx context.Context, req models.CreateDataSourceRequest) (*models.DataSource, error) {
	ctx, span := tracing.StartSpan(ctx, "datasource.Repository.Create")
	defer span.End()

	query := `
		INSERT INTO data_source (name, source_type, rate_limit_per_minute, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (name) DO UPDATE SET updated_at = data_source.updated_at
		RETURNING id, name, source_type, rate_limit_per_minute, description, created_at, updated_at
	`

	var source models.DataSource
	if err := r.db.GetContext(ctx, &source, query, req.Name, req.SourceType, req.RateLimitPerMinute, req.Description); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": req.Name}).Error("Failed to create data source")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create data source")
	}

	return &source, nil
}

// GetByName retrieves a catalog entry by its unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (*models.DataSource, error) {
	ctx, span := tracing.StartSpan(ctx, "datasource.Repository.GetByName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "source_type", "rate_limit_per_minute", "description", "created_at", "updated_at")
	sb.From("data_source")
	sb.Where(sb.Equal("name", name))
	sb.Limit(1)

	query, args := sb.Build()
	var source models.DataSource
	if err := r.db.GetContext(ctx, &source, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("data source %s not found", name))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": name}).Error("Failed to get data source")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get data source")
	}

	return &source, nil
}

// List returns the full catalog.
func (r *Repository) List(ctx context.Context) ([]models.DataSource, error) {
	ctx, span := tracing.StartSpan(ctx, "datasource.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "source_type", "rate_limit_per_minute", "description", "created_at", "updated_at")
	sb.From("data_source")
	sb.OrderBy("name")

	query, args := sb.Build()
	var sources []models.DataSource
	if err := r.db.SelectContext(ctx, &sources, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list data sources")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list data sources")
	}

	return sources, nil
}
