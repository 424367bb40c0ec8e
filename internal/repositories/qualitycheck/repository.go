package qualitycheck

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

// Repository handles persisted quality check verdicts
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new quality check repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertResults writes one row per check for a batch. The table is
// append-only and (batch_id, check_name) is unique, so a retried write
// of the same report is a no-op rather than a duplicate.
func (r *Repository) InsertResults(ctx context.Context, checks []models.QualityCheck) error {
	ctx, span := tracing.StartSpan(ctx, "qualitycheck.Repository.InsertResults")
	defer span.End()

	if len(checks) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("quality_check")
	ib.Cols("batch_id", "check_name", "verdict", "score", "detail")
	for _, check := range checks {
		ib.Values(check.BatchID, check.CheckName, string(check.Verdict), check.Score, check.Detail)
	}
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	ex := database.FromContext(ctx, r.db)
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": checks[0].BatchID}).Error("Failed to insert quality checks")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert quality checks")
	}

	return nil
}

// ListByBatch returns a batch's persisted verdicts.
func (r *Repository) ListByBatch(ctx context.Context, batchID string) ([]models.QualityCheck, error) {
	ctx, span := tracing.StartSpan(ctx, "qualitycheck.Repository.ListByBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "batch_id", "check_name", "verdict", "score", "detail", "created_at")
	sb.From("quality_check")
	sb.Where(sb.Equal("batch_id", batchID))
	sb.OrderBy("check_name")

	query, args := sb.Build()
	var checks []models.QualityCheck
	if err := r.db.SelectContext(ctx, &checks, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": batchID}).Error("Failed to list quality checks")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list quality checks")
	}

	return checks, nil
}
