package loader

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	assetrepo "github.com/Ramsey-B/fern/internal/repositories/asset"
	pricerepo "github.com/Ramsey-B/fern/internal/repositories/price"
	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/quality"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// AssetStore upserts assets by natural key.
type AssetStore interface {
	Upsert(ctx context.Context, req models.UpsertAssetRequest) (*assetrepo.UpsertResult, error)
}

// BatchStore manages the batch lifecycle.
type BatchStore interface {
	Finalize(ctx context.Context, id string, req models.FinalizeBatchRequest) error
	MarkFailed(ctx context.Context, id string, score *float64, reason string) error
}

// PriceStore upserts raw fact rows, reporting how many rows were
// written and how many of those were new.
type PriceStore interface {
	UpsertChunk(ctx context.Context, rows []pricerepo.UpsertRow) (int, int, error)
}

// CheckStore persists quality check verdicts.
type CheckStore interface {
	InsertResults(ctx context.Context, checks []models.QualityCheck) error
}

// Options bound the load's resource use.
type Options struct {
	BatchSize int
	TxTimeout time.Duration
}

// Loader performs the lineage-tracked, idempotent load of a scored batch:
// asset upserts, fact upserts, check persistence, and the batch's
// terminal transition, all inside one transaction.
type Loader struct {
	db      database.DB
	assets  AssetStore
	batches BatchStore
	prices  PriceStore
	checks  CheckStore
	logger  ectologger.Logger
	opts    Options
}

// NewLoader creates a new loader
func NewLoader(db database.DB, assets AssetStore, batches BatchStore, prices PriceStore, checks CheckStore, logger ectologger.Logger, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10000
	}
	return &Loader{
		db:      db,
		assets:  assets,
		batches: batches,
		prices:  prices,
		checks:  checks,
		logger:  logger,
		opts:    opts,
	}
}

// Request carries everything needed to load one scored batch.
type Request struct {
	Batch       *models.Batch
	Report      *quality.Report
	Gate        quality.GateDecision
	AssetType   string
	Granularity models.Granularity
	// AssetMeta optionally contributes descriptive fields (exchange,
	// name, sector) to every asset this batch touches.
	AssetMeta *models.UpsertAssetRequest
}

// Result reports what the load actually did.
type Result struct {
	Status       models.BatchStatus
	RowsInserted int
	RowsNew      int
	RowsSkipped  int
	QualityScore float64
}

// Load executes the atomic load unit. A FAILED gate persists only the
// terminal batch record and the quality report; any error mid-load rolls
// the whole unit back and marks the batch FAILED, so partial fact
// insertion for a batch is never observable.
func (l *Loader) Load(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "loader.Loader.Load")
	defer span.End()

	if req.Batch == nil || req.Report == nil {
		return nil, fernerrors.NewConfigurationError("load request requires a batch and a quality report")
	}
	if req.Batch.Status.IsTerminal() {
		return nil, fernerrors.NewConfigurationErrorf("batch %s is already terminal", req.Batch.ID)
	}

	score := req.Report.OverallScore

	if req.Gate.Status == models.BatchStatusFailed {
		return l.failBatch(ctx, req, score, req.Gate.Reason)
	}

	if l.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.TxTimeout)
		defer cancel()
	}

	result, err := l.loadTx(ctx, req)
	if err != nil {
		loadErr := fernerrors.WrapLoadTransactionError(req.Batch.ID, err)
		reason := loadErr.Error()
		if ctxErr := ctx.Err(); ctxErr != nil {
			reason = fmt.Sprintf("load cancelled: %v", ctxErr)
		}

		// The tx is gone; record the failure on a fresh connection so the
		// terminal status itself cannot be rolled back.
		if markErr := l.batches.MarkFailed(context.WithoutCancel(ctx), req.Batch.ID, &score, reason); markErr != nil {
			l.logger.WithContext(ctx).WithError(markErr).WithField("batch_id", req.Batch.ID).Error("Failed to record batch failure")
		}

		return &Result{Status: models.BatchStatusFailed, RowsSkipped: req.Report.RowCount, QualityScore: score}, loadErr
	}

	return result, nil
}

func (l *Loader) loadTx(ctx context.Context, req Request) (*Result, error) {
	ctxTx, tx, err := l.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	assetIDs, err := l.upsertAssets(ctxTx, req)
	if err != nil {
		return nil, err
	}

	inserted, newRows, err := l.upsertFacts(ctxTx, req, assetIDs)
	if err != nil {
		return nil, err
	}

	if err := l.checks.InsertResults(ctxTx, req.Report.ToChecks(req.Batch.ID)); err != nil {
		return nil, err
	}

	status := req.Gate.Status
	score := req.Report.OverallScore
	finalize := models.FinalizeBatchRequest{
		Status:       status,
		RowCount:     inserted,
		QualityScore: &score,
	}
	if err := l.batches.Finalize(ctxTx, req.Batch.ID, finalize); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": req.Batch.ID,
		"status":   status,
		"rows":     inserted,
		"new_rows": newRows,
		"score":    score,
	}).Info("Loaded batch")

	return &Result{
		Status:       status,
		RowsInserted: inserted,
		RowsNew:      newRows,
		RowsSkipped:  req.Report.SkippedRows,
		QualityScore: score,
	}, nil
}

// upsertAssets resolves every distinct symbol in the loadable rows to an
// asset id, merging any descriptive metadata the request carries.
func (l *Loader) upsertAssets(ctx context.Context, req Request) (map[string]int64, error) {
	symbols := ectolinq.Map(req.Report.LoadableRows, func(row models.ParsedRow) string {
		return row.Symbol
	})

	distinct := map[string]struct{}{}
	for _, symbol := range symbols {
		distinct[symbol] = struct{}{}
	}
	ordered := make([]string, 0, len(distinct))
	for symbol := range distinct {
		ordered = append(ordered, symbol)
	}
	// Deterministic order keeps concurrent batches from deadlocking on
	// overlapping symbol sets.
	sort.Strings(ordered)

	assetIDs := make(map[string]int64, len(ordered))
	for _, symbol := range ordered {
		upsert := models.UpsertAssetRequest{
			Symbol:    symbol,
			AssetType: req.AssetType,
		}
		if req.AssetMeta != nil {
			upsert.Name = req.AssetMeta.Name
			upsert.Exchange = req.AssetMeta.Exchange
			upsert.Sector = req.AssetMeta.Sector
			upsert.Currency = req.AssetMeta.Currency
		}

		result, err := l.assets.Upsert(ctx, upsert)
		if err != nil {
			return nil, fernerrors.WrapLoadTransactionError(req.Batch.ID, err).AddStep("asset upsert")
		}
		assetIDs[symbol] = result.Asset.ID
	}

	return assetIDs, nil
}

// upsertFacts writes the loadable rows in bounded chunks. All chunks
// share the caller's transaction; chunking bounds statement size, not
// transactional scope.
func (l *Loader) upsertFacts(ctx context.Context, req Request, assetIDs map[string]int64) (int, int, error) {
	rows := make([]pricerepo.UpsertRow, 0, len(req.Report.LoadableRows))
	for _, row := range req.Report.LoadableRows {
		assetID, ok := assetIDs[row.Symbol]
		if !ok {
			return 0, 0, fernerrors.NewLoadTransactionError(req.Batch.ID, fmt.Sprintf("no asset for symbol %s", row.Symbol)).AddStep("fact upsert")
		}
		rows = append(rows, pricerepo.UpsertRow{
			AssetID:     assetID,
			PriceDate:   row.PriceDate,
			SourceID:    req.Batch.SourceID,
			BatchID:     req.Batch.ID,
			Granularity: req.Granularity,
			Open:        row.Open,
			High:        row.High,
			Low:         row.Low,
			Close:       row.Close,
			Volume:      row.Volume,
			AdjClose:    row.AdjClose,
		})
	}

	// In-file duplicates already took their uniqueness penalty in the
	// report; they must not reach a single statement twice, since a
	// multi-row ON CONFLICT DO UPDATE rejects a second hit on the same
	// key. Last occurrence wins, matching the upsert's last-writer rule.
	rows = dedupeByKey(rows)

	inserted := 0
	newRows := 0
	for start := 0; start < len(rows); start += l.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		end := start + l.opts.BatchSize
		if end > len(rows) {
			end = len(rows)
		}

		chunkLoaded, chunkNew, err := l.prices.UpsertChunk(ctx, rows[start:end])
		if err != nil {
			return 0, 0, fernerrors.WrapLoadTransactionError(req.Batch.ID, err).AddStep("fact upsert")
		}
		inserted += chunkLoaded
		newRows += chunkNew
	}

	return inserted, newRows, nil
}

// dedupeByKey collapses rows sharing a natural fact key, keeping each
// key's first position and its last occurrence's values.
func dedupeByKey(rows []pricerepo.UpsertRow) []pricerepo.UpsertRow {
	deduped := make([]pricerepo.UpsertRow, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		key := fmt.Sprintf("%d|%s|%d|%s", row.AssetID, row.PriceDate.Format(time.RFC3339), row.SourceID, row.Granularity)
		if i, ok := seen[key]; ok {
			deduped[i] = row
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, row)
	}
	return deduped
}

// failBatch records a gate failure: terminal FAILED batch plus the full
// quality report, zero fact rows.
func (l *Loader) failBatch(ctx context.Context, req Request, score float64, reason string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "loader.Loader.failBatch")
	defer span.End()

	if err := l.checks.InsertResults(ctx, req.Report.ToChecks(req.Batch.ID)); err != nil {
		l.logger.WithContext(ctx).WithError(err).WithField("batch_id", req.Batch.ID).Error("Failed to persist quality report for failed batch")
	}

	if err := l.batches.MarkFailed(ctx, req.Batch.ID, &score, reason); err != nil {
		return nil, err
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": req.Batch.ID,
		"score":    score,
		"reason":   reason,
	}).Warn("Batch failed quality gate; no rows loaded")

	return &Result{
		Status:       models.BatchStatusFailed,
		RowsSkipped:  req.Report.RowCount,
		QualityScore: score,
	}, nil
}
