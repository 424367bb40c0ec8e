package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/gold"
	"github.com/Ramsey-B/fern/pkg/loader"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/quality"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SourceStore resolves data sources by name.
type SourceStore interface {
	GetByName(ctx context.Context, name string) (*models.DataSource, error)
}

// BatchStore manages the pipeline's view of the batch lifecycle.
type BatchStore interface {
	Create(ctx context.Context, req models.CreateBatchRequest) (*models.Batch, error)
	Get(ctx context.Context, id string) (*models.Batch, error)
	MarkFailed(ctx context.Context, id string, score *float64, reason string) error
}

// Stager stages a raw file into canonical rows.
type Stager interface {
	NormalizeFile(ctx context.Context, batchID, filePath, symbolHint string) ([]models.StagedRow, *models.StagingSummary, error)
}

// Scorer assesses staged rows and decides the load gate.
type Scorer interface {
	Score(ctx context.Context, rows []models.StagedRow) *quality.Report
	Gate(report *quality.Report) quality.GateDecision
}

// Loader performs the atomic load of a scored batch.
type Loader interface {
	Load(ctx context.Context, req loader.Request) (*loader.Result, error)
}

// Refresher rebuilds the gold projection.
type Refresher interface {
	Refresh(ctx context.Context, concurrent bool) (*models.RefreshResult, error)
}

// Options configure pipeline behavior for every file it processes.
type Options struct {
	SourceName         string
	DefaultGranularity models.Granularity
	DefaultAssetType   string
	RefreshAfterLoad   bool
	RefreshConcurrent  bool
	Workers            int
}

// Pipeline orchestrates one file end to end: stage, score, gate, load,
// and optionally refresh gold. A nil refresher or emitter disables the
// corresponding stage.
type Pipeline struct {
	sources   SourceStore
	batches   BatchStore
	stager    Stager
	dryStager Stager
	scorer    Scorer
	loader    Loader
	refresher Refresher
	emitter   *events.Emitter
	logger    ectologger.Logger
	opts      Options
}

// NewPipeline creates a new ingestion pipeline. dryStager must not
// persist staged rows; it is used for dry runs, which never touch the
// database.
func NewPipeline(
	sources SourceStore,
	batches BatchStore,
	stager Stager,
	dryStager Stager,
	scorer Scorer,
	ldr Loader,
	refresher Refresher,
	emitter *events.Emitter,
	logger ectologger.Logger,
	opts Options,
) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.DefaultGranularity == "" {
		opts.DefaultGranularity = models.GranularityDaily
	}
	if opts.DefaultAssetType == "" {
		opts.DefaultAssetType = models.AssetTypeStock
	}
	return &Pipeline{
		sources:   sources,
		batches:   batches,
		stager:    stager,
		dryStager: dryStager,
		scorer:    scorer,
		loader:    ldr,
		refresher: refresher,
		emitter:   emitter,
		logger:    logger,
		opts:      opts,
	}
}

// FileRequest describes one file to ingest.
type FileRequest struct {
	Path             string
	Name             string
	SymbolHint       string
	AssetType        string
	Granularity      models.Granularity
	DeclaredRowCount int
	AssetMeta        *models.UpsertAssetRequest
	// DryRun stages and scores without creating a batch or writing
	// anything to the database.
	DryRun bool
}

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Path    string                 `json:"path"`
	DryRun  bool                   `json:"dry_run"`
	Batch   *models.Batch          `json:"batch,omitempty"`
	Summary *models.StagingSummary `json:"summary"`
	Report  *quality.Report        `json:"report"`
	Gate    quality.GateDecision   `json:"gate"`
	Load    *loader.Result         `json:"load,omitempty"`
	Refresh *models.RefreshResult  `json:"refresh,omitempty"`
	Err     error                  `json:"-"`
}

// IngestFile runs the full pipeline for a single file.
func (p *Pipeline) IngestFile(ctx context.Context, req FileRequest) (*FileResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.IngestFile")
	defer span.End()

	if req.Path == "" {
		return nil, fernerrors.NewConfigurationError("file path is required").AddSetting("path")
	}
	if req.Name == "" {
		req.Name = filepath.Base(req.Path)
	}
	if req.Granularity == "" {
		req.Granularity = p.opts.DefaultGranularity
	}
	if req.AssetType == "" {
		req.AssetType = p.opts.DefaultAssetType
	}

	if req.DryRun {
		return p.dryRun(ctx, req)
	}

	src, err := p.sources.GetByName(ctx, p.opts.SourceName)
	if err != nil {
		return nil, err
	}

	batch, err := p.batches.Create(ctx, models.CreateBatchRequest{
		SourceID:         src.ID,
		Name:             req.Name,
		FilePath:         req.Path,
		DeclaredRowCount: req.DeclaredRowCount,
	})
	if err != nil {
		return nil, err
	}

	logger := p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batch.ID,
		"file":     req.Path,
	})
	logger.Info("Starting ingestion")

	rows, summary, err := p.stager.NormalizeFile(ctx, batch.ID, req.Path, req.SymbolHint)
	if err != nil {
		// The batch exists but nothing was staged. Close it out so it
		// never lingers as RUNNING.
		if failErr := p.batches.MarkFailed(ctx, batch.ID, nil, err.Error()); failErr != nil {
			logger.WithError(failErr).Error("Failed to mark batch failed after staging error")
		}
		p.emitFinal(ctx, batch.ID, src.Name)
		return &FileResult{Path: req.Path, Err: err}, err
	}

	report := p.scorer.Score(ctx, rows)
	gate := p.scorer.Gate(report)

	loadResult, err := p.loader.Load(ctx, loader.Request{
		Batch:       batch,
		Report:      report,
		Gate:        gate,
		AssetType:   req.AssetType,
		Granularity: req.Granularity,
		AssetMeta:   req.AssetMeta,
	})
	if err != nil {
		p.emitFinal(ctx, batch.ID, src.Name)
		return &FileResult{Path: req.Path, Summary: summary, Report: report, Gate: gate, Err: err}, err
	}

	final := p.emitFinal(ctx, batch.ID, src.Name)

	result := &FileResult{
		Path:    req.Path,
		Batch:   final,
		Summary: summary,
		Report:  report,
		Gate:    gate,
		Load:    loadResult,
	}

	if loadResult.Status != models.BatchStatusFailed && p.opts.RefreshAfterLoad && p.refresher != nil {
		result.Refresh = p.refreshGold(ctx, logger)
	}

	logger.WithFields(map[string]any{
		"status":        loadResult.Status,
		"rows_inserted": loadResult.RowsInserted,
		"rows_skipped":  loadResult.RowsSkipped,
		"quality_score": loadResult.QualityScore,
	}).Info("Ingestion complete")

	return result, nil
}

// IngestFiles processes files concurrently with a bounded worker pool.
// Every file gets a result; per-file failures are reported in the
// result's Err and never stop the other workers.
func (p *Pipeline) IngestFiles(ctx context.Context, requests []FileRequest) []*FileResult {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.IngestFiles")
	defer span.End()

	results := make([]*FileResult, len(requests))
	jobs := make(chan int)

	workers := p.opts.Workers
	if workers > len(requests) {
		workers = len(requests)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := p.IngestFile(ctx, requests[i])
				if res == nil {
					res = &FileResult{Path: requests[i].Path, Err: err}
				}
				results[i] = res
			}
		}()
	}

	for i := range requests {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// dryRun stages and scores in memory only. No batch record is created,
// so the uuid here exists only to satisfy row shapes.
func (p *Pipeline) dryRun(ctx context.Context, req FileRequest) (*FileResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Pipeline.dryRun")
	defer span.End()

	stager := p.dryStager
	if stager == nil {
		return nil, fernerrors.NewConfigurationError("dry run requires a non-persisting stager")
	}

	rows, summary, err := stager.NormalizeFile(ctx, uuid.NewString(), req.Path, req.SymbolHint)
	if err != nil {
		return nil, err
	}

	report := p.scorer.Score(ctx, rows)
	gate := p.scorer.Gate(report)

	return &FileResult{
		Path:    req.Path,
		DryRun:  true,
		Summary: summary,
		Report:  report,
		Gate:    gate,
	}, nil
}

// emitFinal re-reads the batch for its terminal state and emits the
// lifecycle event. Best effort on both counts.
func (p *Pipeline) emitFinal(ctx context.Context, batchID, sourceName string) *models.Batch {
	final, err := p.batches.Get(ctx, batchID)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Warn("Failed to read batch after load")
		return nil
	}
	p.emitter.EmitBatchFinalized(ctx, final, sourceName)
	return final
}

// refreshGold refreshes the projection after a committed load. The load
// is already durable, so refresh failures are logged and returned but
// never propagate as ingestion errors.
func (p *Pipeline) refreshGold(ctx context.Context, logger ectologger.Logger) *models.RefreshResult {
	res, err := p.refresher.Refresh(ctx, p.opts.RefreshConcurrent)
	if err != nil {
		if errors.Is(err, gold.ErrRefreshInFlight) {
			logger.Info("Gold refresh already in flight, skipping")
			return nil
		}
		logger.WithError(err).Error("Gold refresh failed after load")
		return nil
	}
	p.emitter.EmitGoldRefreshed(ctx, res)
	return res
}
