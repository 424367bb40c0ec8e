package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/gold"
	fernkafka "github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/loader"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/quality"
	"github.com/Ramsey-B/fern/pkg/staging"

	assetrepo "github.com/Ramsey-B/fern/internal/repositories/asset"
	pricerepo "github.com/Ramsey-B/fern/internal/repositories/price"
)

// --- infrastructure fakes ---

type fakeTx struct {
	database.Tx
	committed bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }
func (t *fakeTx) IsOpen() bool                       { return !t.committed }

type fakeDB struct {
	database.DB
}

func (f *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &fakeTx{}, nil
}

type fakeSources struct{}

func (f *fakeSources) GetByName(ctx context.Context, name string) (*models.DataSource, error) {
	return &models.DataSource{ID: 1, Name: name}, nil
}

type fakeBatchStore struct {
	nextID  int
	batches map[string]*models.Batch
}

func (f *fakeBatchStore) Create(ctx context.Context, req models.CreateBatchRequest) (*models.Batch, error) {
	if f.batches == nil {
		f.batches = map[string]*models.Batch{}
	}
	f.nextID++
	batch := &models.Batch{
		ID:        fmt.Sprintf("batch-%d", f.nextID),
		SourceID:  req.SourceID,
		Name:      req.Name,
		FilePath:  req.FilePath,
		Status:    models.BatchStatusRunning,
		StartTime: time.Now().UTC(),
	}
	f.batches[batch.ID] = batch
	return batch, nil
}

func (f *fakeBatchStore) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, ok := f.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s not found", id)
	}
	copied := *batch
	return &copied, nil
}

func (f *fakeBatchStore) Finalize(ctx context.Context, id string, req models.FinalizeBatchRequest) error {
	batch := f.batches[id]
	batch.Status = req.Status
	batch.RowCount = req.RowCount
	batch.QualityScore = req.QualityScore
	return nil
}

func (f *fakeBatchStore) MarkFailed(ctx context.Context, id string, score *float64, reason string) error {
	batch := f.batches[id]
	batch.Status = models.BatchStatusFailed
	batch.QualityScore = score
	batch.ErrorMessage = &reason
	return nil
}

type fakeAssets struct {
	nextID int64
	bySym  map[string]int64
}

func (f *fakeAssets) Upsert(ctx context.Context, req models.UpsertAssetRequest) (*assetrepo.UpsertResult, error) {
	if f.bySym == nil {
		f.bySym = map[string]int64{}
	}
	id, ok := f.bySym[req.Symbol]
	if !ok {
		f.nextID++
		id = f.nextID
		f.bySym[req.Symbol] = id
	}
	return &assetrepo.UpsertResult{
		Asset: &models.Asset{ID: id, Symbol: req.Symbol, AssetType: req.AssetType},
		IsNew: !ok,
	}, nil
}

type fakePrices struct {
	facts map[string]pricerepo.UpsertRow
}

func (f *fakePrices) UpsertChunk(ctx context.Context, rows []pricerepo.UpsertRow) (int, int, error) {
	if f.facts == nil {
		f.facts = map[string]pricerepo.UpsertRow{}
	}
	// Same rule as Postgres: one statement may not touch a key twice.
	seen := map[string]bool{}
	loaded := 0
	newRows := 0
	for _, row := range rows {
		key := fmt.Sprintf("%d|%s|%d|%s", row.AssetID, row.PriceDate.Format("2006-01-02"), row.SourceID, row.Granularity)
		if seen[key] {
			return 0, 0, fmt.Errorf("pq: ON CONFLICT DO UPDATE command cannot affect row a second time")
		}
		seen[key] = true
		if _, ok := f.facts[key]; !ok {
			newRows++
		}
		f.facts[key] = row
		loaded++
	}
	return loaded, newRows, nil
}

type fakeChecks struct {
	inserted []models.QualityCheck
}

func (f *fakeChecks) InsertResults(ctx context.Context, checks []models.QualityCheck) error {
	f.inserted = append(f.inserted, checks...)
	return nil
}

type fakeStagingStore struct {
	rowsByBatch map[string][]models.StagedRow
}

func (f *fakeStagingStore) InsertRows(ctx context.Context, batchID string, rows []models.StagedRow) error {
	if f.rowsByBatch == nil {
		f.rowsByBatch = map[string][]models.StagedRow{}
	}
	f.rowsByBatch[batchID] = rows
	return nil
}

type fakeRefresher struct {
	calls    int
	inFlight bool
}

func (f *fakeRefresher) Refresh(ctx context.Context, concurrent bool) (*models.RefreshResult, error) {
	if f.inFlight {
		return nil, gold.ErrRefreshInFlight
	}
	f.calls++
	return &models.RefreshResult{Mode: models.RefreshModeConcurrent, RowCount: 10}, nil
}

type fakePublisher struct {
	events []*fernkafka.PipelineEvent
}

func (p *fakePublisher) PublishPipelineEvent(ctx context.Context, event *fernkafka.PipelineEvent) error {
	p.events = append(p.events, event)
	return nil
}

// --- fixture ---

type fixture struct {
	sources   *fakeSources
	batches   *fakeBatchStore
	staged    *fakeStagingStore
	prices    *fakePrices
	checks    *fakeChecks
	refresher *fakeRefresher
	publisher *fakePublisher
	pipeline  *Pipeline
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	logger := logging.NewTestLogger()

	f := &fixture{
		sources:   &fakeSources{},
		batches:   &fakeBatchStore{},
		staged:    &fakeStagingStore{},
		prices:    &fakePrices{},
		checks:    &fakeChecks{},
		refresher: &fakeRefresher{},
		publisher: &fakePublisher{},
	}

	scorer := quality.NewScorer(quality.Thresholds{
		MinScore:        75,
		HardFloor:       50,
		MaxNullPct:      5,
		FailNullPct:     20,
		MaxDuplicatePct: 1,
		MinDate:         time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
	}, quality.DefaultWeights(), logger)

	ldr := loader.NewLoader(&fakeDB{}, &fakeAssets{}, f.batches, f.prices, f.checks, logger, loader.Options{})

	stager := staging.NewNormalizer(f.staged, logger, nil)
	dryStager := staging.NewNormalizer(nil, logger, nil)
	emitter := events.NewEmitter(f.publisher, logger)

	if opts.SourceName == "" {
		opts.SourceName = "csv_file"
	}

	f.pipeline = NewPipeline(f.sources, f.batches, stager, dryStager, scorer, ldr, f.refresher, emitter, logger, opts)
	return f
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const partialCSV = `Date,Open,High,Low,Close,Volume
2024-01-02,185.64,186.95,184.35,185.64,52164500
2024-01-03,184.22,185.88,183.43,184.25,58414400
2024-01-04,182.15,180.00,183.00,181.91,71983600
2024-01-05,181.99,183.10,181.50,182.68,62303300
2024-01-08,182.09,185.60,181.50,185.56,59144500
`

func TestIngestFilePartial(t *testing.T) {
	f := newFixture(t, Options{RefreshAfterLoad: true, RefreshConcurrent: true})

	// Row 3 has high below low; everything else is clean.
	path := writeCSV(t, "AAPL.csv", partialCSV)

	result, err := f.pipeline.IngestFile(context.Background(), FileRequest{Path: path})
	require.NoError(t, err)

	require.NotNil(t, result.Batch)
	assert.Equal(t, models.BatchStatusPartial, result.Batch.Status)
	assert.Equal(t, 4, result.Batch.RowCount)

	require.NotNil(t, result.Load)
	assert.Equal(t, 4, result.Load.RowsInserted)
	assert.Equal(t, 1, result.Load.RowsSkipped)

	var consistency quality.CheckResult
	for _, check := range result.Report.Checks {
		if check.Name == models.CheckConsistency {
			consistency = check
		}
	}
	assert.Equal(t, 80.0, consistency.Score)

	// Staged rows persisted for lineage even though one row was skipped.
	assert.Len(t, f.staged.rowsByBatch[result.Batch.ID], 5)
	assert.Len(t, f.checks.inserted, 4)

	// Refresh ran after the committed load, and both events went out.
	assert.Equal(t, 1, f.refresher.calls)
	require.NotNil(t, result.Refresh)
	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, events.EventTypeBatchPartial, f.publisher.events[0].EventType)
	assert.Equal(t, events.EventTypeGoldRefreshed, f.publisher.events[1].EventType)
}

func TestIngestFileSuccess(t *testing.T) {
	f := newFixture(t, Options{RefreshAfterLoad: true})

	content := `Date,Open,High,Low,Close,Volume
2024-01-02,185.64,186.95,184.35,185.64,52164500
2024-01-03,184.22,185.88,183.43,184.25,58414400
`
	path := writeCSV(t, "MSFT.csv", content)

	result, err := f.pipeline.IngestFile(context.Background(), FileRequest{Path: path})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusSuccess, result.Batch.Status)
	assert.Equal(t, 100.0, result.Report.OverallScore)
	assert.Equal(t, []string{"MSFT"}, result.Summary.Symbols)
	assert.Equal(t, events.EventTypeBatchCompleted, f.publisher.events[0].EventType)
}

func TestIngestFileDuplicateDateLoads(t *testing.T) {
	f := newFixture(t, Options{})

	// One date appears twice. Uniqueness degrades the score but the
	// batch still loads, with the later row's values for that date.
	content := `Date,Open,High,Low,Close,Volume
2024-01-02,185.64,186.95,184.35,185.64,52164500
2024-01-03,184.22,185.88,183.43,184.25,58414400
2024-01-04,182.15,184.26,180.93,181.91,71983600
2024-01-05,181.99,183.10,181.50,182.68,62303300
2024-01-05,181.99,183.10,181.50,182.01,62303300
`
	result, err := f.pipeline.IngestFile(context.Background(), FileRequest{Path: writeCSV(t, "AAPL.csv", content)})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusSuccess, result.Batch.Status)
	assert.Equal(t, 4, result.Batch.RowCount)
	assert.Equal(t, 98.0, result.Report.OverallScore)

	require.Len(t, f.prices.facts, 4)
	for _, fact := range f.prices.facts {
		if fact.PriceDate.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
			assert.Equal(t, 182.01, fact.Close)
		}
	}
}

func TestReingestConvergesToLatestValues(t *testing.T) {
	f := newFixture(t, Options{})

	first := `Date,Open,High,Low,Close,Volume,Adj Close
2024-01-02,185.64,186.95,184.35,185.64,52164500,185.64
2024-01-03,184.22,185.88,183.43,184.25,58414400,184.25
`
	second := `Date,Open,High,Low,Close,Volume,Adj Close
2024-01-02,185.64,186.95,184.35,185.64,52164500,183.10
2024-01-03,184.22,185.88,183.43,184.25,58414400,181.75
`
	ctx := context.Background()

	res1, err := f.pipeline.IngestFile(ctx, FileRequest{Path: writeCSV(t, "AAPL.csv", first)})
	require.NoError(t, err)
	assert.Equal(t, 2, res1.Load.RowsNew)

	res2, err := f.pipeline.IngestFile(ctx, FileRequest{Path: writeCSV(t, "AAPL.csv", second)})
	require.NoError(t, err)
	assert.Equal(t, 0, res2.Load.RowsNew)

	// Still exactly one fact per key, now carrying the re-sent values.
	require.Len(t, f.prices.facts, 2)
	for _, fact := range f.prices.facts {
		require.NotNil(t, fact.AdjClose)
		assert.Less(t, *fact.AdjClose, 184.0)
		assert.Equal(t, res2.Batch.ID, fact.BatchID)
	}
}

func TestIngestFileGateFailure(t *testing.T) {
	f := newFixture(t, Options{RefreshAfterLoad: true})

	// Nothing parses, so the gate fails the batch outright.
	content := `Date,Open,High,Low,Close
garbage,x,y,z,w
more,junk,in,this,row
`
	path := writeCSV(t, "JUNK.csv", content)

	result, err := f.pipeline.IngestFile(context.Background(), FileRequest{Path: path})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusFailed, result.Batch.Status)
	assert.Empty(t, f.prices.facts)
	// The quality report is still persisted for the post-mortem.
	assert.Len(t, f.checks.inserted, 4)
	// A failed batch never triggers a refresh.
	assert.Equal(t, 0, f.refresher.calls)
	assert.Equal(t, events.EventTypeBatchFailed, f.publisher.events[0].EventType)
}

func TestIngestFileDryRun(t *testing.T) {
	f := newFixture(t, Options{RefreshAfterLoad: true})

	path := writeCSV(t, "AAPL.csv", partialCSV)

	result, err := f.pipeline.IngestFile(context.Background(), FileRequest{Path: path, DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Nil(t, result.Batch)
	assert.Nil(t, result.Load)
	require.NotNil(t, result.Report)
	assert.Equal(t, models.BatchStatusPartial, result.Gate.Status)

	// Nothing was written anywhere.
	assert.Empty(t, f.batches.batches)
	assert.Empty(t, f.staged.rowsByBatch)
	assert.Empty(t, f.prices.facts)
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, 0, f.refresher.calls)
}

func TestIngestFileStagingErrorFailsBatch(t *testing.T) {
	f := newFixture(t, Options{})

	path := filepath.Join(t.TempDir(), "missing.csv")

	result, err := f.pipeline.IngestFile(context.Background(), FileRequest{Path: path})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Error(t, result.Err)

	// The batch was opened, so it must be closed out as FAILED.
	require.Len(t, f.batches.batches, 1)
	for _, batch := range f.batches.batches {
		assert.Equal(t, models.BatchStatusFailed, batch.Status)
	}
}

func TestIngestFileRefreshInFlightIsSkipped(t *testing.T) {
	f := newFixture(t, Options{RefreshAfterLoad: true})
	f.refresher.inFlight = true

	path := writeCSV(t, "AAPL.csv", partialCSV)

	result, err := f.pipeline.IngestFile(context.Background(), FileRequest{Path: path})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusPartial, result.Batch.Status)
	assert.Nil(t, result.Refresh)
}

func TestIngestFilesWorkerPool(t *testing.T) {
	f := newFixture(t, Options{Workers: 2, RefreshAfterLoad: false})

	good := `Date,Open,High,Low,Close,Volume
2024-01-02,185.64,186.95,184.35,185.64,52164500
`
	requests := []FileRequest{
		{Path: writeCSV(t, "AAPL.csv", good)},
		{Path: writeCSV(t, "MSFT.csv", good)},
		{Path: filepath.Join(t.TempDir(), "missing.csv")},
	}

	results := f.pipeline.IngestFiles(context.Background(), requests)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)

	assert.Equal(t, models.BatchStatusSuccess, results[0].Batch.Status)
	assert.Equal(t, models.BatchStatusSuccess, results[1].Batch.Status)
}

func TestIngestFileRequiresPath(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.pipeline.IngestFile(context.Background(), FileRequest{})
	require.Error(t, err)
}
