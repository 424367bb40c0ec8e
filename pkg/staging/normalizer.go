package staging

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"sort"

	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store persists canonical rows into the staging area.
type Store interface {
	InsertRows(ctx context.Context, batchID string, rows []models.StagedRow) error
}

// Normalizer parses heterogeneous CSV inputs into the canonical staged
// row shape. Every price and volume field stays a raw string here so a
// malformed cell surfaces during quality scoring instead of aborting
// the load.
type Normalizer struct {
	store   Store
	logger  ectologger.Logger
	mapping ColumnMapping
}

// NewNormalizer creates a new normalizer. A nil mapping uses the default
// header dialects.
func NewNormalizer(store Store, logger ectologger.Logger, mapping ColumnMapping) *Normalizer {
	if mapping == nil {
		mapping = DefaultColumnMapping()
	}
	return &Normalizer{
		store:   store,
		logger:  logger,
		mapping: mapping,
	}
}

// NormalizeFile stages a CSV file. The symbol hint wins over both the
// file's symbol column and file-name inference.
func (n *Normalizer) NormalizeFile(ctx context.Context, batchID, filePath, symbolHint string) ([]models.StagedRow, *models.StagingSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Normalizer.NormalizeFile")
	defer span.End()

	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fernerrors.NewConfigurationErrorf("cannot open input: %v", err).AddFile(filePath)
	}
	defer file.Close()

	return n.Normalize(ctx, batchID, file, filePath, symbolHint)
}

// Normalize stages rows from a CSV stream tagged with sourceFile. Rows
// whose required columns did not resolve are flagged (left with empty
// raw values), never dropped; scoring decides their fate.
func (n *Normalizer) Normalize(ctx context.Context, batchID string, input io.Reader, sourceFile, symbolHint string) ([]models.StagedRow, *models.StagingSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Normalizer.Normalize")
	defer span.End()

	reader := csv.NewReader(input)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fernerrors.NewConfigurationErrorf("cannot read CSV header: %v", err).AddFile(sourceFile)
	}

	resolved := n.mapping.Resolve(header)
	if missing := MissingRequired(resolved); len(missing) > 0 {
		n.logger.WithContext(ctx).WithFields(map[string]any{"source_file": sourceFile, "missing": missing}).Warn("Header is missing required columns; affected fields stay empty and will be flagged by scoring")
	}

	fileSymbol := symbolHint
	if fileSymbol == "" && resolved[ColumnSymbol] < 0 {
		fileSymbol, err = InferSymbol(sourceFile)
		if err != nil {
			return nil, nil, err
		}
	}

	var (
		rows        []models.StagedRow
		flaggedRows int
		symbols     = map[string]struct{}{}
		minDate     string
		maxDate     string
	)

	rowNumber := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep a placeholder so the row is visible to scoring as invalid.
			rowNumber++
			rows = append(rows, models.StagedRow{
				BatchID:    batchID,
				Symbol:     fileSymbol,
				SourceFile: sourceFile,
				RowNumber:  rowNumber,
			})
			flaggedRows++
			continue
		}
		rowNumber++

		symbol := fileSymbol
		if symbol == "" {
			symbol = cell(record, resolved[ColumnSymbol])
		}

		row := models.StagedRow{
			BatchID:     batchID,
			Symbol:      symbol,
			DateRaw:     cell(record, resolved[ColumnDate]),
			OpenRaw:     cell(record, resolved[ColumnOpen]),
			HighRaw:     cell(record, resolved[ColumnHigh]),
			LowRaw:      cell(record, resolved[ColumnLow]),
			CloseRaw:    cell(record, resolved[ColumnClose]),
			VolumeRaw:   cell(record, resolved[ColumnVolume]),
			AdjCloseRaw: cell(record, resolved[ColumnAdjClose]),
			SourceFile:  sourceFile,
			RowNumber:   rowNumber,
		}

		if row.Symbol == "" || row.DateRaw == "" || row.OpenRaw == "" || row.HighRaw == "" || row.LowRaw == "" || row.CloseRaw == "" {
			flaggedRows++
		}
		if row.Symbol != "" {
			symbols[row.Symbol] = struct{}{}
		}
		if row.DateRaw != "" {
			if minDate == "" || row.DateRaw < minDate {
				minDate = row.DateRaw
			}
			if row.DateRaw > maxDate {
				maxDate = row.DateRaw
			}
		}

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, nil, fernerrors.NewConfigurationError("input contains no data rows").AddFile(sourceFile)
	}

	if n.store != nil {
		if err := n.store.InsertRows(ctx, batchID, rows); err != nil {
			return nil, nil, err
		}
	}

	summary := &models.StagingSummary{
		BatchID:     batchID,
		SourceFile:  sourceFile,
		RowCount:    len(rows),
		Symbols:     sortedKeys(symbols),
		MinDateRaw:  minDate,
		MaxDateRaw:  maxDate,
		FlaggedRows: flaggedRows,
	}

	n.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    batchID,
		"source_file": sourceFile,
		"rows":        summary.RowCount,
		"flagged":     summary.FlaggedRows,
	}).Info("Staged input file")

	return rows, summary, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
