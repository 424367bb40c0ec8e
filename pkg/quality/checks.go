package quality

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// dateLayouts are the accepted date formats, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	time.RFC3339,
}

// requiredFields are the cells completeness counts. Volume and adjusted
// close are optional and never penalized.
var requiredFields = []func(models.StagedRow) string{
	func(r models.StagedRow) string { return r.Symbol },
	func(r models.StagedRow) string { return r.DateRaw },
	func(r models.StagedRow) string { return r.OpenRaw },
	func(r models.StagedRow) string { return r.HighRaw },
	func(r models.StagedRow) string { return r.LowRaw },
	func(r models.StagedRow) string { return r.CloseRaw },
}

func checkCompleteness(rows []models.StagedRow, warnPct, failPct float64) CheckResult {
	total := len(rows) * len(requiredFields)
	empty := 0
	for _, row := range rows {
		for _, field := range requiredFields {
			if strings.TrimSpace(field(row)) == "" {
				empty++
			}
		}
	}

	nullFraction := 0.0
	if total > 0 {
		nullFraction = float64(empty) / float64(total)
	}
	nullPct := nullFraction * 100

	verdict := models.VerdictPass
	if nullPct > failPct {
		verdict = models.VerdictFail
	} else if nullPct > warnPct {
		verdict = models.VerdictWarn
	}

	return CheckResult{
		Name:    models.CheckCompleteness,
		Verdict: verdict,
		Score:   100 * (1 - nullFraction),
		Detail:  fmt.Sprintf("%d of %d required cells empty (%.2f%%)", empty, total, nullPct),
	}
}

// parseRows attempts full numeric and date parsing of every staged row.
// Failures become ParseErrors; they degrade the validity score but never
// abort the batch.
func parseRows(rows []models.StagedRow, minDate, maxDate time.Time) ([]models.ParsedRow, []*fernerrors.ParseError) {
	var parsed []models.ParsedRow
	var parseErrors []*fernerrors.ParseError

	for _, row := range rows {
		parsedRow, parseErr := parseRow(row, minDate, maxDate)
		if parseErr != nil {
			parseErrors = append(parseErrors, parseErr)
			continue
		}
		parsed = append(parsed, *parsedRow)
	}

	return parsed, parseErrors
}

func parseRow(row models.StagedRow, minDate, maxDate time.Time) (*models.ParsedRow, *fernerrors.ParseError) {
	priceDate, ok := parseDate(row.DateRaw)
	if !ok {
		return nil, fernerrors.NewParseError(row.RowNumber, "date", row.DateRaw, "unparseable date")
	}
	if priceDate.Before(minDate) {
		return nil, fernerrors.NewParseError(row.RowNumber, "date", row.DateRaw, "date before configured minimum")
	}
	if priceDate.After(maxDate) {
		return nil, fernerrors.NewParseError(row.RowNumber, "date", row.DateRaw, "date is in the future")
	}

	open, err := parsePrice(row.OpenRaw)
	if err != nil {
		return nil, fernerrors.NewParseError(row.RowNumber, "open", row.OpenRaw, err.Error())
	}
	high, err := parsePrice(row.HighRaw)
	if err != nil {
		return nil, fernerrors.NewParseError(row.RowNumber, "high", row.HighRaw, err.Error())
	}
	low, err := parsePrice(row.LowRaw)
	if err != nil {
		return nil, fernerrors.NewParseError(row.RowNumber, "low", row.LowRaw, err.Error())
	}
	closePrice, err := parsePrice(row.CloseRaw)
	if err != nil {
		return nil, fernerrors.NewParseError(row.RowNumber, "close", row.CloseRaw, err.Error())
	}

	result := models.ParsedRow{
		RowNumber: row.RowNumber,
		Symbol:    row.Symbol,
		PriceDate: priceDate,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
	}

	if raw := strings.TrimSpace(row.VolumeRaw); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return nil, fernerrors.NewParseError(row.RowNumber, "volume", row.VolumeRaw, "unparseable volume")
		}
		volume := int64(value)
		result.Volume = &volume
	}

	if raw := strings.TrimSpace(row.AdjCloseRaw); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fernerrors.NewParseError(row.RowNumber, "adj_close", row.AdjCloseRaw, "unparseable adjusted close")
		}
		result.AdjClose = &value
	}

	return &result, nil
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

func parsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0, fmt.Errorf("empty value")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable number")
	}
	return value, nil
}

func checkValidity(totalRows, parsedRows int) CheckResult {
	score := 0.0
	if totalRows > 0 {
		score = float64(parsedRows) / float64(totalRows) * 100
	}

	return CheckResult{
		Name:    models.CheckValidity,
		Verdict: fractionVerdict(score),
		Score:   score,
		Detail:  fmt.Sprintf("%d of %d rows parsed", parsedRows, totalRows),
	}
}

// checkConsistency applies the OHLC invariant to parsed rows. A violating
// row is recorded and excluded from the load, not silently dropped from
// the score.
func checkConsistency(parsed []models.ParsedRow) (CheckResult, []models.ParsedRow, []*fernerrors.ConsistencyError) {
	var loadable []models.ParsedRow
	var consistencyErrors []*fernerrors.ConsistencyError

	for _, row := range parsed {
		if row.Consistent() {
			loadable = append(loadable, row)
			continue
		}
		consistencyErrors = append(consistencyErrors, fernerrors.NewConsistencyError(
			row.RowNumber,
			row.Symbol,
			row.PriceDate.Format("2006-01-02"),
			"OHLC invariant violated: requires low <= open,close <= high and all prices positive",
		))
	}

	score := 0.0
	if len(parsed) > 0 {
		score = float64(len(loadable)) / float64(len(parsed)) * 100
	}

	result := CheckResult{
		Name:    models.CheckConsistency,
		Verdict: fractionVerdict(score),
		Score:   score,
		Detail:  fmt.Sprintf("%d of %d parsed rows satisfy the OHLC invariant", len(loadable), len(parsed)),
	}

	return result, loadable, consistencyErrors
}

// checkUniqueness counts exact duplicates on (symbol, date) within the
// batch. Duplicates penalize the score but never block on their own.
func checkUniqueness(rows []models.StagedRow, warnPct float64) CheckResult {
	seen := make(map[string]struct{}, len(rows))
	duplicates := 0
	for _, row := range rows {
		key := row.Symbol + "|" + strings.TrimSpace(row.DateRaw)
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
	}

	score := 100.0
	dupPct := 0.0
	if len(rows) > 0 {
		dupPct = float64(duplicates) / float64(len(rows)) * 100
		score = 100 - dupPct
	}

	verdict := models.VerdictPass
	if dupPct > warnPct {
		verdict = models.VerdictWarn
	}

	return CheckResult{
		Name:    models.CheckUniqueness,
		Verdict: verdict,
		Score:   score,
		Detail:  fmt.Sprintf("%d duplicate rows of %d (%.2f%%)", duplicates, len(rows), dupPct),
	}
}

// fractionVerdict grades a 0-100 fraction score: all rows passing is
// PASS, a majority passing is WARN, anything under half is FAIL.
func fractionVerdict(score float64) models.CheckVerdict {
	switch {
	case score >= 100:
		return models.VerdictPass
	case score >= 50:
		return models.VerdictWarn
	default:
		return models.VerdictFail
	}
}
