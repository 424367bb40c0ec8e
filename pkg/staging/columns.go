package staging

import "strings"

// Canonical column names for staged rows.
const (
	ColumnDate     = "date"
	ColumnOpen     = "open"
	ColumnHigh     = "high"
	ColumnLow      = "low"
	ColumnClose    = "close"
	ColumnVolume   = "volume"
	ColumnAdjClose = "adj_close"
	ColumnSymbol   = "symbol"
)

// requiredColumns must resolve for a row to be considered complete.
// Unresolved required columns flag the row; they never drop it.
var requiredColumns = []string{ColumnDate, ColumnOpen, ColumnHigh, ColumnLow, ColumnClose}

// ColumnMapping declares, per canonical field, the header aliases
// accepted for it, in priority order. Resolution happens once per file.
type ColumnMapping map[string][]string

// DefaultColumnMapping covers the header dialects seen across providers:
// Yahoo-style title case, lowercase exports, and shouting-case vendor feeds.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		ColumnDate:     {"Date", "date", "DATE", "timestamp", "Timestamp"},
		ColumnOpen:     {"Open", "open", "OPEN", "open_price"},
		ColumnHigh:     {"High", "high", "HIGH", "high_price"},
		ColumnLow:      {"Low", "low", "LOW", "low_price"},
		ColumnClose:    {"Close", "close", "CLOSE", "close_price"},
		ColumnVolume:   {"Volume", "volume", "VOLUME", "vol"},
		ColumnAdjClose: {"Adj Close", "adj_close", "Adj_Close", "adjclose", "ADJ_CLOSE", "adjusted_close"},
		ColumnSymbol:   {"Symbol", "symbol", "ticker", "Ticker", "TICKER"},
	}
}

// Resolve maps each canonical field to its column index in the header,
// or -1 when no alias matched. Alias matching trims whitespace; an exact
// match wins over a case-insensitive one.
func (m ColumnMapping) Resolve(header []string) map[string]int {
	trimmed := make([]string, len(header))
	for i, h := range header {
		trimmed[i] = strings.TrimSpace(h)
	}

	resolved := make(map[string]int, len(m))
	for canonical, aliases := range m {
		resolved[canonical] = -1
		for _, alias := range aliases {
			if idx := indexOf(trimmed, alias, false); idx >= 0 {
				resolved[canonical] = idx
				break
			}
		}
		if resolved[canonical] >= 0 {
			continue
		}
		for _, alias := range aliases {
			if idx := indexOf(trimmed, alias, true); idx >= 0 {
				resolved[canonical] = idx
				break
			}
		}
	}

	return resolved
}

// MissingRequired lists required canonical fields the header failed to map.
func MissingRequired(resolved map[string]int) []string {
	var missing []string
	for _, canonical := range requiredColumns {
		if idx, ok := resolved[canonical]; !ok || idx < 0 {
			missing = append(missing, canonical)
		}
	}
	return missing
}

func indexOf(header []string, alias string, fold bool) int {
	for i, h := range header {
		if h == alias {
			return i
		}
		if fold && strings.EqualFold(h, alias) {
			return i
		}
	}
	return -1
}
