package staging

import (
	"path/filepath"
	"regexp"
	"strings"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
)

var (
	// AAPL.csv, MSFT_daily.csv
	tickerPrefixPattern = regexp.MustCompile(`^([A-Z]{1,5})(?:[._-]|$)`)
	// BTC-USD.csv, ETH-USD_2024.csv
	pairPattern = regexp.MustCompile(`^([A-Z0-9]{2,6}-[A-Z]{2,6})(?:[._]|$)`)
	// aapl_prices.csv
	lowerPrefixPattern = regexp.MustCompile(`^([a-z]{1,5})[._-]`)

	symbolSanitizer = regexp.MustCompile(`[^A-Z0-9-]`)
)

// InferSymbol derives a ticker symbol from a file name when the caller
// supplied no explicit symbol. Recognized shapes, in order: crypto pair
// (BTC-USD), uppercase ticker prefix, lowercase ticker prefix. Anything
// else falls back to the sanitized uppercased stem.
func InferSymbol(fileName string) (string, error) {
	base := filepath.Base(fileName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if match := pairPattern.FindStringSubmatch(stem); match != nil {
		return match[1], nil
	}
	if match := tickerPrefixPattern.FindStringSubmatch(stem); match != nil {
		return match[1], nil
	}
	if match := lowerPrefixPattern.FindStringSubmatch(stem); match != nil {
		return strings.ToUpper(match[1]), nil
	}

	cleaned := symbolSanitizer.ReplaceAllString(strings.ToUpper(stem), "")
	if len(cleaned) > 10 {
		cleaned = cleaned[:10]
	}
	if cleaned == "" {
		return "", fernerrors.NewConfigurationErrorf("cannot infer symbol from file name '%s'", fileName).AddFile(fileName)
	}

	return cleaned, nil
}
