package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
)

func TestInferSymbol(t *testing.T) {
	tests := []struct {
		fileName string
		expected string
	}{
		{"AAPL.csv", "AAPL"},
		{"MSFT_daily.csv", "MSFT"},
		{"GOOG-2024.csv", "GOOG"},
		{"BTC-USD.csv", "BTC-USD"},
		{"ETH-USD_2024.csv", "ETH-USD"},
		{"aapl_prices.csv", "AAPL"},
		{"/data/feeds/TSLA.csv", "TSLA"},
		{"spy.history.csv", "SPY"},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			symbol, err := InferSymbol(tt.fileName)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, symbol)
		})
	}
}

func TestInferSymbolFallbackSanitizes(t *testing.T) {
	symbol, err := InferSymbol("quarterly prices report 2024.csv")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(symbol), 10)
	assert.Regexp(t, `^[A-Z0-9-]+$`, symbol)
}

func TestInferSymbolEmptyStem(t *testing.T) {
	_, err := InferSymbol("____.csv")
	require.Error(t, err)
	assert.True(t, fernerrors.IsConfigurationError(err))
}
