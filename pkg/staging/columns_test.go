package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHeaderDialects(t *testing.T) {
	mapping := DefaultColumnMapping()

	tests := []struct {
		name   string
		header []string
	}{
		{
			name:   "yahoo title case",
			header: []string{"Date", "Open", "High", "Low", "Close", "Adj Close", "Volume"},
		},
		{
			name:   "lowercase export",
			header: []string{"date", "open", "high", "low", "close", "adj_close", "volume"},
		},
		{
			name:   "vendor shouting case",
			header: []string{"DATE", "OPEN", "HIGH", "LOW", "CLOSE", "ADJ_CLOSE", "VOLUME"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := mapping.Resolve(tt.header)

			assert.Equal(t, 0, resolved[ColumnDate])
			assert.Equal(t, 1, resolved[ColumnOpen])
			assert.Equal(t, 2, resolved[ColumnHigh])
			assert.Equal(t, 3, resolved[ColumnLow])
			assert.Equal(t, 4, resolved[ColumnClose])
			assert.Equal(t, 5, resolved[ColumnAdjClose])
			assert.Equal(t, 6, resolved[ColumnVolume])
			assert.Empty(t, MissingRequired(resolved))
		})
	}
}

func TestResolvePrefersExactMatch(t *testing.T) {
	mapping := ColumnMapping{
		ColumnClose: {"Close", "close_price"},
	}

	// "CLOSE" only matches case-insensitively; "Close" matches exactly.
	resolved := mapping.Resolve([]string{"CLOSE", "Close"})
	assert.Equal(t, 1, resolved[ColumnClose])
}

func TestResolveTrimsWhitespace(t *testing.T) {
	mapping := DefaultColumnMapping()

	resolved := mapping.Resolve([]string{" Date ", "Open "})
	assert.Equal(t, 0, resolved[ColumnDate])
	assert.Equal(t, 1, resolved[ColumnOpen])
}

func TestResolveTickerAlias(t *testing.T) {
	mapping := DefaultColumnMapping()

	resolved := mapping.Resolve([]string{"ticker", "date", "open", "high", "low", "close"})
	assert.Equal(t, 0, resolved[ColumnSymbol])
}

func TestMissingRequired(t *testing.T) {
	mapping := DefaultColumnMapping()

	resolved := mapping.Resolve([]string{"Date", "Close"})
	missing := MissingRequired(resolved)

	require.Len(t, missing, 3)
	assert.Contains(t, missing, ColumnOpen)
	assert.Contains(t, missing, ColumnHigh)
	assert.Contains(t, missing, ColumnLow)
}
