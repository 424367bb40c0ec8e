package staging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeStore struct {
	batchID string
	rows    []models.StagedRow
	err     error
}

func (s *fakeStore) InsertRows(ctx context.Context, batchID string, rows []models.StagedRow) error {
	s.batchID = batchID
	s.rows = rows
	return s.err
}

const yahooCSV = `Date,Open,High,Low,Close,Adj Close,Volume
2024-01-02,185.64,186.95,184.35,185.64,185.10,52164500
2024-01-03,184.22,185.88,183.43,184.25,183.71,58414400
2024-01-04,182.15,183.09,180.88,181.91,181.38,71983600
`

func TestNormalizeYahooFile(t *testing.T) {
	store := &fakeStore{}
	n := NewNormalizer(store, logging.NewTestLogger(), nil)

	rows, summary, err := n.Normalize(context.Background(), "batch-1", strings.NewReader(yahooCSV), "AAPL.csv", "")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "AAPL", rows[0].Symbol)
	assert.Equal(t, "2024-01-02", rows[0].DateRaw)
	assert.Equal(t, "185.64", rows[0].OpenRaw)
	assert.Equal(t, "186.95", rows[0].HighRaw)
	assert.Equal(t, "184.35", rows[0].LowRaw)
	assert.Equal(t, "185.64", rows[0].CloseRaw)
	assert.Equal(t, "185.10", rows[0].AdjCloseRaw)
	assert.Equal(t, "52164500", rows[0].VolumeRaw)
	assert.Equal(t, 1, rows[0].RowNumber)

	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.RowCount)
	assert.Equal(t, []string{"AAPL"}, summary.Symbols)
	assert.Equal(t, "2024-01-02", summary.MinDateRaw)
	assert.Equal(t, "2024-01-04", summary.MaxDateRaw)
	assert.Equal(t, 0, summary.FlaggedRows)

	assert.Equal(t, "batch-1", store.batchID)
	assert.Len(t, store.rows, 3)
}

func TestNormalizeSymbolPrecedence(t *testing.T) {
	// A symbol column is present, but the hint must win.
	input := `symbol,date,open,high,low,close
MSFT,2024-01-02,370.00,372.00,369.00,371.00
`
	n := NewNormalizer(nil, logging.NewTestLogger(), nil)

	rows, _, err := n.Normalize(context.Background(), "batch-1", strings.NewReader(input), "feed.csv", "TSLA")
	require.NoError(t, err)
	assert.Equal(t, "TSLA", rows[0].Symbol)

	// Without a hint the symbol column wins over file-name inference.
	rows, _, err = n.Normalize(context.Background(), "batch-1", strings.NewReader(input), "feed.csv", "")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", rows[0].Symbol)
}

func TestNormalizeInfersSymbolFromFileName(t *testing.T) {
	input := `date,open,high,low,close
2024-01-02,42.00,43.00,41.00,42.50
`
	n := NewNormalizer(nil, logging.NewTestLogger(), nil)

	rows, summary, err := n.Normalize(context.Background(), "batch-1", strings.NewReader(input), "/feeds/BTC-USD.csv", "")
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", rows[0].Symbol)
	assert.Equal(t, []string{"BTC-USD"}, summary.Symbols)
}

func TestNormalizeFlagsIncompleteRows(t *testing.T) {
	input := `Date,Open,High,Low,Close
2024-01-02,185.64,186.95,184.35,185.64
2024-01-03,,185.88,183.43,184.25
2024-01-04,182.15,183.09,180.88,
`
	n := NewNormalizer(nil, logging.NewTestLogger(), nil)

	rows, summary, err := n.Normalize(context.Background(), "batch-1", strings.NewReader(input), "AAPL.csv", "")
	require.NoError(t, err)

	// Flagged rows are kept, never dropped.
	require.Len(t, rows, 3)
	assert.Equal(t, 2, summary.FlaggedRows)
}

func TestNormalizeShortRecordsStayVisible(t *testing.T) {
	input := `Date,Open,High,Low,Close
2024-01-02,185.64,186.95,184.35,185.64
2024-01-03,184.22
`
	n := NewNormalizer(nil, logging.NewTestLogger(), nil)

	rows, summary, err := n.Normalize(context.Background(), "batch-1", strings.NewReader(input), "AAPL.csv", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, summary.FlaggedRows)
	assert.Empty(t, rows[1].HighRaw)
}

func TestNormalizeEmptyFile(t *testing.T) {
	n := NewNormalizer(nil, logging.NewTestLogger(), nil)

	_, _, err := n.Normalize(context.Background(), "batch-1", strings.NewReader("Date,Open,High,Low,Close\n"), "AAPL.csv", "")
	require.Error(t, err)
	assert.True(t, fernerrors.IsConfigurationError(err))
}

func TestNormalizeMissingHeader(t *testing.T) {
	n := NewNormalizer(nil, logging.NewTestLogger(), nil)

	_, _, err := n.Normalize(context.Background(), "batch-1", strings.NewReader(""), "AAPL.csv", "")
	require.Error(t, err)
	assert.True(t, fernerrors.IsConfigurationError(err))
}

func TestNormalizeStoreFailurePropagates(t *testing.T) {
	store := &fakeStore{err: assert.AnError}
	n := NewNormalizer(store, logging.NewTestLogger(), nil)

	_, _, err := n.Normalize(context.Background(), "batch-1", strings.NewReader(yahooCSV), "AAPL.csv", "")
	assert.ErrorIs(t, err, assert.AnError)
}
