package price

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestFactTableRouting(t *testing.T) {
	tests := []struct {
		granularity models.Granularity
		table       string
	}{
		{models.GranularityDaily, "price_raw"},
		{models.GranularityHourly, "price_raw_intraday"},
		{models.GranularityMinute, "price_raw_intraday"},
	}

	for _, tc := range tests {
		t.Run(string(tc.granularity), func(t *testing.T) {
			assert.Equal(t, tc.table, factTable(tc.granularity))
		})
	}
}

func TestSplitByTable(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := []UpsertRow{
		{AssetID: 1, PriceDate: day, Granularity: models.GranularityDaily},
		{AssetID: 1, PriceDate: day.Add(10 * time.Hour), Granularity: models.GranularityHourly},
		{AssetID: 2, PriceDate: day, Granularity: models.GranularityDaily},
		{AssetID: 1, PriceDate: day.Add(11 * time.Hour), Granularity: models.GranularityMinute},
	}

	daily, intraday := splitByTable(rows)

	assert.Len(t, daily, 2)
	assert.Len(t, intraday, 2)
	assert.Equal(t, int64(1), daily[0].AssetID)
	assert.Equal(t, int64(2), daily[1].AssetID)
	assert.Equal(t, models.GranularityHourly, intraday[0].Granularity)
	assert.Equal(t, models.GranularityMinute, intraday[1].Granularity)
}
