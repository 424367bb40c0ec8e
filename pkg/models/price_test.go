package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsedRowConsistent(t *testing.T) {
	base := ParsedRow{Open: 150, High: 160, Low: 140, Close: 155}

	tests := []struct {
		name       string
		mutate     func(*ParsedRow)
		consistent bool
	}{
		{"valid", func(r *ParsedRow) {}, true},
		{"open equals bounds", func(r *ParsedRow) { r.Open = r.Low }, true},
		{"close at high", func(r *ParsedRow) { r.Close = r.High }, true},
		{"flat day", func(r *ParsedRow) { r.Open, r.High, r.Low, r.Close = 150, 150, 150, 150 }, true},
		{"high below low", func(r *ParsedRow) { r.High, r.Low = 140, 160 }, false},
		{"open above high", func(r *ParsedRow) { r.Open = 170 }, false},
		{"close below low", func(r *ParsedRow) { r.Close = 130 }, false},
		{"zero price", func(r *ParsedRow) { r.Open = 0 }, false},
		{"negative price", func(r *ParsedRow) { r.Low = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := base
			tt.mutate(&row)
			assert.Equal(t, tt.consistent, row.Consistent())
		})
	}
}

func TestGranularityIsIntraday(t *testing.T) {
	assert.False(t, GranularityDaily.IsIntraday())
	assert.True(t, GranularityHourly.IsIntraday())
	assert.True(t, GranularityMinute.IsIntraday())
}
