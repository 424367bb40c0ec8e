package models

import "time"

// GoldRecord is the deduplicated, latest-wins projection of raw facts:
// one row per (asset_id, price_date). It has no identity of its own and
// is fully recomputed on refresh.
type GoldRecord struct {
	AssetID        int64     `json:"asset_id" db:"asset_id"`
	Symbol         string    `json:"symbol" db:"symbol"`
	PriceDate      time.Time `json:"price_date" db:"price_date"`
	Open           float64   `json:"open" db:"open"`
	High           float64   `json:"high" db:"high"`
	Low            float64   `json:"low" db:"low"`
	Close          float64   `json:"close" db:"close"`
	Volume         *int64    `json:"volume,omitempty" db:"volume"`
	AdjClose       *float64  `json:"adj_close,omitempty" db:"adj_close"`
	SourceID       int64     `json:"source_id" db:"source_id"`
	BatchID        string    `json:"batch_id" db:"batch_id"`
	BatchStartTime time.Time `json:"batch_start_time" db:"batch_start_time"`
}

// GoldStats summarizes the published projection for operators.
type GoldStats struct {
	RowCount   int64      `json:"row_count" db:"row_count"`
	AssetCount int64      `json:"asset_count" db:"asset_count"`
	MinDate    *time.Time `json:"min_date,omitempty" db:"min_date"`
	MaxDate    *time.Time `json:"max_date,omitempty" db:"max_date"`
}

// RefreshMode is how the projection is rebuilt.
type RefreshMode string

const (
	RefreshModeBlocking   RefreshMode = "blocking"
	RefreshModeConcurrent RefreshMode = "concurrent"
)

// RefreshResult reports what a refresh actually did.
type RefreshResult struct {
	Mode     RefreshMode   `json:"mode"`
	FellBack bool          `json:"fell_back"`
	Duration time.Duration `json:"duration"`
	RowCount int64         `json:"row_count"`
}
