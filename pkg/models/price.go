package models

import "time"

type Granularity string

const (
	GranularityDaily  Granularity = "DAILY"
	GranularityHourly Granularity = "HOURLY"
	GranularityMinute Granularity = "MINUTE"
)

// IsIntraday reports whether records at this granularity land in the
// timestamp-partitioned intraday table.
func (g Granularity) IsIntraday() bool {
	return g == GranularityHourly || g == GranularityMinute
}

// PriceRecord is one raw fact, unique on (asset_id, price_date,
// source_id, granularity). A conflicting insert from a later batch
// replaces the price fields and lineage.
type PriceRecord struct {
	ID          int64       `json:"id" db:"id"`
	AssetID     int64       `json:"asset_id" db:"asset_id"`
	PriceDate   time.Time   `json:"price_date" db:"price_date"`
	SourceID    int64       `json:"source_id" db:"source_id"`
	BatchID     string      `json:"batch_id" db:"batch_id"`
	Granularity Granularity `json:"granularity" db:"granularity"`
	Open        float64     `json:"open" db:"open"`
	High        float64     `json:"high" db:"high"`
	Low         float64     `json:"low" db:"low"`
	Close       float64     `json:"close" db:"close"`
	Volume      *int64      `json:"volume,omitempty" db:"volume"`
	AdjClose    *float64    `json:"adj_close,omitempty" db:"adj_close"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// ParsedRow is a staged row whose fields parsed successfully. Only
// parsed rows that also satisfy the OHLC invariant are loadable.
type ParsedRow struct {
	RowNumber int       `json:"row_number"`
	Symbol    string    `json:"symbol"`
	PriceDate time.Time `json:"price_date"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    *int64    `json:"volume,omitempty"`
	AdjClose  *float64  `json:"adj_close,omitempty"`
}

// Consistent reports the OHLC invariant: low <= open,close <= high and
// every price strictly positive.
func (r ParsedRow) Consistent() bool {
	if r.Open <= 0 || r.High <= 0 || r.Low <= 0 || r.Close <= 0 {
		return false
	}
	if r.Low > r.Open || r.Open > r.High {
		return false
	}
	if r.Low > r.Close || r.Close > r.High {
		return false
	}
	return true
}
