package models

import "time"

// StagedRow is the canonical shape a raw CSV row is normalized into.
// All price and volume fields stay raw strings here so malformed cells
// surface during quality scoring instead of aborting the whole load.
type StagedRow struct {
	ID          int64     `json:"id" db:"id"`
	BatchID     string    `json:"batch_id" db:"batch_id"`
	Symbol      string    `json:"symbol" db:"symbol"`
	DateRaw     string    `json:"date_raw" db:"date_raw"`
	OpenRaw     string    `json:"open_raw" db:"open_raw"`
	HighRaw     string    `json:"high_raw" db:"high_raw"`
	LowRaw      string    `json:"low_raw" db:"low_raw"`
	CloseRaw    string    `json:"close_raw" db:"close_raw"`
	VolumeRaw   string    `json:"volume_raw" db:"volume_raw"`
	AdjCloseRaw string    `json:"adj_close_raw" db:"adj_close_raw"`
	SourceFile  string    `json:"source_file" db:"source_file"`
	RowNumber   int       `json:"row_number" db:"row_number"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// StagingSummary describes what a file contributed to the staging area.
type StagingSummary struct {
	BatchID     string   `json:"batch_id"`
	SourceFile  string   `json:"source_file"`
	RowCount    int      `json:"row_count"`
	Symbols     []string `json:"symbols"`
	MinDateRaw  string   `json:"min_date_raw"`
	MaxDateRaw  string   `json:"max_date_raw"`
	FlaggedRows int      `json:"flagged_rows"`
}
