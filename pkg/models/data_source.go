package models

import "time"

const (
	SourceTypeAPI    = "API"
	SourceTypeFile   = "FILE"
	SourceTypeManual = "MANUAL"
)

// DataSource is a static catalog entry describing a provider. Rows are
// referenced by facts and never deleted during normal operation.
type DataSource struct {
	ID                 int64     `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	SourceType         string    `json:"source_type" db:"source_type"`
	RateLimitPerMinute *int      `json:"rate_limit_per_minute,omitempty" db:"rate_limit_per_minute"`
	Description        *string   `json:"description,omitempty" db:"description"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// CreateDataSourceRequest registers a new provider in the catalog.
type CreateDataSourceRequest struct {
	Name               string  `json:"name" validate:"required"`
	SourceType         string  `json:"source_type" validate:"required,oneof=API FILE MANUAL"`
	RateLimitPerMinute *int    `json:"rate_limit_per_minute,omitempty"`
	Description        *string `json:"description,omitempty"`
}
