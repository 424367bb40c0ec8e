package models

import "time"

type BatchStatus string

const (
	BatchStatusRunning BatchStatus = "RUNNING"
	BatchStatusSuccess BatchStatus = "SUCCESS"
	BatchStatusPartial BatchStatus = "PARTIAL"
	BatchStatusFailed  BatchStatus = "FAILED"
)

// IsTerminal reports whether the status is an end state. Terminal batches
// are never transitioned again; reloads create a new batch.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusSuccess || s == BatchStatusPartial || s == BatchStatusFailed
}

// CanTransitionTo enforces the batch lifecycle: RUNNING may move to any
// terminal state, terminal states are frozen.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	return s == BatchStatusRunning && next.IsTerminal()
}

// Batch is one ingestion attempt and the unit of lineage: every fact row
// carries its batch id permanently.
type Batch struct {
	ID               string      `json:"id" db:"id"`
	SourceID         int64       `json:"source_id" db:"source_id"`
	Name             string      `json:"name" db:"name"`
	FilePath         string      `json:"file_path" db:"file_path"`
	DeclaredRowCount int         `json:"declared_row_count" db:"declared_row_count"`
	RowCount         int         `json:"row_count" db:"row_count"`
	StartTime        time.Time   `json:"start_time" db:"start_time"`
	EndTime          *time.Time  `json:"end_time,omitempty" db:"end_time"`
	Status           BatchStatus `json:"status" db:"status"`
	ErrorMessage     *string     `json:"error_message,omitempty" db:"error_message"`
	QualityScore     *float64    `json:"quality_score,omitempty" db:"quality_score"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}

// CreateBatchRequest opens a new RUNNING batch for a source file.
type CreateBatchRequest struct {
	SourceID         int64  `json:"source_id" validate:"required"`
	Name             string `json:"name" validate:"required"`
	FilePath         string `json:"file_path"`
	DeclaredRowCount int    `json:"declared_row_count"`
}

// FinalizeBatchRequest closes a batch with its terminal status.
type FinalizeBatchRequest struct {
	Status       BatchStatus `json:"status" validate:"required"`
	RowCount     int         `json:"row_count"`
	QualityScore *float64    `json:"quality_score,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
}

// BatchListResponse is the response for listing batches.
type BatchListResponse struct {
	Items      []Batch `json:"items"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
}
