package models

import "time"

type CheckVerdict string

const (
	VerdictPass CheckVerdict = "PASS"
	VerdictWarn CheckVerdict = "WARN"
	VerdictFail CheckVerdict = "FAIL"
)

const (
	CheckCompleteness = "completeness"
	CheckValidity     = "validity"
	CheckConsistency  = "consistency"
	CheckUniqueness   = "uniqueness"
)

// QualityCheck is one persisted (batch, check name) verdict. Append-only,
// written once per batch inside the load transaction.
type QualityCheck struct {
	ID        int64        `json:"id" db:"id"`
	BatchID   string       `json:"batch_id" db:"batch_id"`
	CheckName string       `json:"check_name" db:"check_name"`
	Verdict   CheckVerdict `json:"verdict" db:"verdict"`
	Score     float64      `json:"score" db:"score"`
	Detail    *string      `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
