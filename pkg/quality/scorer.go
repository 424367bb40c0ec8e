package quality

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Thresholds are the externally supplied quality settings. MinScore is
// the bar for SUCCESS; HardFloor (inclusive) is the lowest score still
// eligible for a PARTIAL load.
type Thresholds struct {
	MinScore        float64
	HardFloor       float64
	MaxNullPct      float64
	FailNullPct     float64
	MaxDuplicatePct float64
	MinDate         time.Time
}

// Weights combine the four sub-scores into the overall 0-100 score.
type Weights struct {
	Completeness float64
	Validity     float64
	Consistency  float64
	Uniqueness   float64
}

// DefaultWeights favor the three structural checks over uniqueness.
func DefaultWeights() Weights {
	return Weights{
		Completeness: 0.3,
		Validity:     0.3,
		Consistency:  0.3,
		Uniqueness:   0.1,
	}
}

// CheckResult is one sub-metric's verdict.
type CheckResult struct {
	Name    string
	Verdict models.CheckVerdict
	Score   float64
	Detail  string
}

// Report is the full quality assessment of a batch's staged rows.
// Row-level errors are aggregated here, never surfaced individually.
type Report struct {
	OverallScore      float64
	Checks            []CheckResult
	RowCount          int
	ParsedRows        []models.ParsedRow
	LoadableRows      []models.ParsedRow
	SkippedRows       int
	ParseErrors       []*fernerrors.ParseError
	ConsistencyErrors []*fernerrors.ConsistencyError
}

// Scorer computes per-batch quality reports.
type Scorer struct {
	thresholds Thresholds
	weights    Weights
	logger     ectologger.Logger
	now        func() time.Time
}

// NewScorer creates a new scorer. Zero-valued weights fall back to the
// defaults so a partially configured environment cannot zero the score.
func NewScorer(thresholds Thresholds, weights Weights, logger ectologger.Logger) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Scorer{
		thresholds: thresholds,
		weights:    weights,
		logger:     logger,
		now:        time.Now,
	}
}

// Score runs the four checks over a batch's staged rows and combines
// them into the weighted overall score.
func (s *Scorer) Score(ctx context.Context, rows []models.StagedRow) *Report {
	ctx, span := tracing.StartSpan(ctx, "quality.Scorer.Score")
	defer span.End()

	maxDate := s.now().UTC().Truncate(24 * time.Hour).Add(24*time.Hour - time.Nanosecond)

	completeness := checkCompleteness(rows, s.thresholds.MaxNullPct, s.thresholds.FailNullPct)
	parsed, parseErrors := parseRows(rows, s.thresholds.MinDate, maxDate)
	validity := checkValidity(len(rows), len(parsed))
	consistency, loadable, consistencyErrors := checkConsistency(parsed)
	uniqueness := checkUniqueness(rows, s.thresholds.MaxDuplicatePct)

	checks := []CheckResult{completeness, validity, consistency, uniqueness}

	scores := map[string]float64{
		models.CheckCompleteness: completeness.Score,
		models.CheckValidity:     validity.Score,
		models.CheckConsistency:  consistency.Score,
		models.CheckUniqueness:   uniqueness.Score,
	}
	weights := map[string]float64{
		models.CheckCompleteness: s.weights.Completeness,
		models.CheckValidity:     s.weights.Validity,
		models.CheckConsistency:  s.weights.Consistency,
		models.CheckUniqueness:   s.weights.Uniqueness,
	}

	report := &Report{
		OverallScore:      weightedScore(scores, weights),
		Checks:            checks,
		RowCount:          len(rows),
		ParsedRows:        parsed,
		LoadableRows:      loadable,
		SkippedRows:       len(rows) - len(loadable),
		ParseErrors:       parseErrors,
		ConsistencyErrors: consistencyErrors,
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"rows":          report.RowCount,
		"loadable":      len(report.LoadableRows),
		"overall_score": report.OverallScore,
	}).Info("Scored batch")

	return report
}

// GateDecision is the scorer's verdict on whether and how to load.
type GateDecision struct {
	Status models.BatchStatus
	Reason string
}

// Gate applies the check-then-gate rule. The floor bound is inclusive:
// a score exactly at the hard floor still loads PARTIAL. A SUCCESS
// requires the minimum score and zero skipped rows.
func (s *Scorer) Gate(report *Report) GateDecision {
	if report.RowCount == 0 || len(report.ParsedRows) == 0 {
		return GateDecision{Status: models.BatchStatusFailed, Reason: "no rows parsed"}
	}
	if report.OverallScore < s.thresholds.HardFloor {
		return GateDecision{
			Status: models.BatchStatusFailed,
			Reason: fernerrors.NewQualityGateError("", report.OverallScore, s.thresholds.HardFloor).Message,
		}
	}
	if len(report.LoadableRows) == 0 {
		return GateDecision{Status: models.BatchStatusFailed, Reason: "no rows passed validity and consistency"}
	}
	if report.OverallScore >= s.thresholds.MinScore && report.SkippedRows == 0 {
		return GateDecision{Status: models.BatchStatusSuccess}
	}
	return GateDecision{Status: models.BatchStatusPartial}
}

// weightedScore combines sub-scores normalized by total weight, so the
// result stays 0-100 no matter how weights are configured.
func weightedScore(scores map[string]float64, weights map[string]float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}

	var totalWeight float64
	var weightedSum float64

	for name, score := range scores {
		weight := 1.0
		if w, ok := weights[name]; ok {
			weight = w
		}
		weightedSum += score * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0.0
	}

	return weightedSum / totalWeight
}

// ToChecks converts a report's results into persistable rows for a batch.
func (r *Report) ToChecks(batchID string) []models.QualityCheck {
	checks := make([]models.QualityCheck, 0, len(r.Checks))
	for _, check := range r.Checks {
		detail := check.Detail
		checks = append(checks, models.QualityCheck{
			BatchID:   batchID,
			CheckName: check.Name,
			Verdict:   check.Verdict,
			Score:     check.Score,
			Detail:    &detail,
		})
	}
	return checks
}
