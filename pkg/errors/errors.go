package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// ConfigurationError indicates the pipeline could not even start a batch:
// an unresolvable symbol, unknown data source, or bad threshold setup.
type ConfigurationError struct {
	Source  string
	File    string
	Setting string
	Message string
}

func NewConfigurationError(msg string) *ConfigurationError {
	return &ConfigurationError{Message: msg}
}

func NewConfigurationErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	path := []string{}
	if e.Source != "" {
		path = append(path, fmt.Sprintf("source '%s'", e.Source))
	}
	if e.File != "" {
		path = append(path, fmt.Sprintf("file '%s'", e.File))
	}
	if e.Setting != "" {
		path = append(path, fmt.Sprintf("setting '%s'", e.Setting))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *ConfigurationError) AddSource(source string) *ConfigurationError {
	e.Source = source
	return e
}

func (e *ConfigurationError) AddFile(file string) *ConfigurationError {
	e.File = file
	return e
}

func (e *ConfigurationError) AddSetting(setting string) *ConfigurationError {
	e.Setting = setting
	return e
}

func (e *ConfigurationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("source", e.Source).AddMetaValue("file", e.File)
}

func IsConfigurationError(err error) bool {
	_, ok := err.(*ConfigurationError)
	return ok
}

// ParseError is a per-row failure: a numeric field or date that did not
// parse. It is aggregated into the quality report, never returned alone
// from the pipeline.
type ParseError struct {
	RowNumber int
	Column    string
	Value     string
	Message   string
}

func NewParseError(rowNumber int, column, value, msg string) *ParseError {
	return &ParseError{RowNumber: rowNumber, Column: column, Value: value, Message: msg}
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.RowNumber, e.Message)
	}
	return fmt.Sprintf("row %d: column '%s' value '%s': %s", e.RowNumber, e.Column, e.Value, e.Message)
}

func IsParseError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

// ConsistencyError is a per-row OHLC invariant violation. The row is
// excluded from the load and the batch is degraded to PARTIAL at best.
type ConsistencyError struct {
	RowNumber int
	Symbol    string
	DateRaw   string
	Message   string
}

func NewConsistencyError(rowNumber int, symbol, dateRaw, msg string) *ConsistencyError {
	return &ConsistencyError{RowNumber: rowNumber, Symbol: symbol, DateRaw: dateRaw, Message: msg}
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("row %d (%s %s): %s", e.RowNumber, e.Symbol, e.DateRaw, e.Message)
}

func IsConsistencyError(err error) bool {
	_, ok := err.(*ConsistencyError)
	return ok
}

// QualityGateError indicates the aggregate quality score fell below the
// hard floor. The batch is FAILED and zero rows persist; the full report
// is retained for operator inspection.
type QualityGateError struct {
	BatchID string
	Score   float64
	Floor   float64
	Message string
}

func NewQualityGateError(batchID string, score, floor float64) *QualityGateError {
	return &QualityGateError{
		BatchID: batchID,
		Score:   score,
		Floor:   floor,
		Message: fmt.Sprintf("quality score %.2f below floor %.2f", score, floor),
	}
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("batch %s: %s", e.BatchID, e.Message)
}

func (e *QualityGateError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("batch_id", e.BatchID)
}

func IsQualityGateError(err error) bool {
	_, ok := err.(*QualityGateError)
	return ok
}

// LoadTransactionError wraps any failure inside the atomic load unit.
// All partial inserts are rolled back and the batch is marked FAILED.
type LoadTransactionError struct {
	BatchID string
	Step    string
	Message string
	cause   error
}

func NewLoadTransactionError(batchID, msg string) *LoadTransactionError {
	return &LoadTransactionError{BatchID: batchID, Message: msg}
}

func WrapLoadTransactionError(batchID string, err error) *LoadTransactionError {
	if err == nil {
		return nil
	}
	if loadErr, ok := err.(*LoadTransactionError); ok {
		return loadErr
	}
	return &LoadTransactionError{BatchID: batchID, Message: err.Error(), cause: err}
}

func (e *LoadTransactionError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("batch %s: step '%s': %s", e.BatchID, e.Step, e.Message)
	}
	return fmt.Sprintf("batch %s: %s", e.BatchID, e.Message)
}

func (e *LoadTransactionError) AddStep(step string) *LoadTransactionError {
	e.Step = step
	return e
}

func (e *LoadTransactionError) Unwrap() error {
	return e.cause
}

func IsLoadTransactionError(err error) bool {
	_, ok := err.(*LoadTransactionError)
	return ok
}

// RefreshError indicates a gold refresh failed. The previously published
// projection remains authoritative.
type RefreshError struct {
	Mode    string
	Message string
	cause   error
}

func NewRefreshError(mode, msg string) *RefreshError {
	return &RefreshError{Mode: mode, Message: msg}
}

func WrapRefreshError(mode string, err error) *RefreshError {
	if err == nil {
		return nil
	}
	if refreshErr, ok := err.(*RefreshError); ok {
		return refreshErr
	}
	return &RefreshError{Mode: mode, Message: err.Error(), cause: err}
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("gold refresh (%s): %s", e.Mode, e.Message)
}

func (e *RefreshError) Unwrap() error {
	return e.cause
}

func (e *RefreshError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("mode", e.Mode)
}

func IsRefreshError(err error) bool {
	_, ok := err.(*RefreshError)
	return ok
}
