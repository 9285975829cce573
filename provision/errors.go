/*
errors.go - Centralized error types for the provisioning engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Portfolio, feed and store packages wrap these errors with context.

ERROR CATEGORIES:
  1. Data anomalies - Zero denominators, empty buckets, bad interface fields.
     A data anomaly aborts the period; nothing is published.
  2. Gaps - Accounts the classifier or the reconciliation join cannot place
  3. Lookup errors - Missing portfolios, snapshots, runs

USAGE:
  if provision.IsDataAnomaly(err) {
      // the period was discarded, fix the feed and rerun
  }

SEE ALSO:
  - waterfall.go: Raises DataAnomalyError on empty buckets
  - reconcile.go: Raises ReconciliationGapError
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package provision

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDataAnomaly is returned when the input cannot produce a trustworthy
	// provision: a zero denominator, an empty bucket a derived rate depends on,
	// or a record that does not fit the interface layout.
	ErrDataAnomaly = errors.New("data anomaly")

	// ErrReconciliationGap is returned when an account is in neither period.
	ErrReconciliationGap = errors.New("reconciliation gap")

	// ErrPortfolioNotFound is returned when a portfolio name is not registered.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrSnapshotNotFound is returned when no category-rate snapshot exists
	// for the requested portfolio and period.
	ErrSnapshotNotFound = errors.New("category rate snapshot not found")

	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("run not found")

	// ErrParameterNotFound is returned when a parameter such as RECRATE has
	// no value effective for the period.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrRuleBookNotFound is returned when no custom rule book is stored.
	ErrRuleBookNotFound = errors.New("rule book not found")

	// ErrInvalidPeriod is returned when a period key or report date is malformed.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidRuleBook is returned when a rule book fails validation.
	ErrInvalidRuleBook = errors.New("invalid rule book")

	// ErrDuplicateRun is returned when a run id is saved twice.
	ErrDuplicateRun = errors.New("duplicate run")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DataAnomalyError names the pipeline stage and the offending aggregate.
type DataAnomalyError struct {
	Stage  string // e.g. "RATE_A", "cap", "interface"
	Detail string
}

func (e *DataAnomalyError) Error() string {
	return fmt.Sprintf("data anomaly in %s: %s", e.Stage, e.Detail)
}

func (e *DataAnomalyError) Unwrap() error {
	return ErrDataAnomaly
}

// NewDataAnomaly builds a DataAnomalyError with a formatted detail.
func NewDataAnomaly(stage, format string, args ...any) error {
	return &DataAnomalyError{Stage: stage, Detail: fmt.Sprintf(format, args...)}
}

var anomaly = NewDataAnomaly

// ReconciliationGapError identifies the key the join could not place.
type ReconciliationGapError struct {
	Key AccountKey
}

func (e *ReconciliationGapError) Error() string {
	return fmt.Sprintf("reconciliation gap: %s present in neither period", e.Key)
}

func (e *ReconciliationGapError) Unwrap() error {
	return ErrReconciliationGap
}

// ClassificationGap records an account that matched no classification rule.
// It is reported, not raised.
type ClassificationGap struct {
	Key    AccountKey
	Reason string
}

func (g ClassificationGap) String() string {
	return fmt.Sprintf("%s: %s", g.Key, g.Reason)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDataAnomaly returns true if the run must be discarded.
func IsDataAnomaly(err error) bool {
	return errors.Is(err, ErrDataAnomaly)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidRuleBook)
}

// IsConflict returns true if the write clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateRun)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPortfolioNotFound) ||
		errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrParameterNotFound) ||
		errors.Is(err, ErrRuleBookNotFound)
}
