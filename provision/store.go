/*
store.go - Persistence interfaces for runs and carried state

PURPOSE:
  Defines the interface between the pipeline and the database. The engine
  itself is pure; everything that survives a run (category-rate snapshots,
  per-account provisions that become the next OPEN_BALANCE, movements, run
  history, RECRATE and custom rule books) goes through these interfaces.

REPLACE-ONCE CONTRACT:
  SavePeriod writes a whole period atomically: either every table of the
  period is replaced or nothing is. A rerun of a period replaces its
  provisions and movements and appends a new category-rate snapshot
  version. A failed run never calls SavePeriod.

IMPLEMENTATIONS:
  - provision/store/memory.go: In-memory for testing
  - store/sqlite: SQLite
  - store/postgres: PostgreSQL

SEE ALSO:
  - pipeline.go: The only writer of period state
  - store/sqlstore: Shared SQL implementation
*/
package provision

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RUN - One pipeline execution
// =============================================================================

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run records one execution of the pipeline for a portfolio and period.
type Run struct {
	ID         RunID
	Portfolio  string
	Period     Period
	Status     RunStatus
	Trigger    string // "cli", "api", "schedule"
	RateBasis  RateBasis
	RecRate    decimal.Decimal
	Rates      DerivedRates
	Accounts   int
	Classified int
	Excluded   int
	Uncapped   int
	TotalCap   decimal.Decimal
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Portfolio string
	Period    Period
	Status    RunStatus
	Limit     int
}

// Matches reports whether r passes the filter.
func (f RunFilter) Matches(r Run) bool {
	if f.Portfolio != "" && r.Portfolio != f.Portfolio {
		return false
	}
	if !f.Period.IsZero() && r.Period != f.Period {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// Store persists runs and period state.
type Store interface {
	// SaveRun inserts or updates a run record.
	SaveRun(ctx context.Context, run Run) error

	GetRun(ctx context.Context, id RunID) (*Run, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// SavePeriod replaces a period's state atomically and assigns
	// res.Snapshot.Version.
	SavePeriod(ctx context.Context, res *PeriodResult) error

	// LatestSnapshot returns the highest snapshot version of the period.
	LatestSnapshot(ctx context.Context, portfolio string, period Period) (*CategoryRateSnapshot, error)

	LoadWaterfall(ctx context.Context, portfolio string, period Period) ([]ProvisionRow, error)
	LoadProvisions(ctx context.Context, portfolio string, period Period) ([]AccountProvision, error)
	LoadMovements(ctx context.Context, portfolio string, period Period) ([]MovementRecord, error)
}

// ParameterStore holds RECRATE by effective period.
type ParameterStore interface {
	SetRecRate(ctx context.Context, effective Period, rate decimal.Decimal) error

	// RecRate returns the value with the latest effective period <= period.
	RecRate(ctx context.Context, period Period) (decimal.Decimal, error)
}

// RuleBookStore holds custom rule book documents per portfolio.
type RuleBookStore interface {
	SaveRuleBook(ctx context.Context, portfolio string, doc []byte) error
	LoadRuleBook(ctx context.Context, portfolio string) ([]byte, error)
}

// FullStore is implemented by every shipped backend.
type FullStore interface {
	Store
	ParameterStore
	RuleBookStore
	Close() error
}
