/*
Package provision provides the hire-purchase loan-loss provisioning engine.

PURPOSE:
  This package contains the portfolio-agnostic types and algorithms that turn
  one reporting period's loan snapshot into regulatory provisions. Whether the
  book is the conventional or the Islamic hire-purchase portfolio, the same
  engine classifies accounts, runs the provision waterfall, applies cap rates
  and reconciles against the prior period.

KEY CONCEPTS IN THIS FILE (types.go):
  - LoanAccount: One account's snapshot for a period (input)
  - Category: The seven mutually exclusive arrears/status buckets
  - ProvisionRow: One sub-category line of the waterfall
  - CategoryRate: Provision-to-balance ratio carried between periods
  - AccountProvision: Per-account CAP for a period
  - MovementRecord: Suspend / write-back movement against the prior period

DESIGN PRINCIPLES:
  1. Precision: Every amount and percentage is a decimal.Decimal
  2. Purity: The core stages are functions over in-memory tables, no I/O
  3. Explicit state: Carried state is passed in as snapshots, never global

USAGE:
  acct := provision.LoanAccount{
      AccountNo: "3001234567",
      NoteNo:    1,
      Branch:    12,
      Balance:   decimal.RequireFromString("100000"),
  }
  cat := provision.Classify(acct)

SEE ALSO:
  - classifier.go: Category assignment
  - waterfall.go: Provision waterfall and derived rates
  - cap.go: Category rates and per-account CAP
  - reconcile.go: Period-over-period movements
*/
package provision

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERCENT ARITHMETIC
// =============================================================================

var hundred = decimal.NewFromInt(100)

// ApplyRate returns amount × pct / 100. The division is an exact decimal shift.
func ApplyRate(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Shift(-2)
}

// PercentOf returns 100 × num / den rounded to places.
// ok is false when den is zero.
func PercentOf(num, den decimal.Decimal, places int32) (pct decimal.Decimal, ok bool) {
	if den.IsZero() {
		return decimal.Zero, false
	}
	return num.Mul(hundred).DivRound(den, places), true
}

// MustParseDecimal parses a decimal literal and panics if it is malformed.
// Stored or fed values go through decimal.NewFromString instead.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// maxZero returns max(d, 0).
func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AccountKey is the join identity of an account across periods.
type AccountKey struct {
	AccountNo string
	NoteNo    int
}

func (k AccountKey) String() string {
	return fmt.Sprintf("%s/%05d", k.AccountNo, k.NoteNo)
}

// RunID identifies one pipeline execution.
type RunID string

// =============================================================================
// LOAN ACCOUNT - Input snapshot for one period
// =============================================================================

// LoanAccount is a joined loan + bureau-arrears record.
type LoanAccount struct {
	AccountNo      string
	NoteNo         int
	Branch         int
	Product        int
	Balance        decimal.Decimal
	DaysInArrears  *int // nil when the bureau has no arrears record for the key
	BorrowerStatus string
	PaidIndicator  string
	User5          string
	ExternalRef    string // bureau reference (AANO), carried to the interface file
}

// Key returns the account's join identity.
func (a LoanAccount) Key() AccountKey {
	return AccountKey{AccountNo: a.AccountNo, NoteNo: a.NoteNo}
}

// BranchLabel is the 3-digit branch abbreviation used in reports.
func (a LoanAccount) BranchLabel() string {
	return BranchLabel(a.Branch)
}

// BranchLabel formats a branch code as a zero-padded 3-digit label.
func BranchLabel(branch int) string {
	return fmt.Sprintf("%03d", branch)
}

// Days returns a pointer to n. Convenience for building LoanAccount literals.
func Days(n int) *int { return &n }

// =============================================================================
// CATEGORY - Arrears/status bucket
// =============================================================================

// Category is one of the seven provisioning buckets. The numeric value is the
// report ordinal; Unclassified is the zero value.
type Category int

const (
	Unclassified Category = 0
	Current      Category = 1
	OneToTwo     Category = 2
	ThreeToFive  Category = 3
	SixPlus      Category = 4
	Irregular    Category = 5
	Repossessed  Category = 6
	Deficit      Category = 7

	// GrandTotalOrdinal orders the grand-total row after every category.
	GrandTotalOrdinal = 99
)

// Categories lists the buckets in report order.
var Categories = []Category{Current, OneToTwo, ThreeToFive, SixPlus, Irregular, Repossessed, Deficit}

func (c Category) String() string {
	switch c {
	case Current:
		return "CURRENT"
	case OneToTwo:
		return "ONE_TO_TWO_MONTHS"
	case ThreeToFive:
		return "THREE_TO_FIVE_MONTHS"
	case SixPlus:
		return "SIX_PLUS_MONTHS"
	case Irregular:
		return "IRREGULAR"
	case Repossessed:
		return "REPOSSESSED"
	case Deficit:
		return "DEFICIT"
	default:
		return "UNCLASSIFIED"
	}
}

// Label is the category caption printed on reports.
func (c Category) Label() string {
	switch c {
	case OneToTwo:
		return "1-2 MTHS"
	case ThreeToFive:
		return "3-5 MTHS"
	case SixPlus:
		return ">=6 MTHS"
	case Unclassified:
		return ""
	default:
		return c.String()
	}
}

// Ordinal returns the report ordinal (1-7), or 99 for anything else.
func (c Category) Ordinal() int {
	if c.Valid() {
		return int(c)
	}
	return GrandTotalOrdinal
}

// Valid reports whether c is one of the seven buckets.
func (c Category) Valid() bool {
	return c >= Current && c <= Deficit
}

// ParseCategory accepts either the enum name or the report label.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if s == c.String() || s == c.Label() {
			return c, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown category %q", s)
}

// =============================================================================
// PROVISION ROW - One sub-category line of the waterfall
// =============================================================================

// Sub-category labels used by the rule books.
const (
	SubContinuePaying           = "CONTINUE PAYING"
	SubSuccessfulRepossession   = "SUCCESSFUL REPOSSESSION"
	SubUnsuccessfulRepossession = "UNSUCCESSFUL REPOSSESSION"
	SubThreeToFiveInArrears     = "- 3-5 MONTHS IN ARREARS"
	SubSixPlusInArrears         = "- >6 MONTHS IN ARREARS"
	SubOthers                   = "- OTHERS"
)

// ProvisionRow is an aggregated waterfall line for one category and sub-category.
//
// INVARIANTS (unless Patched or CapZero):
//
//	ObDefault    = Balance × Rate / 100
//	ExpectedRec  = ObDefault × RecoveryRate / 100
//	CapProvision = ObDefault − ExpectedRec
type ProvisionRow struct {
	Category     Category
	SubCategory  string // empty for single-line categories
	Rate         decimal.Decimal
	RecoveryRate decimal.Decimal
	Balance      decimal.Decimal
	ObDefault    decimal.Decimal
	ExpectedRec  decimal.Decimal
	CapProvision decimal.Decimal
	CapZero      bool
	Patched      bool // overwritten by the RATE_C correction
}

// ProvisionTotal is the grand-total line over the whole waterfall.
// It carries no CapProvision column.
type ProvisionTotal struct {
	Balance     decimal.Decimal
	ObDefault   decimal.Decimal
	ExpectedRec decimal.Decimal
}

// DerivedRates holds the three dependent recovery rates of one run.
type DerivedRates struct {
	RateA     decimal.Decimal
	RateB     decimal.Decimal
	RateC     decimal.Decimal
	SumRec    decimal.Decimal // RATE_C numerator, unrounded
	SumOutBal decimal.Decimal // RATE_C denominator
}

// =============================================================================
// CATEGORY RATE - Carried state between periods
// =============================================================================

// CategoryRate is the provision-to-balance ratio of one category.
type CategoryRate struct {
	Category     Category
	Balance      decimal.Decimal
	CapProvision decimal.Decimal
	CARate       decimal.Decimal
	Overridden   bool // forced to 100%
}

// =============================================================================
// ACCOUNT PROVISION - Per-account CAP
// =============================================================================

// AccountProvision is the CAP assigned to one account for one period.
// The prior period's AccountProvisions are this period's OPEN_BALANCE.
type AccountProvision struct {
	AccountNo   string
	NoteNo      int
	Branch      int
	Product     int
	Category    Category
	Balance     decimal.Decimal
	CARate      decimal.Decimal
	Cap         decimal.Decimal
	ExternalRef string
}

// Key returns the account's join identity.
func (p AccountProvision) Key() AccountKey {
	return AccountKey{AccountNo: p.AccountNo, NoteNo: p.NoteNo}
}

// =============================================================================
// MOVEMENT RECORD - Reconciliation output
// =============================================================================

// MovementStatus tags an account's presence across two periods.
type MovementStatus string

const (
	StatusContinuing MovementStatus = ""  // present in both periods
	StatusClosed     MovementStatus = "P" // prior only (paid off)
	StatusNew        MovementStatus = "C" // current only
)

// MovementRecord is the accounting movement for one account.
type MovementRecord struct {
	Key         AccountKey
	Branch      int
	Category    Category
	Status      MovementStatus
	Balance     decimal.Decimal
	OpenBalance decimal.Decimal
	Cap         decimal.Decimal
	CharCap     decimal.Decimal
	Suspend     decimal.Decimal
	WrBack      decimal.Decimal
	WriteOffBal decimal.Decimal
	Net         decimal.Decimal
	WrittenOff  bool
	ExternalRef string
}
