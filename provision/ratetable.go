/*
ratetable.go - Sub-category rate rules

PURPOSE:
  A bucket's balance is decomposed into notional sub-populations (continue
  paying, successful repossession, ...). Each SubCategoryRule carries the
  balance-rate percentage of that sub-population and a reference to its
  recovery rate. Most recovery rates are static; the rest point at RECRATE
  (an external scalar) or at one of the derived rates.

DEPENDENCY ORDER:
  RECRATE   external, known before the run
  RATE_A    derived from 3-5 MTHS rows, consumed by 1-2 MTHS
  RATE_B    derived from >=6 MTHS rows, consumed by 1-2 MTHS
  RATE_C    derived from 1-2 MTHS rows, patched back into 1-2 MTHS

  Resolving a reference whose rate is not known yet is an error, so a rule
  book that consumes RATE_A inside the 3-5 MTHS table cannot run.

SEE ALSO:
  - waterfall.go: Expands buckets with these rules
  - conventional/portfolio.go, islamic/portfolio.go: Concrete tables
  - factory/rulebook.go: JSON form
*/
package provision

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE REFERENCE
// =============================================================================

// RateKind selects where a recovery rate comes from.
type RateKind string

const (
	RateStatic  RateKind = "STATIC"
	RateRecRate RateKind = "RECRATE"
	RateA       RateKind = "RATE_A"
	RateB       RateKind = "RATE_B"
	// RateC marks the row the RATE_C correction overwrites. Until the
	// correction runs the row uses Value as its recovery rate.
	RateC RateKind = "RATE_C"
)

// RateRef is a recovery-rate reference.
type RateRef struct {
	Kind  RateKind
	Value decimal.Decimal // used by RateStatic and RateC
}

// Static returns a fixed recovery rate.
func Static(pct string) RateRef {
	return RateRef{Kind: RateStatic, Value: decimal.RequireFromString(pct)}
}

// Ref returns a reference to a named rate.
func Ref(kind RateKind) RateRef {
	return RateRef{Kind: kind}
}

func (r RateRef) String() string {
	if r.Kind == RateStatic {
		return r.Value.StringFixed(2)
	}
	return string(r.Kind)
}

// ParseRateRef accepts a rate name or a decimal percentage.
func ParseRateRef(s string) (RateRef, error) {
	switch k := RateKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case RateRecRate, RateA, RateB, RateC:
		return RateRef{Kind: k}, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return RateRef{}, fmt.Errorf("%w: recovery rate %q", ErrInvalidRuleBook, s)
	}
	return RateRef{Kind: RateStatic, Value: d}, nil
}

// RateInputs holds the rates known at a point of the waterfall.
type RateInputs struct {
	RecRate decimal.Decimal
	RateA   *decimal.Decimal
	RateB   *decimal.Decimal
}

// Resolve returns the percentage r refers to.
func (r RateRef) Resolve(in RateInputs) (decimal.Decimal, error) {
	switch r.Kind {
	case RateStatic, RateC:
		return r.Value, nil
	case RateRecRate:
		return in.RecRate, nil
	case RateA:
		if in.RateA == nil {
			return decimal.Zero, fmt.Errorf("%w: RATE_A referenced before it is derived", ErrInvalidRuleBook)
		}
		return *in.RateA, nil
	case RateB:
		if in.RateB == nil {
			return decimal.Zero, fmt.Errorf("%w: RATE_B referenced before it is derived", ErrInvalidRuleBook)
		}
		return *in.RateB, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown rate kind %q", ErrInvalidRuleBook, r.Kind)
	}
}

// =============================================================================
// SUB-CATEGORY RULE
// =============================================================================

// SubCategoryRule decomposes part of a bucket's balance.
type SubCategoryRule struct {
	Category    Category
	SubCategory string
	BalanceRate decimal.Decimal
	Recovery    RateRef
	CapZero     bool // CAPROVISION forced to 0
}

// Rule builds a SubCategoryRule from a percentage string.
func Rule(cat Category, sub, balanceRate string, recovery RateRef, capZero bool) SubCategoryRule {
	return SubCategoryRule{
		Category:    cat,
		SubCategory: sub,
		BalanceRate: decimal.RequireFromString(balanceRate),
		Recovery:    recovery,
		CapZero:     capZero,
	}
}

// =============================================================================
// RULE BOOK
// =============================================================================

// ExpandedCategories are the buckets decomposed by sub-category rules.
// IRREGULAR, REPOSSESSED and DEFICIT use fixed formulas instead.
var ExpandedCategories = []Category{Current, OneToTwo, ThreeToFive, SixPlus}

// RuleBook is a portfolio's complete set of sub-category rules.
type RuleBook struct {
	Name   string
	Tables map[Category][]SubCategoryRule
}

// NewRuleBook groups rules by category, preserving their order.
func NewRuleBook(name string, rules ...SubCategoryRule) RuleBook {
	rb := RuleBook{Name: name, Tables: make(map[Category][]SubCategoryRule)}
	for _, r := range rules {
		rb.Tables[r.Category] = append(rb.Tables[r.Category], r)
	}
	return rb
}

// Rules returns every rule in category order.
func (rb RuleBook) Rules() []SubCategoryRule {
	var out []SubCategoryRule
	for _, c := range ExpandedCategories {
		out = append(out, rb.Tables[c]...)
	}
	return out
}

// Find returns the rule for a category and sub-category label.
func (rb RuleBook) Find(cat Category, sub string) (SubCategoryRule, bool) {
	for _, r := range rb.Tables[cat] {
		if r.SubCategory == sub {
			return r, true
		}
	}
	return SubCategoryRule{}, false
}

// Validate checks that the rule book can drive the waterfall.
func (rb RuleBook) Validate() error {
	for _, c := range ExpandedCategories {
		rules := rb.Tables[c]
		if len(rules) == 0 {
			return fmt.Errorf("%w: %s has no sub-category rules", ErrInvalidRuleBook, c.Label())
		}
		seen := make(map[string]bool, len(rules))
		for _, r := range rules {
			if r.SubCategory == "" {
				return fmt.Errorf("%w: %s rule without sub-category", ErrInvalidRuleBook, c.Label())
			}
			if seen[r.SubCategory] {
				return fmt.Errorf("%w: %s lists %q twice", ErrInvalidRuleBook, c.Label(), r.SubCategory)
			}
			seen[r.SubCategory] = true
			if r.BalanceRate.IsNegative() || r.BalanceRate.GreaterThan(hundred) {
				return fmt.Errorf("%w: %s %q balance rate %s out of range",
					ErrInvalidRuleBook, c.Label(), r.SubCategory, r.BalanceRate)
			}
			if err := rb.checkRef(c, r); err != nil {
				return err
			}
		}
	}
	r, ok := rb.Find(OneToTwo, SubUnsuccessfulRepossession)
	if !ok || r.Recovery.Kind != RateC {
		return fmt.Errorf("%w: 1-2 MTHS %q must take RATE_C", ErrInvalidRuleBook, SubUnsuccessfulRepossession)
	}
	return nil
}

// checkRef enforces the dependency order of derived rates.
func (rb RuleBook) checkRef(c Category, r SubCategoryRule) error {
	k := r.Recovery.Kind
	switch k {
	case RateStatic, RateRecRate:
		if k == RateStatic && (r.Recovery.Value.IsNegative() || r.Recovery.Value.GreaterThan(hundred)) {
			return fmt.Errorf("%w: %s %q recovery rate %s out of range",
				ErrInvalidRuleBook, c.Label(), r.SubCategory, r.Recovery.Value)
		}
		return nil
	case RateA, RateB:
		if c != OneToTwo {
			return fmt.Errorf("%w: %s %q cannot use %s", ErrInvalidRuleBook, c.Label(), r.SubCategory, k)
		}
		return nil
	case RateC:
		if c != OneToTwo || r.SubCategory != SubUnsuccessfulRepossession {
			return fmt.Errorf("%w: only 1-2 MTHS %q takes RATE_C", ErrInvalidRuleBook, SubUnsuccessfulRepossession)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown rate kind %q", ErrInvalidRuleBook, k)
	}
}
