/*
Package factory provides JSON to Go rule book conversion.

PURPOSE:
  Converts JSON rule book definitions into provision.RuleBook values. The
  sub-category tables are reviewed by the credit risk team every year; the
  factory lets a portfolio's tables be replaced through the API or a file
  without a release. A parsed rule book is validated before it is accepted,
  so a table that would break the waterfall never reaches a run.

JSON SCHEMA:
  {
    "name": "conventional",
    "tables": [
      {
        "category": "1-2 MTHS",
        "rules": [
          {"sub_category": "CONTINUE PAYING", "balance_rate": "92.83", "recovery": "100", "cap_zero": true},
          {"sub_category": "SUCCESSFUL REPOSSESSION", "balance_rate": "2.39", "recovery": "RECRATE"},
          {"sub_category": "UNSUCCESSFUL REPOSSESSION", "balance_rate": "4.78", "recovery": "RATE_C"}
        ]
      }
    ]
  }

  "category" accepts the report label (1-2 MTHS) or the enum name (ONE_TO_TWO).
  "recovery" is a percentage or one of RECRATE, RATE_A, RATE_B, RATE_C.

USAGE:
  f := NewRuleBookFactory()
  book, err := f.ParseRuleBook(doc)

  // Stored overrides win over the registered book
  runner.Portfolios = NewStoreResolver(store)

SEE ALSO:
  - provision/ratetable.go: RuleBook type definition
  - conventional/portfolio.go, islamic/portfolio.go: Registered books
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/npl-provision/provision"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleBookJSON is the JSON representation of a rule book.
type RuleBookJSON struct {
	Name   string      `json:"name"`
	Tables []TableJSON `json:"tables"`
}

// TableJSON is one category's sub-category table.
type TableJSON struct {
	Category string     `json:"category"`
	Rules    []RuleJSON `json:"rules"`
}

// RuleJSON is one sub-category rule.
type RuleJSON struct {
	SubCategory string          `json:"sub_category"`
	BalanceRate decimal.Decimal `json:"balance_rate"`
	Recovery    string          `json:"recovery"`
	CapZero     bool            `json:"cap_zero,omitempty"`
}

// =============================================================================
// RULE BOOK FACTORY
// =============================================================================

// RuleBookFactory converts JSON rule books to Go structs.
type RuleBookFactory struct{}

// NewRuleBookFactory creates a new rule book factory.
func NewRuleBookFactory() *RuleBookFactory {
	return &RuleBookFactory{}
}

// ParseRuleBook parses and validates a JSON document.
func (f *RuleBookFactory) ParseRuleBook(doc []byte) (provision.RuleBook, error) {
	var rj RuleBookJSON
	if err := json.Unmarshal(doc, &rj); err != nil {
		return provision.RuleBook{}, fmt.Errorf("%w: failed to parse rule book JSON: %v", provision.ErrInvalidRuleBook, err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleBookJSON to a validated provision.RuleBook.
func (f *RuleBookFactory) FromJSON(rj RuleBookJSON) (provision.RuleBook, error) {
	var rules []provision.SubCategoryRule
	seen := make(map[provision.Category]bool)
	for _, tj := range rj.Tables {
		cat, err := provision.ParseCategory(tj.Category)
		if err != nil {
			return provision.RuleBook{}, fmt.Errorf("%w: %v", provision.ErrInvalidRuleBook, err)
		}
		if seen[cat] {
			return provision.RuleBook{}, fmt.Errorf("%w: %s table listed twice", provision.ErrInvalidRuleBook, cat.Label())
		}
		seen[cat] = true

		for _, r := range tj.Rules {
			ref, err := provision.ParseRateRef(r.Recovery)
			if err != nil {
				return provision.RuleBook{}, err
			}
			rules = append(rules, provision.SubCategoryRule{
				Category:    cat,
				SubCategory: r.SubCategory,
				BalanceRate: r.BalanceRate,
				Recovery:    ref,
				CapZero:     r.CapZero,
			})
		}
	}

	book := provision.NewRuleBook(rj.Name, rules...)
	if err := book.Validate(); err != nil {
		return provision.RuleBook{}, err
	}
	return book, nil
}

// ToJSON converts a RuleBook to RuleBookJSON.
func (f *RuleBookFactory) ToJSON(book provision.RuleBook) RuleBookJSON {
	rj := RuleBookJSON{Name: book.Name}
	for _, c := range provision.ExpandedCategories {
		rules := book.Tables[c]
		if len(rules) == 0 {
			continue
		}
		tj := TableJSON{Category: c.Label()}
		for _, r := range rules {
			tj.Rules = append(tj.Rules, RuleJSON{
				SubCategory: r.SubCategory,
				BalanceRate: r.BalanceRate,
				Recovery:    recoveryString(r.Recovery),
				CapZero:     r.CapZero,
			})
		}
		rj.Tables = append(rj.Tables, tj)
	}
	return rj
}

// MarshalRuleBook returns the indented JSON document of a rule book.
func (f *RuleBookFactory) MarshalRuleBook(book provision.RuleBook) ([]byte, error) {
	return json.MarshalIndent(f.ToJSON(book), "", "  ")
}

func recoveryString(r provision.RateRef) string {
	if r.Kind == provision.RateStatic {
		return r.Value.String()
	}
	return string(r.Kind)
}

// =============================================================================
// STORE RESOLVER
// =============================================================================

// StoreResolver resolves registered portfolios, replacing the rule book with
// the stored override when one exists.
type StoreResolver struct {
	Store   provision.RuleBookStore
	Factory *RuleBookFactory
}

// NewStoreResolver returns a resolver backed by store.
func NewStoreResolver(store provision.RuleBookStore) *StoreResolver {
	return &StoreResolver{Store: store, Factory: NewRuleBookFactory()}
}

// Resolve implements provision.PortfolioResolver.
func (r *StoreResolver) Resolve(ctx context.Context, name string) (provision.Portfolio, error) {
	p, err := provision.LookupPortfolio(name)
	if err != nil {
		return provision.Portfolio{}, err
	}
	doc, err := r.Store.LoadRuleBook(ctx, name)
	if errors.Is(err, provision.ErrRuleBookNotFound) {
		return p, nil
	}
	if err != nil {
		return provision.Portfolio{}, fmt.Errorf("load rule book: %w", err)
	}
	book, err := r.Factory.ParseRuleBook(doc)
	if err != nil {
		return provision.Portfolio{}, fmt.Errorf("stored rule book for %s: %w", name, err)
	}
	p.RuleBook = book
	return p, nil
}

// SaveOverride validates doc and stores it as the portfolio's rule book.
func (r *StoreResolver) SaveOverride(ctx context.Context, name string, doc []byte) (provision.RuleBook, error) {
	if _, err := provision.LookupPortfolio(name); err != nil {
		return provision.RuleBook{}, err
	}
	book, err := r.Factory.ParseRuleBook(doc)
	if err != nil {
		return provision.RuleBook{}, err
	}
	canonical, err := r.Factory.MarshalRuleBook(book)
	if err != nil {
		return provision.RuleBook{}, err
	}
	if err := r.Store.SaveRuleBook(ctx, name, canonical); err != nil {
		return provision.RuleBook{}, fmt.Errorf("save rule book: %w", err)
	}
	return book, nil
}
