/*
portfolio.go - Portfolio registration and lookup

PURPOSE:
  The bank runs the same provisioning method over more than one hire-purchase
  book. A Portfolio bundles what differs between books: which products it
  owns, which bureau facility codes carry its arrears, and its rule book.
  Portfolio packages register themselves on init() so that CLI, API and
  scheduler can look them up by name.

USAGE:
  // In conventional/portfolio.go
  func init() {
      provision.RegisterPortfolio(Portfolio())
  }

  // Anywhere
  p, err := provision.LookupPortfolio("conventional")

SEE ALSO:
  - conventional/portfolio.go, islamic/portfolio.go
  - factory/rulebook.go: Overrides a registered rule book from JSON
*/
package provision

import (
	"fmt"
	"sort"
	"sync"
)

// Portfolio describes one hire-purchase book.
type Portfolio struct {
	Name        string
	Description string
	Products    []int
	Facilities  []string // bureau facility codes of the book's arrears records
	RuleBook    RuleBook
}

// HasProduct reports whether product belongs to the book.
func (p Portfolio) HasProduct(product int) bool {
	for _, x := range p.Products {
		if x == product {
			return true
		}
	}
	return false
}

// HasFacility reports whether a bureau facility code belongs to the book.
func (p Portfolio) HasFacility(code string) bool {
	for _, x := range p.Facilities {
		if x == code {
			return true
		}
	}
	return false
}

// =============================================================================
// PORTFOLIO REGISTRY
// =============================================================================

var (
	portfolioRegistry = make(map[string]Portfolio)
	registryMu        sync.RWMutex
)

// RegisterPortfolio adds a portfolio to the global registry.
// Call this from portfolio package init() functions.
func RegisterPortfolio(p Portfolio) {
	registryMu.Lock()
	defer registryMu.Unlock()
	portfolioRegistry[p.Name] = p
}

// LookupPortfolio finds a registered portfolio by name.
func LookupPortfolio(name string) (Portfolio, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := portfolioRegistry[name]
	if !ok {
		return Portfolio{}, fmt.Errorf("%w: %s", ErrPortfolioNotFound, name)
	}
	return p, nil
}

// MustLookupPortfolio finds a registered portfolio or panics.
func MustLookupPortfolio(name string) Portfolio {
	p, err := LookupPortfolio(name)
	if err != nil {
		panic(err)
	}
	return p
}

// ListPortfolios returns all registered portfolios sorted by name.
func ListPortfolios() []Portfolio {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Portfolio, 0, len(portfolioRegistry))
	for _, p := range portfolioRegistry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
