package provision

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORY RATE SNAPSHOT - Versioned carried state
// =============================================================================

// CategoryRateSnapshot freezes one period's category rates.
// A rerun of the period stores a new Version; readers take the latest.
type CategoryRateSnapshot struct {
	Portfolio string
	Period    Period
	Version   int
	TakenAt   time.Time
	Rates     []CategoryRate
}

// Rate returns the CategoryRate of c.
func (s CategoryRateSnapshot) Rate(c Category) (CategoryRate, bool) {
	for _, r := range s.Rates {
		if r.Category == c {
			return r, true
		}
	}
	return CategoryRate{}, false
}

// =============================================================================
// OPENING BALANCES - Prior period's per-account CAP
// =============================================================================

// OpeningBalances indexes a prior period's AccountProvisions by key.
// The prior CAP is this period's OPEN_BALANCE.
type OpeningBalances map[AccountKey]AccountProvision

// NewOpeningBalances indexes provisions. A repeated key is a DataAnomaly:
// keeping either row would drop the other's CAP from OPEN_BALANCE.
func NewOpeningBalances(prior []AccountProvision) (OpeningBalances, error) {
	ob := make(OpeningBalances, len(prior))
	for _, p := range prior {
		if _, dup := ob[p.Key()]; dup {
			return nil, anomaly("reconcile", "opening balance for account %s given twice", p.Key())
		}
		ob[p.Key()] = p
	}
	return ob, nil
}

// Total returns ΣOPEN_BALANCE.
func (ob OpeningBalances) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range ob {
		sum = sum.Add(p.Cap)
	}
	return sum
}

// Keys returns the keys in account order.
func (ob OpeningBalances) Keys() []AccountKey {
	keys := make([]AccountKey, 0, len(ob))
	for k := range ob {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []AccountKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].AccountNo != keys[j].AccountNo {
			return keys[i].AccountNo < keys[j].AccountNo
		}
		return keys[i].NoteNo < keys[j].NoteNo
	})
}
