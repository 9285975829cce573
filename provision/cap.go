/*
cap.go - Category rates and per-account CAP

PURPOSE:
  Converts the waterfall's aggregate provision into a provision-to-balance
  ratio per category (CARATE), then spreads it over the account population:

    CARATE = 100 × ΣCAPROVISION(category) / ΣBALANCE(category)
    CAP    = BALANCE × CARATE / 100

  >=6 MTHS, IRREGULAR and DEFICIT are provisioned in full: their CARATE is
  forced to 100 whatever the ratio says.

FAIL CLOSED:
  An account whose category has no rate in the snapshot gets no CAP. It is
  listed in CapResult.Uncapped, never defaulted to zero.

SEE ALSO:
  - snapshot.go: CategoryRateSnapshot
  - reconcile.go: Consumes AccountProvisions
*/
package provision

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// carateScale keeps CARATE precise enough that CAP rounds the same as an
// unrounded ratio at any realistic balance.
const carateScale = 10

// fullProvision lists the categories with CARATE forced to 100.
var fullProvision = map[Category]bool{
	SixPlus:   true,
	Irregular: true,
	Deficit:   true,
}

// ComputeCategoryRates derives CARATE per category from the final waterfall
// and the bucket balances. Categories without balance get no entry.
func ComputeCategoryRates(w *WaterfallResult, balances map[Category]decimal.Decimal) []CategoryRate {
	var out []CategoryRate
	for _, c := range Categories {
		bal, ok := balances[c]
		if !ok || bal.IsZero() {
			continue
		}
		cp := w.CapProvision(c)
		rate, _ := PercentOf(cp, bal, carateScale)
		cr := CategoryRate{Category: c, Balance: bal, CapProvision: cp, CARate: rate}
		if fullProvision[c] {
			cr.CARate = hundred
			cr.Overridden = true
		}
		out = append(out, cr)
	}
	return out
}

// CapResult is the Cap Engine's output.
type CapResult struct {
	Provisions []AccountProvision
	Uncapped   []ClassificationGap
}

// Total returns ΣCAP.
func (r CapResult) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range r.Provisions {
		sum = sum.Add(p.Cap)
	}
	return sum
}

// ApplyCap assigns CAP to every classified account using snap's rates.
// CAP is rounded half-up to 2 dp per account.
func ApplyCap(snap CategoryRateSnapshot, cl Classification) CapResult {
	var res CapResult
	for _, c := range Categories {
		accts := cl.Buckets[c]
		if len(accts) == 0 {
			continue
		}
		cr, ok := snap.Rate(c)
		rate := cr.CARate
		if fullProvision[c] {
			rate, ok = hundred, true
		}
		for _, a := range accts {
			if !ok {
				res.Uncapped = append(res.Uncapped, ClassificationGap{
					Key:    a.Key(),
					Reason: fmt.Sprintf("no CARATE for %s in %s snapshot", c.Label(), snap.Period),
				})
				continue
			}
			res.Provisions = append(res.Provisions, AccountProvision{
				AccountNo:   a.AccountNo,
				NoteNo:      a.NoteNo,
				Branch:      a.Branch,
				Product:     a.Product,
				Category:    c,
				Balance:     a.Balance,
				CARate:      rate,
				Cap:         ApplyRate(a.Balance, rate).Round(2),
				ExternalRef: a.ExternalRef,
			})
		}
	}
	return res
}
