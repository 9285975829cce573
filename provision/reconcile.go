/*
reconcile.go - Period-over-period provision movements

PURPOSE:
  Turns this period's per-account CAP into accounting movements against the
  prior period's CAP (OPEN_BALANCE). The two populations are outer-joined on
  account + note:

    prior only   CLOSED      status "P", category from the prior record
    current only NEW         status "C"
    both         CONTINUING  status blank

  A missing side counts as 0:

    CHARCAP = CAP − OPEN_BALANCE
    SUSPEND = max(CHARCAP, 0)
    WRBACK  = max(−CHARCAP, 0)
    NET     = SUSPEND − WRBACK

WRITE-OFF OVERLAY:
  At quarter end, accounts written off this period are re-measured against
  the written-off balance instead of CAP:

    SUSPEND = max(WRIOFF_BAL − OPEN_BALANCE, 0)
    WRBACK  = max(OPEN_BALANCE − WRIOFF_BAL, 0)

  NET follows. Write-offs for keys in neither period are reported back.

SEE ALSO:
  - cap.go: Produces the current AccountProvisions
  - tabulate.go: Consumes MovementRecords
*/
package provision

import (
	"github.com/shopspring/decimal"
)

// WriteOff flags an account as written off with its written-off balance.
type WriteOff struct {
	Key     AccountKey
	Balance decimal.Decimal
}

// ReconcileResult holds one movement per joined key, in account order.
type ReconcileResult struct {
	Movements          []MovementRecord
	UnmatchedWriteOffs []AccountKey
	WriteOffsApplied   int
}

// Counts returns the number of movements per status.
func (r *ReconcileResult) Counts() map[MovementStatus]int {
	out := make(map[MovementStatus]int, 3)
	for _, m := range r.Movements {
		out[m.Status]++
	}
	return out
}

// Movement computes CHARCAP, SUSPEND, WRBACK and NET for one account.
func Movement(open, capAmt decimal.Decimal) (charCap, suspend, wrBack, net decimal.Decimal) {
	charCap = capAmt.Sub(open)
	suspend = maxZero(charCap)
	wrBack = maxZero(charCap.Neg())
	return charCap, suspend, wrBack, suspend.Sub(wrBack)
}

// Reconcile joins prior and current provisions. Write-offs are applied only
// when applyWriteOffs is set (quarter end or forced).
func Reconcile(prior OpeningBalances, current []AccountProvision, writeOffs []WriteOff, applyWriteOffs bool) (*ReconcileResult, error) {
	cur := make(map[AccountKey]AccountProvision, len(current))
	keys := prior.Keys()
	for _, p := range current {
		k := p.Key()
		if _, dup := cur[k]; dup {
			return nil, anomaly("reconcile", "account %s provisioned twice", k)
		}
		cur[k] = p
		if _, ok := prior[k]; !ok {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)

	wo := make(map[AccountKey]decimal.Decimal, len(writeOffs))
	if applyWriteOffs {
		for _, w := range writeOffs {
			wo[w.Key] = w.Balance
		}
	}

	res := &ReconcileResult{Movements: make([]MovementRecord, 0, len(keys))}
	for _, k := range keys {
		p, inPrior := prior[k]
		c, inCur := cur[k]

		m := MovementRecord{
			Key:         k,
			Balance:     decimal.Zero,
			OpenBalance: decimal.Zero,
			Cap:         decimal.Zero,
			WriteOffBal: decimal.Zero,
		}
		switch {
		case inPrior && inCur:
			m.Status = StatusContinuing
			m.Branch, m.Category, m.ExternalRef = c.Branch, c.Category, c.ExternalRef
			m.Balance, m.Cap, m.OpenBalance = c.Balance, c.Cap, p.Cap
		case inPrior:
			m.Status = StatusClosed
			m.Branch, m.Category, m.ExternalRef = p.Branch, p.Category, p.ExternalRef
			m.OpenBalance = p.Cap
		case inCur:
			m.Status = StatusNew
			m.Branch, m.Category, m.ExternalRef = c.Branch, c.Category, c.ExternalRef
			m.Balance, m.Cap = c.Balance, c.Cap
		default:
			return nil, &ReconciliationGapError{Key: k}
		}

		m.CharCap, m.Suspend, m.WrBack, m.Net = Movement(m.OpenBalance, m.Cap)

		if bal, ok := wo[k]; ok {
			m.WrittenOff = true
			m.WriteOffBal = bal
			m.Suspend = maxZero(bal.Sub(m.OpenBalance))
			m.WrBack = maxZero(m.OpenBalance.Sub(bal))
			m.Net = m.Suspend.Sub(m.WrBack)
			res.WriteOffsApplied++
			delete(wo, k)
		}
		res.Movements = append(res.Movements, m)
	}

	for k := range wo {
		res.UnmatchedWriteOffs = append(res.UnmatchedWriteOffs, k)
	}
	sortKeys(res.UnmatchedWriteOffs)
	return res, nil
}
