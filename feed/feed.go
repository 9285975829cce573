/*
feed.go - Source record preparation

PURPOSE:
  Turns the raw monthly extracts into the LoanAccount population the
  classifier consumes. Two extracts are involved:

    HP snapshot      one row per hire-purchase note, with balance, product,
                     borrower status, paid indicator and the USER5 flag
    bureau arrears   days in arrears per account and note, reported under
                     several facility codes and sometimes more than once

PREPARATION:
  1. Drop HP rows with balance <= 0 or a product outside the portfolio
  2. Keep arrears rows whose facility belongs to the portfolio
  3. Dedupe arrears by (account, note), keeping the maximum days
  4. Left join arrears onto HP rows; no match leaves DaysInArrears nil

  Steps 1-4 are pure. Readers for CSV and Parquet live in csv.go and
  parquet.go; dir.go locates a period's files.

SEE ALSO:
  - provision/classifier.go: Consumes the prepared accounts
  - dir.go: File layout
*/
package feed

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/npl-provision/provision"
)

// =============================================================================
// RAW RECORDS
// =============================================================================

// LoanRecord is one row of the HP snapshot.
type LoanRecord struct {
	AccountNo      string
	NoteNo         int
	Branch         int
	Product        int
	Balance        decimal.Decimal
	BorrowerStatus string
	PaidIndicator  string
	User5          string
	ExternalRef    string
}

// ArrearsRecord is one row of the bureau arrears extract.
type ArrearsRecord struct {
	AccountNo     string
	NoteNo        int
	Facility      string
	DaysInArrears int
}

func (r ArrearsRecord) key() provision.AccountKey {
	return provision.AccountKey{AccountNo: r.AccountNo, NoteNo: r.NoteNo}
}

// =============================================================================
// PREPARATION
// =============================================================================

// Stats counts what preparation dropped.
type Stats struct {
	Loans            int
	NonPositive      int
	OtherProduct     int
	Arrears          int
	OtherFacility    int
	DuplicateArrears int
	NoArrears        int
}

// Kept returns the number of accounts handed to the classifier.
func (s Stats) Kept() int {
	return s.Loans - s.NonPositive - s.OtherProduct
}

// DedupeArrears keeps the portfolio's facilities and the maximum days per key.
func DedupeArrears(p provision.Portfolio, arrears []ArrearsRecord, stats *Stats) map[provision.AccountKey]int {
	out := make(map[provision.AccountKey]int, len(arrears))
	for _, r := range arrears {
		if !p.HasFacility(r.Facility) {
			stats.OtherFacility++
			continue
		}
		k := r.key()
		if d, ok := out[k]; ok {
			stats.DuplicateArrears++
			if r.DaysInArrears <= d {
				continue
			}
		}
		out[k] = r.DaysInArrears
	}
	return out
}

// Prepare filters the HP snapshot and joins the arrears onto it.
// Accounts are returned sorted by key.
func Prepare(p provision.Portfolio, loans []LoanRecord, arrears []ArrearsRecord) ([]provision.LoanAccount, Stats) {
	stats := Stats{Loans: len(loans), Arrears: len(arrears)}
	days := DedupeArrears(p, arrears, &stats)

	out := make([]provision.LoanAccount, 0, len(loans))
	for _, l := range loans {
		if !l.Balance.IsPositive() {
			stats.NonPositive++
			continue
		}
		if !p.HasProduct(l.Product) {
			stats.OtherProduct++
			continue
		}
		a := provision.LoanAccount{
			AccountNo:      l.AccountNo,
			NoteNo:         l.NoteNo,
			Branch:         l.Branch,
			Product:        l.Product,
			Balance:        l.Balance,
			BorrowerStatus: l.BorrowerStatus,
			PaidIndicator:  l.PaidIndicator,
			User5:          l.User5,
			ExternalRef:    l.ExternalRef,
		}
		if d, ok := days[a.Key()]; ok {
			a.DaysInArrears = provision.Days(d)
		} else {
			stats.NoArrears++
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.AccountNo != b.AccountNo {
			return a.AccountNo < b.AccountNo
		}
		return a.NoteNo < b.NoteNo
	})
	return out, stats
}
