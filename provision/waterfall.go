/*
waterfall.go - Provision waterfall and derived rates

PURPOSE:
  Expands each bucket into sub-category ProvisionRows, aggregates them and
  resolves the three derived recovery rates in dependency order. Expansion
  is linear in balance, so each bucket's total balance is expanded once
  rather than account by account.

STAGES (strictly sequential):
  1. CURRENT, 3-5 MTHS, >=6 MTHS rows from static rates and RECRATE
  2. RATE_A from the 3-5 MTHS rows
  3. RATE_B from a local recomputation over the >=6 MTHS rows
  4. 1-2 MTHS draft rows consuming RATE_A and RATE_B
  5. RATE_C from the 1-2 MTHS draft
  6. ApplyRateC: a new 1-2 MTHS table with the UNSUCCESSFUL REPOSSESSION
     row replaced
  7. IRREGULAR, REPOSSESSED, DEFICIT fixed-formula rows
  8. Concatenation and grand total

RATE_B ASYMMETRY:
  RATE_B recomputes EXPECTEDREC for the >=6 MTHS SUCCESSFUL REPOSSESSION
  sub-category with RECRATE, but that recomputation never flows back into
  the >=6 MTHS rows: their CAPROVISION keeps the rule book's recovery rate.
  Downstream CARATE for >=6 MTHS is forced to 100 anyway. Keep it that way;
  provisions published under the current method depend on it.

SEE ALSO:
  - ratetable.go: Rules and rate references
  - cap.go: Turns the final rows into category rates
*/
package provision

import (
	"github.com/shopspring/decimal"
)

var (
	// rateASubCategories feed RATE_A and RATE_B.
	rateASubCategories = map[string]bool{
		SubContinuePaying:           true,
		SubSuccessfulRepossession:   true,
		SubUnsuccessfulRepossession: true,
	}

	// rateCSubCategories feed the RATE_C numerator.
	rateCSubCategories = map[string]bool{
		SubThreeToFiveInArrears: true,
		SubSixPlusInArrears:     true,
		SubOthers:               true,
	}
)

// =============================================================================
// BUCKET EXPANSION
// =============================================================================

// ExpandBucket applies a category's rules to the bucket's total balance.
func ExpandBucket(cat Category, rules []SubCategoryRule, balance decimal.Decimal, in RateInputs) ([]ProvisionRow, error) {
	rows := make([]ProvisionRow, 0, len(rules))
	for _, r := range rules {
		rec, err := r.Recovery.Resolve(in)
		if err != nil {
			return nil, err
		}
		ob := ApplyRate(balance, r.BalanceRate)
		er := ApplyRate(ob, rec)
		cp := ob.Sub(er)
		if r.CapZero {
			cp = decimal.Zero
		}
		rows = append(rows, ProvisionRow{
			Category:     cat,
			SubCategory:  r.SubCategory,
			Rate:         r.BalanceRate,
			RecoveryRate: rec,
			Balance:      balance,
			ObDefault:    ob,
			ExpectedRec:  er,
			CapProvision: cp,
			CapZero:      r.CapZero,
		})
	}
	return rows, nil
}

// FixedRow builds the single row of IRREGULAR, REPOSSESSED or DEFICIT.
// REPOSSESSED recovers RECRATE of its balance; the others recover nothing.
func FixedRow(cat Category, balance, recRate decimal.Decimal) ProvisionRow {
	row := ProvisionRow{
		Category:     cat,
		Rate:         hundred,
		RecoveryRate: decimal.Zero,
		Balance:      balance,
		ObDefault:    balance,
		ExpectedRec:  decimal.Zero,
		CapProvision: balance,
	}
	if cat == Repossessed {
		row.RecoveryRate = recRate
		row.ExpectedRec = ApplyRate(balance, recRate)
		row.CapProvision = balance.Sub(row.ExpectedRec)
	}
	return row
}

// =============================================================================
// DERIVED RATES
// =============================================================================

// DeriveRateA returns 100 × ΣEXPECTEDREC / ΣOBDEFAULT over the 3-5 MTHS
// continue-paying and repossession rows, rounded to 2 dp.
func DeriveRateA(threeToFive []ProvisionRow) (decimal.Decimal, error) {
	ob, er := decimal.Zero, decimal.Zero
	for _, r := range threeToFive {
		if rateASubCategories[r.SubCategory] {
			ob = ob.Add(r.ObDefault)
			er = er.Add(r.ExpectedRec)
		}
	}
	rate, ok := PercentOf(er, ob, 2)
	if !ok {
		return decimal.Zero, anomaly("RATE_A", "3-5 MTHS obligor default is zero")
	}
	return rate, nil
}

// DeriveRateB recomputes EXPECTEDREC for the >=6 MTHS SUCCESSFUL
// REPOSSESSION row as OBDEFAULT × RECRATE / 100 (other rows recover 0) and
// returns 100 × Σadjusted / ΣOBDEFAULT over the same sub-categories as RATE_A,
// rounded to 2 dp. The rows passed in are not modified.
func DeriveRateB(sixPlus []ProvisionRow, recRate decimal.Decimal) (decimal.Decimal, error) {
	ob, adjusted := decimal.Zero, decimal.Zero
	for _, r := range sixPlus {
		if !rateASubCategories[r.SubCategory] {
			continue
		}
		ob = ob.Add(r.ObDefault)
		if r.SubCategory == SubSuccessfulRepossession {
			adjusted = adjusted.Add(ApplyRate(r.ObDefault, recRate))
		}
	}
	rate, ok := PercentOf(adjusted, ob, 2)
	if !ok {
		return decimal.Zero, anomaly("RATE_B", ">=6 MTHS obligor default is zero")
	}
	return rate, nil
}

// DeriveRateC computes RATE_C from the 1-2 MTHS draft. SUMOUTBAL is the
// UNSUCCESSFUL REPOSSESSION row's OBDEFAULT and SUMREC the unrounded
// EXPECTEDREC total over the 3-5, >6 and OTHERS rows.
func DeriveRateC(oneToTwo []ProvisionRow) (rateC, sumRec, sumOutBal decimal.Decimal, err error) {
	found := false
	sumRec = decimal.Zero
	for _, r := range oneToTwo {
		if r.SubCategory == SubUnsuccessfulRepossession {
			sumOutBal = r.ObDefault
			found = true
		}
		if rateCSubCategories[r.SubCategory] {
			sumRec = sumRec.Add(r.ExpectedRec)
		}
	}
	if !found {
		return decimal.Zero, decimal.Zero, decimal.Zero,
			anomaly("RATE_C", "1-2 MTHS has no %q row", SubUnsuccessfulRepossession)
	}
	rateC, ok := PercentOf(sumRec, sumOutBal, 2)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero,
			anomaly("RATE_C", "1-2 MTHS %q obligor default is zero", SubUnsuccessfulRepossession)
	}
	return rateC, sumRec, sumOutBal, nil
}

// ApplyRateC returns a copy of the 1-2 MTHS draft with the UNSUCCESSFUL
// REPOSSESSION row replaced: EXPECTEDREC := SUMREC, recovery := RATE_C,
// CAPROVISION := OBDEFAULT − SUMREC. The draft is left untouched.
func ApplyRateC(draft []ProvisionRow, rates DerivedRates) ([]ProvisionRow, error) {
	out := make([]ProvisionRow, len(draft))
	copy(out, draft)
	for i, r := range out {
		if r.SubCategory != SubUnsuccessfulRepossession {
			continue
		}
		r.ExpectedRec = rates.SumRec
		r.RecoveryRate = rates.RateC
		r.CapProvision = r.ObDefault.Sub(rates.SumRec)
		r.Patched = true
		out[i] = r
		return out, nil
	}
	return nil, anomaly("RATE_C", "1-2 MTHS has no %q row to patch", SubUnsuccessfulRepossession)
}

// =============================================================================
// WATERFALL
// =============================================================================

// WaterfallResult is the complete provision table of one run.
type WaterfallResult struct {
	RuleBook      string
	RecRate       decimal.Decimal
	Tables        map[Category][]ProvisionRow
	DraftOneToTwo []ProvisionRow // 1-2 MTHS before the RATE_C correction
	Rates         DerivedRates
	Total         ProvisionTotal
}

// Rows concatenates the category tables in report order.
func (w *WaterfallResult) Rows() []ProvisionRow {
	var out []ProvisionRow
	for _, c := range Categories {
		out = append(out, w.Tables[c]...)
	}
	return out
}

// CapProvision returns ΣCAPROVISION of a category.
func (w *WaterfallResult) CapProvision(c Category) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range w.Tables[c] {
		sum = sum.Add(r.CapProvision)
	}
	return sum
}

// BucketBalances sums the balance of each classified bucket.
func BucketBalances(cl Classification) map[Category]decimal.Decimal {
	out := make(map[Category]decimal.Decimal, len(Categories))
	for _, c := range Categories {
		sum := decimal.Zero
		for _, a := range cl.Buckets[c] {
			sum = sum.Add(a.Balance)
		}
		out[c] = sum
	}
	return out
}

// RunWaterfall executes stages 1-8 over the bucket balances.
// Any DataAnomaly aborts the whole waterfall.
func RunWaterfall(book RuleBook, recRate decimal.Decimal, balances map[Category]decimal.Decimal) (*WaterfallResult, error) {
	if recRate.IsNegative() || recRate.GreaterThan(hundred) {
		return nil, anomaly("RECRATE", "recovery rate %s outside [0,100]", recRate)
	}
	if err := book.Validate(); err != nil {
		return nil, err
	}

	res := &WaterfallResult{
		RuleBook: book.Name,
		RecRate:  recRate,
		Tables:   make(map[Category][]ProvisionRow, len(Categories)),
	}
	in := RateInputs{RecRate: recRate}

	// 1. Static buckets
	for _, c := range []Category{Current, ThreeToFive, SixPlus} {
		rows, err := ExpandBucket(c, book.Tables[c], balances[c], in)
		if err != nil {
			return nil, err
		}
		res.Tables[c] = rows
	}

	// 2-3. RATE_A and RATE_B
	rateA, err := DeriveRateA(res.Tables[ThreeToFive])
	if err != nil {
		return nil, err
	}
	rateB, err := DeriveRateB(res.Tables[SixPlus], recRate)
	if err != nil {
		return nil, err
	}
	in.RateA, in.RateB = &rateA, &rateB

	// 4. 1-2 MTHS draft
	draft, err := ExpandBucket(OneToTwo, book.Tables[OneToTwo], balances[OneToTwo], in)
	if err != nil {
		return nil, err
	}
	res.DraftOneToTwo = draft

	// 5-6. RATE_C and the correction
	rateC, sumRec, sumOutBal, err := DeriveRateC(draft)
	if err != nil {
		return nil, err
	}
	res.Rates = DerivedRates{RateA: rateA, RateB: rateB, RateC: rateC, SumRec: sumRec, SumOutBal: sumOutBal}
	patched, err := ApplyRateC(draft, res.Rates)
	if err != nil {
		return nil, err
	}
	res.Tables[OneToTwo] = patched

	// 7. Fixed-formula buckets
	for _, c := range []Category{Irregular, Repossessed, Deficit} {
		res.Tables[c] = []ProvisionRow{FixedRow(c, balances[c], recRate)}
	}

	// 8. Grand total, without CAPROVISION
	res.Total = TotalRows(res.Rows())
	return res, nil
}

// TotalRows sums the grand-total columns of rows.
func TotalRows(rows []ProvisionRow) ProvisionTotal {
	total := ProvisionTotal{Balance: decimal.Zero, ObDefault: decimal.Zero, ExpectedRec: decimal.Zero}
	for _, r := range rows {
		total.Balance = total.Balance.Add(r.Balance)
		total.ObDefault = total.ObDefault.Add(r.ObDefault)
		total.ExpectedRec = total.ExpectedRec.Add(r.ExpectedRec)
	}
	return total
}
