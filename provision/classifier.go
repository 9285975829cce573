/*
classifier.go - Arrears/status classification

PURPOSE:
  Assigns each loan to exactly one of the seven provisioning buckets, or
  leaves it unclassified. Bucket boundaries overlap (the USER5 flag pulls
  short-arrears accounts into 3-5 MTHS, status codes cut across day ranges),
  so the rules are an ordered list evaluated top-down: first match wins.

RULES (in order):
  1. CURRENT     days <= 30,      status not excluded, USER5 != "N"
  2. 1-2 MTHS    31 <= days <= 89, status not excluded, USER5 != "N"
  3. 3-5 MTHS    status not excluded and
                 ((USER5 = "N" and days <= 182) or 90 <= days <= 182)
  4. >=6 MTHS    status not excluded and days >= 183
  5. IRREGULAR   status I
  6. REPOSSESSED status R
  7. DEFICIT     status F

  Excluded statuses are F, I, R, E, W and Z. Accounts whose paid indicator
  is not the normal code never classify. An account with no bureau arrears
  record fails every day comparison.

SEE ALSO:
  - types.go: Category
  - waterfall.go: Consumes the buckets
*/
package provision

import "fmt"

// DefaultNormalPaidCode is the paid indicator of a performing, open account.
const DefaultNormalPaidCode = "M"

// excludedStatuses keep an account out of the arrears-day buckets.
var excludedStatuses = map[string]bool{
	"F": true, "I": true, "R": true, "E": true, "W": true, "Z": true,
}

// =============================================================================
// RULES
// =============================================================================

// ClassificationRule is one entry of the ordered rule list.
type ClassificationRule struct {
	Category Category
	Match    func(LoanAccount) bool
}

func daysIn(a LoanAccount, lo, hi int) bool {
	if a.DaysInArrears == nil {
		return false
	}
	d := *a.DaysInArrears
	return d >= lo && d <= hi
}

func daysAtMost(a LoanAccount, hi int) bool {
	return a.DaysInArrears != nil && *a.DaysInArrears <= hi
}

func daysAtLeast(a LoanAccount, lo int) bool {
	return a.DaysInArrears != nil && *a.DaysInArrears >= lo
}

func notExcluded(a LoanAccount) bool {
	return !excludedStatuses[a.BorrowerStatus]
}

// DefaultRules is the classification rule list in evaluation order.
var DefaultRules = []ClassificationRule{
	{Current, func(a LoanAccount) bool {
		return daysAtMost(a, 30) && notExcluded(a) && a.User5 != "N"
	}},
	{OneToTwo, func(a LoanAccount) bool {
		return daysIn(a, 31, 89) && notExcluded(a) && a.User5 != "N"
	}},
	{ThreeToFive, func(a LoanAccount) bool {
		return notExcluded(a) &&
			((a.User5 == "N" && daysAtMost(a, 182)) || daysIn(a, 90, 182))
	}},
	{SixPlus, func(a LoanAccount) bool {
		// The USER5 arm is subsumed by the plain day test.
		return notExcluded(a) &&
			((a.User5 == "N" && daysAtLeast(a, 183)) || daysAtLeast(a, 183))
	}},
	{Irregular, func(a LoanAccount) bool { return a.BorrowerStatus == "I" }},
	{Repossessed, func(a LoanAccount) bool { return a.BorrowerStatus == "R" }},
	{Deficit, func(a LoanAccount) bool { return a.BorrowerStatus == "F" }},
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier evaluates an ordered rule list.
type Classifier struct {
	NormalPaidCode string
	Rules          []ClassificationRule
}

// NewClassifier returns a classifier with the default rules.
// An empty normalPaidCode selects DefaultNormalPaidCode.
func NewClassifier(normalPaidCode string) *Classifier {
	if normalPaidCode == "" {
		normalPaidCode = DefaultNormalPaidCode
	}
	return &Classifier{NormalPaidCode: normalPaidCode, Rules: DefaultRules}
}

// Classify returns the first matching category, or Unclassified.
func (c *Classifier) Classify(a LoanAccount) Category {
	if a.PaidIndicator != c.NormalPaidCode {
		return Unclassified
	}
	for _, r := range c.Rules {
		if r.Match(a) {
			return r.Category
		}
	}
	return Unclassified
}

// Classify applies the default classifier.
func Classify(a LoanAccount) Category {
	return defaultClassifier.Classify(a)
}

var defaultClassifier = NewClassifier(DefaultNormalPaidCode)

// Classification is the partition of an account population.
type Classification struct {
	Buckets map[Category][]LoanAccount
	Gaps    []ClassificationGap
}

// Count returns the number of accounts in category c.
func (cl Classification) Count(c Category) int {
	return len(cl.Buckets[c])
}

// Classified returns every classified account, in category order.
func (cl Classification) Classified() []LoanAccount {
	var out []LoanAccount
	for _, c := range Categories {
		out = append(out, cl.Buckets[c]...)
	}
	return out
}

// ClassifyAll partitions accounts. Unclassified accounts are returned as gaps
// and are excluded from every bucket.
func (c *Classifier) ClassifyAll(accounts []LoanAccount) Classification {
	out := Classification{Buckets: make(map[Category][]LoanAccount, len(Categories))}
	for _, a := range accounts {
		cat := c.Classify(a)
		if cat == Unclassified {
			out.Gaps = append(out.Gaps, ClassificationGap{Key: a.Key(), Reason: c.gapReason(a)})
			continue
		}
		out.Buckets[cat] = append(out.Buckets[cat], a)
	}
	return out
}

func (c *Classifier) gapReason(a LoanAccount) string {
	switch {
	case a.PaidIndicator != c.NormalPaidCode:
		return fmt.Sprintf("paid indicator %q", a.PaidIndicator)
	case a.DaysInArrears == nil:
		return fmt.Sprintf("no arrears record, status %q", a.BorrowerStatus)
	default:
		return fmt.Sprintf("no rule for status %q, days %d, user5 %q",
			a.BorrowerStatus, *a.DaysInArrears, a.User5)
	}
}
