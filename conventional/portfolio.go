/*
portfolio.go - Conventional hire-purchase book

PURPOSE:
  Registers the conventional HP portfolio with the provisioning engine:
  its product codes, the bureau facility codes its arrears come under, and
  its rule book (the shared CURRENT / 3-5 / >=6 tables plus its own 1-2 MTHS
  table).

1-2 MTHS TABLE:
  CONTINUE PAYING            92.83  recovery 100     cap-zero
  SUCCESSFUL REPOSSESSION     2.39  recovery RECRATE
  UNSUCCESSFUL REPOSSESSION   4.78  recovery RATE_C (patched)
  - 3-5 MONTHS IN ARREARS     2.28  recovery RATE_A  cap-zero
  - >6 MONTHS IN ARREARS      2.04  recovery RATE_B  cap-zero
  - OTHERS                    0.46  recovery 0       cap-zero

SEE ALSO:
  - islamic/portfolio.go: The Islamic book
  - provision/standard.go: Shared tables
*/
package conventional

import "github.com/warp/npl-provision/provision"

// Name is the registry name of the conventional book.
const Name = "conventional"

var (
	// Products are the HP product codes of the book.
	Products = []int{700, 705, 720, 725, 380, 381}

	// Facilities are the bureau facility codes of HP arrears records.
	Facilities = []string{"34331", "34332"}
)

func init() {
	provision.RegisterPortfolio(Portfolio())
}

// Portfolio returns the conventional book definition.
func Portfolio() provision.Portfolio {
	return provision.Portfolio{
		Name:        Name,
		Description: "Conventional hire purchase",
		Products:    Products,
		Facilities:  Facilities,
		RuleBook:    RuleBook(),
	}
}

// RuleBook returns the conventional rule book.
func RuleBook() provision.RuleBook {
	rules := append(provision.StandardRules(), OneToTwoRules()...)
	return provision.NewRuleBook(Name, rules...)
}

// OneToTwoRules returns the conventional 1-2 MTHS table.
func OneToTwoRules() []provision.SubCategoryRule {
	c := provision.OneToTwo
	return []provision.SubCategoryRule{
		provision.Rule(c, provision.SubContinuePaying, "92.83", provision.Static("100"), true),
		provision.Rule(c, provision.SubSuccessfulRepossession, "2.39", provision.Ref(provision.RateRecRate), false),
		provision.Rule(c, provision.SubUnsuccessfulRepossession, "4.78", provision.Ref(provision.RateC), false),
		provision.Rule(c, provision.SubThreeToFiveInArrears, "2.28", provision.Ref(provision.RateA), true),
		provision.Rule(c, provision.SubSixPlusInArrears, "2.04", provision.Ref(provision.RateB), true),
		provision.Rule(c, provision.SubOthers, "0.46", provision.Static("0"), true),
	}
}
