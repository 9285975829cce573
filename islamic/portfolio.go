// Package islamic registers the Islamic hire-purchase book.
// It shares the CURRENT, 3-5 MTHS and >=6 MTHS tables with the conventional
// book and differs in products and in its 1-2 MTHS table.
package islamic

import "github.com/warp/npl-provision/provision"

// Name is the registry name of the Islamic book.
const Name = "islamic"

var (
	Products   = []int{128, 130}
	Facilities = []string{"34331", "34332"}
)

func init() {
	provision.RegisterPortfolio(Portfolio())
}

// Portfolio returns the Islamic book definition.
func Portfolio() provision.Portfolio {
	return provision.Portfolio{
		Name:        Name,
		Description: "Islamic hire purchase",
		Products:    Products,
		Facilities:  Facilities,
		RuleBook:    RuleBook(),
	}
}

// RuleBook returns the Islamic rule book.
func RuleBook() provision.RuleBook {
	rules := append(provision.StandardRules(), OneToTwoRules()...)
	return provision.NewRuleBook(Name, rules...)
}

// OneToTwoRules returns the Islamic 1-2 MTHS table.
func OneToTwoRules() []provision.SubCategoryRule {
	c := provision.OneToTwo
	return []provision.SubCategoryRule{
		provision.Rule(c, provision.SubContinuePaying, "92.30", provision.Static("100"), true),
		provision.Rule(c, provision.SubSuccessfulRepossession, "2.33", provision.Ref(provision.RateRecRate), false),
		provision.Rule(c, provision.SubUnsuccessfulRepossession, "5.37", provision.Ref(provision.RateC), false),
		provision.Rule(c, provision.SubThreeToFiveInArrears, "2.66", provision.Ref(provision.RateA), true),
		provision.Rule(c, provision.SubSixPlusInArrears, "2.25", provision.Ref(provision.RateB), true),
		provision.Rule(c, provision.SubOthers, "0.46", provision.Static("0"), true),
	}
}
