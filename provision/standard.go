package provision

// =============================================================================
// STANDARD TABLES - CURRENT, 3-5 MTHS and >=6 MTHS
// =============================================================================

// StandardRules returns the CURRENT, 3-5 MTHS and >=6 MTHS sub-category
// tables shared by the hire-purchase books. Only the repossession rows carry
// CAPROVISION; every other row is cap-zero. Portfolio packages append their
// own 1-2 MTHS table.
func StandardRules() []SubCategoryRule {
	rec := Ref(RateRecRate)
	return []SubCategoryRule{
		Rule(Current, SubContinuePaying, "99.48", Static("100"), true),
		Rule(Current, SubSuccessfulRepossession, "0.16", rec, false),
		Rule(Current, SubUnsuccessfulRepossession, "0.36", rec, false),
		Rule(Current, SubThreeToFiveInArrears, "0.21", rec, true),
		Rule(Current, SubSixPlusInArrears, "0.15", rec, true),
		Rule(Current, SubOthers, "0.00", rec, true),

		Rule(ThreeToFive, SubContinuePaying, "0.00", Static("100"), true),
		Rule(ThreeToFive, SubSuccessfulRepossession, "64.50", rec, false),
		Rule(ThreeToFive, SubUnsuccessfulRepossession, "35.50", Static("0"), false),
		Rule(ThreeToFive, SubThreeToFiveInArrears, "6.23", Static("0"), true),
		Rule(ThreeToFive, SubSixPlusInArrears, "10.09", Static("0"), true),
		Rule(ThreeToFive, SubOthers, "19.18", Static("0"), true),

		Rule(SixPlus, SubContinuePaying, "0.00", Static("100"), true),
		Rule(SixPlus, SubSuccessfulRepossession, "36.05", Static("0"), false),
		Rule(SixPlus, SubUnsuccessfulRepossession, "63.95", Static("0"), false),
		Rule(SixPlus, SubThreeToFiveInArrears, "1.31", Static("0"), true),
		Rule(SixPlus, SubSixPlusInArrears, "5.81", Static("0"), true),
		Rule(SixPlus, SubOthers, "56.83", Static("0"), true),
	}
}
