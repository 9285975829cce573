package provision

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TABULATION - Category × branch report
// =============================================================================

const (
	SubTotalLabel   = "SUB TOTAL"
	GrandTotalLabel = "GRAND TOTAL"
)

// Measures are the summed columns of a tabulation row.
type Measures struct {
	Balance     decimal.Decimal
	OpenBalance decimal.Decimal
	Suspend     decimal.Decimal
	WrBack      decimal.Decimal
	WriteOffBal decimal.Decimal
	Cap         decimal.Decimal
	Net         decimal.Decimal
}

// ZeroMeasures returns a row of zeros.
func ZeroMeasures() Measures {
	return Measures{
		Balance: decimal.Zero, OpenBalance: decimal.Zero, Suspend: decimal.Zero,
		WrBack: decimal.Zero, WriteOffBal: decimal.Zero, Cap: decimal.Zero, Net: decimal.Zero,
	}
}

// Add returns m + o column-wise.
func (m Measures) Add(o Measures) Measures {
	return Measures{
		Balance:     m.Balance.Add(o.Balance),
		OpenBalance: m.OpenBalance.Add(o.OpenBalance),
		Suspend:     m.Suspend.Add(o.Suspend),
		WrBack:      m.WrBack.Add(o.WrBack),
		WriteOffBal: m.WriteOffBal.Add(o.WriteOffBal),
		Cap:         m.Cap.Add(o.Cap),
		Net:         m.Net.Add(o.Net),
	}
}

// Equal reports whether every column matches.
func (m Measures) Equal(o Measures) bool {
	return m.Balance.Equal(o.Balance) && m.OpenBalance.Equal(o.OpenBalance) &&
		m.Suspend.Equal(o.Suspend) && m.WrBack.Equal(o.WrBack) &&
		m.WriteOffBal.Equal(o.WriteOffBal) && m.Cap.Equal(o.Cap) && m.Net.Equal(o.Net)
}

func measuresOf(mv MovementRecord) Measures {
	return Measures{
		Balance:     mv.Balance,
		OpenBalance: mv.OpenBalance,
		Suspend:     mv.Suspend,
		WrBack:      mv.WrBack,
		WriteOffBal: mv.WriteOffBal,
		Cap:         mv.Cap,
		Net:         mv.Net,
	}
}

// TabRow is one line of the category × branch report.
type TabRow struct {
	Ordinal  int
	Category string
	Branch   string // 3-digit branch label, SUB TOTAL or GRAND TOTAL
	Measures
}

// IsSubTotal reports whether the row is a category subtotal.
func (r TabRow) IsSubTotal() bool { return r.Branch == SubTotalLabel }

// IsGrandTotal reports whether the row is the grand total.
func (r TabRow) IsGrandTotal() bool { return r.Ordinal == GrandTotalOrdinal && r.Branch == GrandTotalLabel }

type tabKey struct {
	ordinal  int
	category string
	branch   string
}

// Tabulate groups movements by category and branch, adds a SUB TOTAL row per
// category and a GRAND TOTAL row, sorted by ordinal, category and branch.
func Tabulate(movements []MovementRecord) []TabRow {
	groups := make(map[tabKey]Measures)
	subs := make(map[tabKey]Measures)
	grand := ZeroMeasures()

	for _, mv := range movements {
		m := measuresOf(mv)
		ord, label := mv.Category.Ordinal(), mv.Category.Label()

		k := tabKey{ord, label, BranchLabel(mv.Branch)}
		if _, ok := groups[k]; !ok {
			groups[k] = ZeroMeasures()
		}
		groups[k] = groups[k].Add(m)

		sk := tabKey{ord, label, SubTotalLabel}
		if _, ok := subs[sk]; !ok {
			subs[sk] = ZeroMeasures()
		}
		subs[sk] = subs[sk].Add(m)

		grand = grand.Add(m)
	}

	rows := make([]TabRow, 0, len(groups)+len(subs)+1)
	for k, m := range groups {
		rows = append(rows, TabRow{Ordinal: k.ordinal, Category: k.category, Branch: k.branch, Measures: m})
	}
	for k, m := range subs {
		rows = append(rows, TabRow{Ordinal: k.ordinal, Category: k.category, Branch: k.branch, Measures: m})
	}
	rows = append(rows, TabRow{
		Ordinal:  GrandTotalOrdinal,
		Category: GrandTotalLabel,
		Branch:   GrandTotalLabel,
		Measures: grand,
	})

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Branch < b.Branch
	})
	return rows
}
