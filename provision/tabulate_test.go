package provision_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/npl-provision/provision"
)

func sampleMovements(t *testing.T) []provision.MovementRecord {
	t.Helper()
	prior := opening(t, []provision.AccountProvision{
		prov("0000000001", provision.Current, 2, "100"),
		prov("0000000002", provision.Current, 15, "50"),
		prov("0000000003", provision.SixPlus, 2, "4000"),
		prov("0000000004", provision.Deficit, 2, "700"),
	})
	current := []provision.AccountProvision{
		prov("0000000001", provision.Current, 2, "120"),
		prov("0000000002", provision.Current, 15, "20"),
		prov("0000000003", provision.SixPlus, 2, "5000"),
		prov("0000000005", provision.Current, 2, "30"),
		prov("0000000006", provision.OneToTwo, 101, "533.16"),
	}
	res, err := provision.Reconcile(prior, current, nil, false)
	require.NoError(t, err)
	return res.Movements
}

func TestTabulate_Layout(t *testing.T) {
	rows := provision.Tabulate(sampleMovements(t))

	var got [][2]string
	for _, r := range rows {
		got = append(got, [2]string{r.Category, r.Branch})
	}
	assert.Equal(t, [][2]string{
		{"CURRENT", "002"},
		{"CURRENT", "015"},
		{"CURRENT", "SUB TOTAL"},
		{"1-2 MTHS", "101"},
		{"1-2 MTHS", "SUB TOTAL"},
		{">=6 MTHS", "002"},
		{">=6 MTHS", "SUB TOTAL"},
		{"DEFICIT", "002"},
		{"DEFICIT", "SUB TOTAL"},
		{"GRAND TOTAL", "GRAND TOTAL"},
	}, got)

	last := rows[len(rows)-1]
	assert.True(t, last.IsGrandTotal())
	assert.Equal(t, 99, last.Ordinal)
}

func TestTabulate_Measures(t *testing.T) {
	rows := provision.Tabulate(sampleMovements(t))

	// CURRENT branch 002: account 1 (100 → 120) and new account 5 (→ 30)
	r := rows[0]
	assertDec(t, "20000", r.Balance)
	assertDec(t, "100", r.OpenBalance)
	assertDec(t, "150", r.Cap)
	assertDec(t, "50", r.Suspend)
	assertDec(t, "0", r.WrBack)
	assertDec(t, "50", r.Net)

	// DEFICIT: closed account, everything written back
	var deficit provision.TabRow
	for _, r := range rows {
		if r.Category == "DEFICIT" && r.IsSubTotal() {
			deficit = r
		}
	}
	assertDec(t, "0", deficit.Balance)
	assertDec(t, "700", deficit.WrBack)
	assertDec(t, "-700", deficit.Net)
}

func TestTabulate_GrandTotalEqualsSumOfSubTotals(t *testing.T) {
	rows := provision.Tabulate(sampleMovements(t))

	subs, branches := provision.ZeroMeasures(), provision.ZeroMeasures()
	var grand provision.TabRow
	for _, r := range rows {
		switch {
		case r.IsGrandTotal():
			grand = r
		case r.IsSubTotal():
			subs = subs.Add(r.Measures)
		default:
			branches = branches.Add(r.Measures)
		}
	}
	assert.True(t, grand.Measures.Equal(subs), "grand total %+v != subtotals %+v", grand.Measures, subs)
	assert.True(t, grand.Measures.Equal(branches))
}

func TestTabulate_Empty(t *testing.T) {
	rows := provision.Tabulate(nil)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsGrandTotal())
	assert.True(t, rows[0].Cap.IsZero())
}
