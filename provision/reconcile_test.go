package provision_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/npl-provision/provision"
)

func prov(acct string, cat provision.Category, branch int, capAmt string) provision.AccountProvision {
	return provision.AccountProvision{
		AccountNo: acct,
		NoteNo:    1,
		Branch:    branch,
		Category:  cat,
		Balance:   dec("10000"),
		Cap:       dec(capAmt),
	}
}

func opening(t *testing.T, prior []provision.AccountProvision) provision.OpeningBalances {
	t.Helper()
	ob, err := provision.NewOpeningBalances(prior)
	require.NoError(t, err)
	return ob
}

func movementFor(t *testing.T, res *provision.ReconcileResult, acct string) provision.MovementRecord {
	t.Helper()
	for _, m := range res.Movements {
		if m.Key.AccountNo == acct {
			return m
		}
	}
	t.Fatalf("no movement for %s", acct)
	return provision.MovementRecord{}
}

// =============================================================================
// JOIN STATES
// =============================================================================

func TestReconcile_ContinuingIncrease(t *testing.T) {
	// GIVEN: Prior OPEN_BALANCE 500, current CAP 700
	prior := opening(t, []provision.AccountProvision{prov("A", provision.OneToTwo, 1, "500")})
	current := []provision.AccountProvision{prov("A", provision.OneToTwo, 1, "700")}

	// WHEN: Reconciling
	res, err := provision.Reconcile(prior, current, nil, false)
	require.NoError(t, err)

	// THEN: CHARCAP 200, SUSPEND 200, WRBACK 0, NET 200
	m := movementFor(t, res, "A")
	assert.Equal(t, provision.StatusContinuing, m.Status)
	assertDec(t, "200", m.CharCap)
	assertDec(t, "200", m.Suspend)
	assertDec(t, "0", m.WrBack)
	assertDec(t, "200", m.Net)
}

func TestReconcile_ContinuingDecrease(t *testing.T) {
	prior := opening(t, []provision.AccountProvision{prov("A", provision.SixPlus, 1, "900")})
	res, err := provision.Reconcile(prior, []provision.AccountProvision{prov("A", provision.ThreeToFive, 1, "650.50")}, nil, false)
	require.NoError(t, err)

	m := movementFor(t, res, "A")
	assertDec(t, "-249.50", m.CharCap)
	assertDec(t, "0", m.Suspend)
	assertDec(t, "249.50", m.WrBack)
	assertDec(t, "-249.50", m.Net)
	assert.Equal(t, provision.ThreeToFive, m.Category, "category follows the current record")
}

func TestReconcile_ClosedAccount(t *testing.T) {
	// GIVEN: An account present only in the prior period
	prior := opening(t, []provision.AccountProvision{prov("A", provision.Irregular, 12, "800")})

	// WHEN: Reconciling against an empty current period
	res, err := provision.Reconcile(prior, nil, nil, false)
	require.NoError(t, err)

	// THEN: Status P, CAP 0, SUSPEND 0, WRBACK = OPEN_BALANCE
	m := movementFor(t, res, "A")
	assert.Equal(t, provision.StatusClosed, m.Status)
	assert.Equal(t, "P", string(m.Status))
	assertDec(t, "0", m.Cap)
	assertDec(t, "0", m.Suspend)
	assertDec(t, "800", m.WrBack)
	assertDec(t, "-800", m.Net)

	// AND: Category and branch come from the prior record
	assert.Equal(t, provision.Irregular, m.Category)
	assert.Equal(t, 12, m.Branch)
}

func TestReconcile_NewAccount(t *testing.T) {
	res, err := provision.Reconcile(opening(t, nil),
		[]provision.AccountProvision{prov("B", provision.Current, 3, "31.20")}, nil, false)
	require.NoError(t, err)

	m := movementFor(t, res, "B")
	assert.Equal(t, provision.StatusNew, m.Status)
	assert.Equal(t, "C", string(m.Status))
	assertDec(t, "0", m.OpenBalance)
	assertDec(t, "31.20", m.Suspend)
	assertDec(t, "31.20", m.Net)
}

func TestReconcile_OuterJoinOrderAndCounts(t *testing.T) {
	prior := opening(t, []provision.AccountProvision{
		prov("C", provision.Current, 1, "10"),
		prov("A", provision.Current, 1, "10"),
	})
	current := []provision.AccountProvision{
		prov("B", provision.Current, 1, "10"),
		prov("A", provision.Current, 1, "10"),
	}

	res, err := provision.Reconcile(prior, current, nil, false)
	require.NoError(t, err)

	require.Len(t, res.Movements, 3)
	assert.Equal(t, "A", res.Movements[0].Key.AccountNo)
	assert.Equal(t, "B", res.Movements[1].Key.AccountNo)
	assert.Equal(t, "C", res.Movements[2].Key.AccountNo)

	counts := res.Counts()
	assert.Equal(t, 1, counts[provision.StatusContinuing])
	assert.Equal(t, 1, counts[provision.StatusNew])
	assert.Equal(t, 1, counts[provision.StatusClosed])
}

func TestReconcile_NoteNumberIsPartOfIdentity(t *testing.T) {
	p := prov("A", provision.Current, 1, "10")
	c := prov("A", provision.Current, 1, "10")
	c.NoteNo = 2

	res, err := provision.Reconcile(opening(t, []provision.AccountProvision{p}),
		[]provision.AccountProvision{c}, nil, false)
	require.NoError(t, err)
	assert.Len(t, res.Movements, 2)
}

func TestReconcile_DuplicateCurrentKey(t *testing.T) {
	current := []provision.AccountProvision{prov("A", provision.Current, 1, "1"), prov("A", provision.Current, 1, "2")}
	_, err := provision.Reconcile(opening(t, nil), current, nil, false)
	assert.True(t, provision.IsDataAnomaly(err))
}

func TestReconcile_DuplicatePriorKey(t *testing.T) {
	// GIVEN: The prior period carries account A twice
	prior := []provision.AccountProvision{prov("A", provision.OneToTwo, 1, "500"), prov("A", provision.OneToTwo, 1, "200")}

	// WHEN: Indexing the opening balances
	ob, err := provision.NewOpeningBalances(prior)

	// THEN: Neither CAP is silently dropped
	require.Error(t, err)
	assert.True(t, provision.IsDataAnomaly(err))
	assert.Contains(t, err.Error(), "A/")
	assert.Nil(t, ob)
}

// =============================================================================
// WRITE-OFF OVERLAY
// =============================================================================

func TestReconcile_WriteOffOverlay(t *testing.T) {
	// GIVEN: Two written-off accounts at quarter end
	prior := opening(t, []provision.AccountProvision{
		prov("A", provision.SixPlus, 1, "1000"),
		prov("B", provision.SixPlus, 1, "1000"),
	})
	current := []provision.AccountProvision{
		prov("A", provision.SixPlus, 1, "1500"),
		prov("B", provision.SixPlus, 1, "200"),
	}
	writeOffs := []provision.WriteOff{
		{Key: provision.AccountKey{AccountNo: "A", NoteNo: 1}, Balance: dec("400")},
		{Key: provision.AccountKey{AccountNo: "B", NoteNo: 1}, Balance: dec("1300")},
	}

	// WHEN: Reconciling with the overlay applied
	res, err := provision.Reconcile(prior, current, writeOffs, true)
	require.NoError(t, err)

	// THEN: Movements are measured against WRIOFF_BAL instead of CAP
	a := movementFor(t, res, "A")
	assert.True(t, a.WrittenOff)
	assertDec(t, "400", a.WriteOffBal)
	assertDec(t, "0", a.Suspend)
	assertDec(t, "600", a.WrBack)
	assertDec(t, "-600", a.Net)
	assertDec(t, "500", a.CharCap)

	b := movementFor(t, res, "B")
	assertDec(t, "300", b.Suspend)
	assertDec(t, "0", b.WrBack)
	assertDec(t, "300", b.Net)
	assert.Equal(t, 2, res.WriteOffsApplied)
}

func TestReconcile_WriteOffIgnoredOutsideQuarterEnd(t *testing.T) {
	prior := opening(t, []provision.AccountProvision{prov("A", provision.SixPlus, 1, "1000")})
	current := []provision.AccountProvision{prov("A", provision.SixPlus, 1, "1500")}
	writeOffs := []provision.WriteOff{{Key: provision.AccountKey{AccountNo: "A", NoteNo: 1}, Balance: dec("400")}}

	res, err := provision.Reconcile(prior, current, writeOffs, false)
	require.NoError(t, err)

	a := movementFor(t, res, "A")
	assert.False(t, a.WrittenOff)
	assertDec(t, "0", a.WriteOffBal)
	assertDec(t, "500", a.Suspend)
	assert.Equal(t, 0, res.WriteOffsApplied)
}

func TestReconcile_UnmatchedWriteOff(t *testing.T) {
	writeOffs := []provision.WriteOff{{Key: provision.AccountKey{AccountNo: "Z", NoteNo: 9}, Balance: dec("1")}}

	res, err := provision.Reconcile(opening(t, nil), nil, writeOffs, true)
	require.NoError(t, err)

	assert.Empty(t, res.Movements)
	assert.Equal(t, []provision.AccountKey{{AccountNo: "Z", NoteNo: 9}}, res.UnmatchedWriteOffs)
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestReconcile_NetAndExclusiveMovements(t *testing.T) {
	amounts := []string{"0", "0.01", "100", "250.75", "999999.99"}
	var prior, current []provision.AccountProvision
	var writeOffs []provision.WriteOff
	n := 0
	for _, open := range amounts {
		for _, cur := range amounts {
			n++
			acct := string(rune('a'+n%26)) + dec(open).String() + "-" + dec(cur).String()
			prior = append(prior, prov(acct, provision.Current, 1, open))
			current = append(current, prov(acct, provision.Current, 1, cur))
			if n%3 == 0 {
				writeOffs = append(writeOffs, provision.WriteOff{
					Key:     provision.AccountKey{AccountNo: acct, NoteNo: 1},
					Balance: dec(amounts[n%len(amounts)]),
				})
			}
		}
	}

	res, err := provision.Reconcile(opening(t, prior), current, writeOffs, true)
	require.NoError(t, err)

	for _, m := range res.Movements {
		assert.True(t, m.Net.Equal(m.Suspend.Sub(m.WrBack)), m.Key.String())
		assert.False(t, m.Suspend.IsPositive() && m.WrBack.IsPositive(), m.Key.String())
		assert.False(t, m.Suspend.IsNegative() || m.WrBack.IsNegative(), m.Key.String())
	}
}
