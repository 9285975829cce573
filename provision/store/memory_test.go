package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/npl-provision/provision"
)

var (
	jan = provision.Period{Year: 2025, Month: time.January}
	feb = provision.Period{Year: 2025, Month: time.February}
)

func periodResult(period provision.Period, capAmt string) *provision.PeriodResult {
	p := provision.AccountProvision{
		AccountNo: "0000000001", NoteNo: 1, Branch: 2,
		Category: provision.Current, Balance: decimal.RequireFromString("1000"),
		Cap: decimal.RequireFromString(capAmt),
	}
	return &provision.PeriodResult{
		Run:       provision.Run{ID: "r1", Portfolio: "conventional", Period: period},
		Waterfall: &provision.WaterfallResult{},
		Snapshot: provision.CategoryRateSnapshot{
			Portfolio: "conventional",
			Period:    period,
			Rates:     []provision.CategoryRate{{Category: provision.Current, CARate: decimal.RequireFromString("0.312")}},
		},
		Cap:            provision.CapResult{Provisions: []provision.AccountProvision{p}},
		Reconciliation: &provision.ReconcileResult{},
	}
}

func TestMemory_SavePeriodVersionsSnapshots(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.LatestSnapshot(ctx, "conventional", jan)
	assert.ErrorIs(t, err, provision.ErrSnapshotNotFound)

	first := periodResult(jan, "10")
	require.NoError(t, m.SavePeriod(ctx, first))
	assert.Equal(t, 1, first.Snapshot.Version)

	second := periodResult(jan, "20")
	require.NoError(t, m.SavePeriod(ctx, second))
	assert.Equal(t, 2, second.Snapshot.Version)

	snap, err := m.LatestSnapshot(ctx, "conventional", jan)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)

	// Provisions are replaced, not appended
	provs, err := m.LoadProvisions(ctx, "conventional", jan)
	require.NoError(t, err)
	require.Len(t, provs, 1)
	assert.Equal(t, "20", provs[0].Cap.String())

	// Other periods are untouched
	provs, err = m.LoadProvisions(ctx, "conventional", feb)
	require.NoError(t, err)
	assert.Empty(t, provs)
}

func TestMemory_RecRateEffectivePeriod(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetRecRate(ctx, provision.Period{Year: 2024, Month: 10}, decimal.RequireFromString("35")))
	require.NoError(t, m.SetRecRate(ctx, jan, decimal.RequireFromString("40")))

	tests := []struct {
		period provision.Period
		want   string
		err    error
	}{
		{provision.Period{Year: 2024, Month: 9}, "", provision.ErrParameterNotFound},
		{provision.Period{Year: 2024, Month: 10}, "35", nil},
		{provision.Period{Year: 2024, Month: 12}, "35", nil},
		{jan, "40", nil},
		{provision.Period{Year: 2026, Month: 6}, "40", nil},
	}
	for _, tt := range tests {
		got, err := m.RecRate(ctx, tt.period)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, tt.period.String())
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.String(), tt.period.String())
	}
}

func TestMemory_ListRunsNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []provision.RunID{"a", "b", "c"} {
		status := provision.RunSucceeded
		if id == "b" {
			status = provision.RunFailed
		}
		require.NoError(t, m.SaveRun(ctx, provision.Run{
			ID: id, Portfolio: "conventional", Period: jan,
			Status: status, StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := m.ListRuns(ctx, provision.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, provision.RunID("c"), runs[0].ID)

	runs, err = m.ListRuns(ctx, provision.RunFilter{Status: provision.RunFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, provision.RunID("b"), runs[0].ID)

	runs, err = m.ListRuns(ctx, provision.RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = m.GetRun(ctx, "zzz")
	assert.True(t, provision.IsNotFound(err))
}

func TestMemory_RuleBooks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.LoadRuleBook(ctx, "islamic")
	assert.ErrorIs(t, err, provision.ErrRuleBookNotFound)

	doc := []byte(`{"name":"islamic"}`)
	require.NoError(t, m.SaveRuleBook(ctx, "islamic", doc))
	doc[0] = 'x'

	got, err := m.LoadRuleBook(ctx, "islamic")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"islamic"}`, string(got))
}
