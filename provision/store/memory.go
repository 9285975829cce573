// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/npl-provision/provision"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	runs       map[provision.RunID]provision.Run
	snapshots  map[key][]provision.CategoryRateSnapshot
	waterfall  map[key][]provision.ProvisionRow
	provisions map[key][]provision.AccountProvision
	movements  map[key][]provision.MovementRecord
	recRates   map[provision.Period]decimal.Decimal
	ruleBooks  map[string][]byte
}

type key struct {
	Portfolio string
	Period    provision.Period
}

func NewMemory() *Memory {
	return &Memory{
		runs:       make(map[provision.RunID]provision.Run),
		snapshots:  make(map[key][]provision.CategoryRateSnapshot),
		waterfall:  make(map[key][]provision.ProvisionRow),
		provisions: make(map[key][]provision.AccountProvision),
		movements:  make(map[key][]provision.MovementRecord),
		recRates:   make(map[provision.Period]decimal.Decimal),
		ruleBooks:  make(map[string][]byte),
	}
}

// =============================================================================
// RUNS
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run provision.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id provision.RunID) (*provision.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provision.ErrRunNotFound, id)
	}
	return &r, nil
}

func (m *Memory) ListRuns(_ context.Context, filter provision.RunFilter) ([]provision.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []provision.Run
	for _, r := range m.runs {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// =============================================================================
// PERIOD STATE
// =============================================================================

// SavePeriod replaces the period's state under one lock.
func (m *Memory) SavePeriod(_ context.Context, res *provision.PeriodResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{Portfolio: res.Run.Portfolio, Period: res.Run.Period}
	snaps := m.snapshots[k]
	res.Snapshot.Version = len(snaps) + 1
	m.snapshots[k] = append(snaps, res.Snapshot)

	m.waterfall[k] = append([]provision.ProvisionRow(nil), res.Waterfall.Rows()...)
	m.provisions[k] = append([]provision.AccountProvision(nil), res.Cap.Provisions...)
	m.movements[k] = append([]provision.MovementRecord(nil), res.Reconciliation.Movements...)
	return nil
}

func (m *Memory) LatestSnapshot(_ context.Context, portfolio string, period provision.Period) (*provision.CategoryRateSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := m.snapshots[key{portfolio, period}]
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: %s %s", provision.ErrSnapshotNotFound, portfolio, period)
	}
	s := snaps[len(snaps)-1]
	return &s, nil
}

func (m *Memory) LoadWaterfall(_ context.Context, portfolio string, period provision.Period) ([]provision.ProvisionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]provision.ProvisionRow(nil), m.waterfall[key{portfolio, period}]...), nil
}

func (m *Memory) LoadProvisions(_ context.Context, portfolio string, period provision.Period) ([]provision.AccountProvision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]provision.AccountProvision(nil), m.provisions[key{portfolio, period}]...), nil
}

func (m *Memory) LoadMovements(_ context.Context, portfolio string, period provision.Period) ([]provision.MovementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]provision.MovementRecord(nil), m.movements[key{portfolio, period}]...), nil
}

// =============================================================================
// PARAMETERS AND RULE BOOKS
// =============================================================================

func (m *Memory) SetRecRate(_ context.Context, effective provision.Period, rate decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recRates[effective] = rate
	return nil
}

// RecRate returns the value with the latest effective period not after period.
func (m *Memory) RecRate(_ context.Context, period provision.Period) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  provision.Period
		found bool
	)
	for p := range m.recRates {
		if p.String() <= period.String() && (!found || p.String() > best.String()) {
			best, found = p, true
		}
	}
	if !found {
		return decimal.Zero, fmt.Errorf("%w: RECRATE for %s", provision.ErrParameterNotFound, period)
	}
	return m.recRates[best], nil
}

func (m *Memory) SaveRuleBook(_ context.Context, portfolio string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleBooks[portfolio] = append([]byte(nil), doc...)
	return nil
}

func (m *Memory) LoadRuleBook(_ context.Context, portfolio string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.ruleBooks[portfolio]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provision.ErrRuleBookNotFound, portfolio)
	}
	return append([]byte(nil), doc...), nil
}

func (m *Memory) Close() error { return nil }
