/*
Package sqlstore is the database/sql implementation of provision.FullStore
shared by the SQLite and PostgreSQL backends.

PURPOSE:
  Persists runs and the carried state of every period. The two backends
  differ only in how they open the connection and in placeholder syntax;
  queries are written with "?" and rebound to "$n" for PostgreSQL.

INTERFACES IMPLEMENTED:
  provision.Store:          Runs, snapshots, waterfall, provisions, movements
  provision.ParameterStore: RECRATE by effective period
  provision.RuleBookStore:  Custom rule book documents

KEY TABLES:
  runs:                    One row per pipeline execution (upserted)
  category_rate_snapshots: Snapshot header, versioned per portfolio/period
  category_rates:          CARATE per category and snapshot version
  waterfall_rows:          Provision table of the period
  account_provisions:      Per-account CAP (next period's OPEN_BALANCE)
  movements:               Reconciled movement records
  rec_rates:               RECRATE keyed by effective period
  rule_books:              Rule book JSON per portfolio

REPLACE-ONCE:
  SavePeriod runs in one transaction. The period's waterfall, provisions
  and movements are deleted and reinserted; the snapshot gets the next
  version. A failed transaction leaves the previous state in place.

AMOUNTS:
  Decimals are stored as TEXT and parsed back exactly. Periods are stored
  as "YYYY-MM" so string order is period order.

CONCURRENCY:
  Uses sync.RWMutex like the rest of the stores. PostgreSQL would cope
  without it; SQLite needs a single writer.

MIGRATION:
  Schema is auto-migrated on Open(). The DDL is the common subset of
  SQLite and PostgreSQL.

SEE ALSO:
  - provision/store.go: Interface definitions
  - store/sqlite, store/postgres: Backends
  - provision/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/npl-provision/provision"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Store implements provision.FullStore on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.RWMutex
}

var _ provision.FullStore = (*Store)(nil)

// Open wraps db and migrates the schema. The Store owns db from then on.
func Open(db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// rebind rewrites "?" placeholders to "$1".."$n" for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) migrate() error {
	schema := `
	-- Runs (one per pipeline execution)
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		portfolio TEXT NOT NULL,
		period TEXT NOT NULL,
		status TEXT NOT NULL,
		trigger_source TEXT NOT NULL DEFAULT '',
		rate_basis TEXT NOT NULL DEFAULT '',
		rec_rate TEXT NOT NULL DEFAULT '0',
		rate_a TEXT NOT NULL DEFAULT '0',
		rate_b TEXT NOT NULL DEFAULT '0',
		rate_c TEXT NOT NULL DEFAULT '0',
		sum_rec TEXT NOT NULL DEFAULT '0',
		sum_out_bal TEXT NOT NULL DEFAULT '0',
		accounts INTEGER NOT NULL DEFAULT 0,
		classified INTEGER NOT NULL DEFAULT 0,
		excluded_count INTEGER NOT NULL DEFAULT 0,
		uncapped INTEGER NOT NULL DEFAULT 0,
		total_cap TEXT NOT NULL DEFAULT '0',
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_portfolio_period
		ON runs(portfolio, period);

	-- Category-rate snapshots (versioned per period)
	CREATE TABLE IF NOT EXISTS category_rate_snapshots (
		portfolio TEXT NOT NULL,
		period TEXT NOT NULL,
		version INTEGER NOT NULL,
		taken_at TEXT NOT NULL,
		PRIMARY KEY (portfolio, period, version)
	);

	CREATE TABLE IF NOT EXISTS category_rates (
		portfolio TEXT NOT NULL,
		period TEXT NOT NULL,
		version INTEGER NOT NULL,
		category INTEGER NOT NULL,
		balance TEXT NOT NULL,
		cap_provision TEXT NOT NULL,
		ca_rate TEXT NOT NULL,
		overridden BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (portfolio, period, version, category)
	);

	-- Provision table of the period
	CREATE TABLE IF NOT EXISTS waterfall_rows (
		portfolio TEXT NOT NULL,
		period TEXT NOT NULL,
		seq INTEGER NOT NULL,
		category INTEGER NOT NULL,
		sub_category TEXT NOT NULL DEFAULT '',
		rate TEXT NOT NULL,
		recovery_rate TEXT NOT NULL,
		balance TEXT NOT NULL,
		ob_default TEXT NOT NULL,
		expected_rec TEXT NOT NULL,
		cap_provision TEXT NOT NULL,
		cap_zero BOOLEAN NOT NULL DEFAULT FALSE,
		patched BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (portfolio, period, seq)
	);

	-- Per-account CAP (the next period's OPEN_BALANCE)
	CREATE TABLE IF NOT EXISTS account_provisions (
		portfolio TEXT NOT NULL,
		period TEXT NOT NULL,
		account_no TEXT NOT NULL,
		note_no INTEGER NOT NULL,
		branch INTEGER NOT NULL,
		product INTEGER NOT NULL,
		category INTEGER NOT NULL,
		balance TEXT NOT NULL,
		ca_rate TEXT NOT NULL,
		cap TEXT NOT NULL,
		external_ref TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (portfolio, period, account_no, note_no)
	);

	-- Reconciled movements
	CREATE TABLE IF NOT EXISTS movements (
		portfolio TEXT NOT NULL,
		period TEXT NOT NULL,
		account_no TEXT NOT NULL,
		note_no INTEGER NOT NULL,
		branch INTEGER NOT NULL,
		category INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL,
		open_balance TEXT NOT NULL,
		cap TEXT NOT NULL,
		char_cap TEXT NOT NULL,
		suspend TEXT NOT NULL,
		wr_back TEXT NOT NULL,
		write_off_bal TEXT NOT NULL,
		net TEXT NOT NULL,
		written_off BOOLEAN NOT NULL DEFAULT FALSE,
		external_ref TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (portfolio, period, account_no, note_no)
	);

	-- Parameters
	CREATE TABLE IF NOT EXISTS rec_rates (
		effective TEXT PRIMARY KEY,
		rate TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rule_books (
		portfolio TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun inserts a run or updates it in place.
func (s *Store) SaveRun(ctx context.Context, run provision.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO runs
		(id, portfolio, period, status, trigger_source, rate_basis, rec_rate,
		 rate_a, rate_b, rate_c, sum_rec, sum_out_bal,
		 accounts, classified, excluded_count, uncapped, total_cap, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			rec_rate = excluded.rec_rate,
			rate_a = excluded.rate_a,
			rate_b = excluded.rate_b,
			rate_c = excluded.rate_c,
			sum_rec = excluded.sum_rec,
			sum_out_bal = excluded.sum_out_bal,
			accounts = excluded.accounts,
			classified = excluded.classified,
			excluded_count = excluded.excluded_count,
			uncapped = excluded.uncapped,
			total_cap = excluded.total_cap,
			error = excluded.error,
			finished_at = excluded.finished_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		string(run.ID),
		run.Portfolio,
		run.Period.String(),
		string(run.Status),
		run.Trigger,
		string(run.RateBasis),
		run.RecRate.String(),
		run.Rates.RateA.String(),
		run.Rates.RateB.String(),
		run.Rates.RateC.String(),
		run.Rates.SumRec.String(),
		run.Rates.SumOutBal.String(),
		run.Accounts,
		run.Classified,
		run.Excluded,
		run.Uncapped,
		run.TotalCap.String(),
		run.Error,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const runColumns = `id, portfolio, period, status, trigger_source, rate_basis, rec_rate,
	rate_a, rate_b, rate_c, sum_rec, sum_out_bal,
	accounts, classified, excluded_count, uncapped, total_cap, error, started_at, finished_at`

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id provision.RunID) (*provision.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+runColumns+" FROM runs WHERE id = ?"), string(id))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", provision.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, filter provision.RunFilter) ([]provision.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.Portfolio != "" {
		where = append(where, "portfolio = ?")
		args = append(args, filter.Portfolio)
	}
	if !filter.Period.IsZero() {
		where = append(where, "period = ?")
		args = append(args, filter.Period.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []provision.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (provision.Run, error) {
	var (
		run                                    provision.Run
		id, period, status, basis              string
		recRate, rateA, rateB, rateC, sumRec   string
		sumOutBal, totalCap, started, finished string
	)
	err := sc.Scan(&id, &run.Portfolio, &period, &status, &run.Trigger, &basis, &recRate,
		&rateA, &rateB, &rateC, &sumRec, &sumOutBal,
		&run.Accounts, &run.Classified, &run.Excluded, &run.Uncapped, &totalCap, &run.Error,
		&started, &finished)
	if err != nil {
		return run, err
	}

	run.ID = provision.RunID(id)
	run.Status = provision.RunStatus(status)
	run.RateBasis = provision.RateBasis(basis)
	if run.Period, err = provision.ParsePeriod(period); err != nil {
		return run, err
	}
	dec := decimals{table: "runs"}
	run.RecRate = dec.parse("rec_rate", recRate)
	run.Rates = provision.DerivedRates{
		RateA:     dec.parse("rate_a", rateA),
		RateB:     dec.parse("rate_b", rateB),
		RateC:     dec.parse("rate_c", rateC),
		SumRec:    dec.parse("sum_rec", sumRec),
		SumOutBal: dec.parse("sum_out_bal", sumOutBal),
	}
	run.TotalCap = dec.parse("total_cap", totalCap)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return run, dec.err
}

// =============================================================================
// PERIOD STATE
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SavePeriod replaces the period's state in one transaction and assigns
// the next snapshot version.
func (s *Store) SavePeriod(ctx context.Context, res *provision.PeriodResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	portfolio, period := res.Run.Portfolio, res.Run.Period.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx, s.rebind(
		"SELECT COALESCE(MAX(version), 0) FROM category_rate_snapshots WHERE portfolio = ? AND period = ?"),
		portfolio, period).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read snapshot version: %w", err)
	}
	version++

	if err := s.insertSnapshot(ctx, tx, portfolio, period, version, res.Snapshot); err != nil {
		return err
	}

	for _, table := range []string{"waterfall_rows", "account_provisions", "movements"} {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM "+table+" WHERE portfolio = ? AND period = ?"),
			portfolio, period); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if res.Waterfall != nil {
		if err := s.insertWaterfall(ctx, tx, portfolio, period, res.Waterfall.Rows()); err != nil {
			return err
		}
	}
	if err := s.insertProvisions(ctx, tx, portfolio, period, res.Cap.Provisions); err != nil {
		return err
	}
	if res.Reconciliation != nil {
		if err := s.insertMovements(ctx, tx, portfolio, period, res.Reconciliation.Movements); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit period: %w", err)
	}
	res.Snapshot.Version = version
	return nil
}

func (s *Store) insertSnapshot(ctx context.Context, db execer, portfolio, period string, version int, snap provision.CategoryRateSnapshot) error {
	_, err := db.ExecContext(ctx, s.rebind(`
		INSERT INTO category_rate_snapshots (portfolio, period, version, taken_at)
		VALUES (?, ?, ?, ?)`),
		portfolio, period, version, formatTime(snap.TakenAt))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	for _, r := range snap.Rates {
		_, err := db.ExecContext(ctx, s.rebind(`
			INSERT INTO category_rates
			(portfolio, period, version, category, balance, cap_provision, ca_rate, overridden)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			portfolio, period, version, int(r.Category),
			r.Balance.String(), r.CapProvision.String(), r.CARate.String(), r.Overridden)
		if err != nil {
			return fmt.Errorf("failed to insert category rate %s: %w", r.Category, err)
		}
	}
	return nil
}

func (s *Store) insertWaterfall(ctx context.Context, tx *sql.Tx, portfolio, period string, rows []provision.ProvisionRow) error {
	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO waterfall_rows
		(portfolio, period, seq, category, sub_category, rate, recovery_rate, balance,
		 ob_default, expected_rec, cap_provision, cap_zero, patched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare waterfall insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		_, err := stmt.ExecContext(ctx, portfolio, period, i, int(r.Category), r.SubCategory,
			r.Rate.String(), r.RecoveryRate.String(), r.Balance.String(),
			r.ObDefault.String(), r.ExpectedRec.String(), r.CapProvision.String(),
			r.CapZero, r.Patched)
		if err != nil {
			return fmt.Errorf("failed to insert waterfall row: %w", err)
		}
	}
	return nil
}

func (s *Store) insertProvisions(ctx context.Context, tx *sql.Tx, portfolio, period string, provs []provision.AccountProvision) error {
	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO account_provisions
		(portfolio, period, account_no, note_no, branch, product, category, balance, ca_rate, cap, external_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare provision insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range provs {
		_, err := stmt.ExecContext(ctx, portfolio, period, p.AccountNo, p.NoteNo, p.Branch, p.Product,
			int(p.Category), p.Balance.String(), p.CARate.String(), p.Cap.String(), p.ExternalRef)
		if err != nil {
			if isUniqueConstraintError(err) {
				return provision.NewDataAnomaly("persist", "duplicate account %s", p.Key())
			}
			return fmt.Errorf("failed to insert provision %s: %w", p.Key(), err)
		}
	}
	return nil
}

func (s *Store) insertMovements(ctx context.Context, tx *sql.Tx, portfolio, period string, moves []provision.MovementRecord) error {
	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO movements
		(portfolio, period, account_no, note_no, branch, category, status, balance, open_balance,
		 cap, char_cap, suspend, wr_back, write_off_bal, net, written_off, external_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare movement insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range moves {
		_, err := stmt.ExecContext(ctx, portfolio, period, m.Key.AccountNo, m.Key.NoteNo, m.Branch,
			int(m.Category), string(m.Status), m.Balance.String(), m.OpenBalance.String(),
			m.Cap.String(), m.CharCap.String(), m.Suspend.String(), m.WrBack.String(),
			m.WriteOffBal.String(), m.Net.String(), m.WrittenOff, m.ExternalRef)
		if err != nil {
			return fmt.Errorf("failed to insert movement %s: %w", m.Key, err)
		}
	}
	return nil
}

// LatestSnapshot returns the highest snapshot version of the period.
func (s *Store) LatestSnapshot(ctx context.Context, portfolio string, period provision.Period) (*provision.CategoryRateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		version int
		takenAt string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT version, taken_at FROM category_rate_snapshots
		WHERE portfolio = ? AND period = ?
		ORDER BY version DESC LIMIT 1`),
		portfolio, period.String()).Scan(&version, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", provision.ErrSnapshotNotFound, portfolio, period)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT category, balance, cap_provision, ca_rate, overridden FROM category_rates
		WHERE portfolio = ? AND period = ? AND version = ?
		ORDER BY category`),
		portfolio, period.String(), version)
	if err != nil {
		return nil, fmt.Errorf("failed to query category rates: %w", err)
	}
	defer rows.Close()

	snap := &provision.CategoryRateSnapshot{
		Portfolio: portfolio,
		Period:    period,
		Version:   version,
		TakenAt:   parseTime(takenAt),
	}
	for rows.Next() {
		var (
			r                    provision.CategoryRate
			cat                  int
			balance, capProv, ca string
		)
		if err := rows.Scan(&cat, &balance, &capProv, &ca, &r.Overridden); err != nil {
			return nil, err
		}
		dec := decimals{table: "category_rates"}
		r.Category = provision.Category(cat)
		r.Balance = dec.parse("balance", balance)
		r.CapProvision = dec.parse("cap_provision", capProv)
		r.CARate = dec.parse("ca_rate", ca)
		if dec.err != nil {
			return nil, dec.err
		}
		snap.Rates = append(snap.Rates, r)
	}
	return snap, rows.Err()
}

// LoadWaterfall returns the period's provision table in stored order.
func (s *Store) LoadWaterfall(ctx context.Context, portfolio string, period provision.Period) ([]provision.ProvisionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT category, sub_category, rate, recovery_rate, balance, ob_default,
		       expected_rec, cap_provision, cap_zero, patched
		FROM waterfall_rows WHERE portfolio = ? AND period = ?
		ORDER BY seq`),
		portfolio, period.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query waterfall: %w", err)
	}
	defer rows.Close()

	var out []provision.ProvisionRow
	for rows.Next() {
		var (
			r                                 provision.ProvisionRow
			cat                               int
			rate, rec, bal, obd, exp, capProv string
		)
		if err := rows.Scan(&cat, &r.SubCategory, &rate, &rec, &bal, &obd, &exp, &capProv,
			&r.CapZero, &r.Patched); err != nil {
			return nil, err
		}
		dec := decimals{table: "waterfall_rows"}
		r.Category = provision.Category(cat)
		r.Rate = dec.parse("rate", rate)
		r.RecoveryRate = dec.parse("recovery_rate", rec)
		r.Balance = dec.parse("balance", bal)
		r.ObDefault = dec.parse("ob_default", obd)
		r.ExpectedRec = dec.parse("expected_rec", exp)
		r.CapProvision = dec.parse("cap_provision", capProv)
		if dec.err != nil {
			return nil, dec.err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadProvisions returns the period's account provisions in account order.
func (s *Store) LoadProvisions(ctx context.Context, portfolio string, period provision.Period) ([]provision.AccountProvision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT account_no, note_no, branch, product, category, balance, ca_rate, cap, external_ref
		FROM account_provisions WHERE portfolio = ? AND period = ?
		ORDER BY account_no, note_no`),
		portfolio, period.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query provisions: %w", err)
	}
	defer rows.Close()

	var out []provision.AccountProvision
	for rows.Next() {
		var (
			p               provision.AccountProvision
			cat             int
			bal, ca, capAmt string
		)
		if err := rows.Scan(&p.AccountNo, &p.NoteNo, &p.Branch, &p.Product, &cat,
			&bal, &ca, &capAmt, &p.ExternalRef); err != nil {
			return nil, err
		}
		dec := decimals{table: "account_provisions", key: p.Key()}
		p.Category = provision.Category(cat)
		p.Balance = dec.parse("balance", bal)
		p.CARate = dec.parse("ca_rate", ca)
		p.Cap = dec.parse("cap", capAmt)
		if dec.err != nil {
			return nil, dec.err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadMovements returns the period's movements in account order.
func (s *Store) LoadMovements(ctx context.Context, portfolio string, period provision.Period) ([]provision.MovementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT account_no, note_no, branch, category, status, balance, open_balance,
		       cap, char_cap, suspend, wr_back, write_off_bal, net, written_off, external_ref
		FROM movements WHERE portfolio = ? AND period = ?
		ORDER BY account_no, note_no`),
		portfolio, period.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var out []provision.MovementRecord
	for rows.Next() {
		var (
			m                                   provision.MovementRecord
			cat                                 int
			status                              string
			bal, open, capAmt, charCap, suspend string
			wrBack, woBal, net                  string
		)
		if err := rows.Scan(&m.Key.AccountNo, &m.Key.NoteNo, &m.Branch, &cat, &status,
			&bal, &open, &capAmt, &charCap, &suspend, &wrBack, &woBal, &net,
			&m.WrittenOff, &m.ExternalRef); err != nil {
			return nil, err
		}
		m.Category = provision.Category(cat)
		m.Status = provision.MovementStatus(status)
		dec := decimals{table: "movements", key: m.Key}
		m.Balance = dec.parse("balance", bal)
		m.OpenBalance = dec.parse("open_balance", open)
		m.Cap = dec.parse("cap", capAmt)
		m.CharCap = dec.parse("char_cap", charCap)
		m.Suspend = dec.parse("suspend", suspend)
		m.WrBack = dec.parse("wr_back", wrBack)
		m.WriteOffBal = dec.parse("write_off_bal", woBal)
		m.Net = dec.parse("net", net)
		if dec.err != nil {
			return nil, dec.err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// PARAMETERS AND RULE BOOKS
// =============================================================================

// SetRecRate records RECRATE effective from the given period.
func (s *Store) SetRecRate(ctx context.Context, effective provision.Period, rate decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO rec_rates (effective, rate, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (effective) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at`),
		effective.String(), rate.String(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save RECRATE: %w", err)
	}
	return nil
}

// RecRate returns the value with the latest effective period not after period.
func (s *Store) RecRate(ctx context.Context, period provision.Period) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rate string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT rate FROM rec_rates WHERE effective <= ?
		ORDER BY effective DESC LIMIT 1`),
		period.String()).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: RECRATE for %s", provision.ErrParameterNotFound, period)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query RECRATE: %w", err)
	}
	dec := decimals{table: "rec_rates"}
	d := dec.parse("rate", rate)
	return d, dec.err
}

// SaveRuleBook stores a portfolio's custom rule book document.
func (s *Store) SaveRuleBook(ctx context.Context, portfolio string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO rule_books (portfolio, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (portfolio) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`),
		portfolio, string(doc), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save rule book: %w", err)
	}
	return nil
}

func (s *Store) LoadRuleBook(ctx context.Context, portfolio string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT doc FROM rule_books WHERE portfolio = ?"), portfolio).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", provision.ErrRuleBookNotFound, portfolio)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rule book: %w", err)
	}
	return []byte(doc), nil
}

// Helper functions

// decimals parses stored TEXT amounts, keeping the first failure.
// A value that does not parse is corrupt carried state, never zero.
type decimals struct {
	table string
	key   provision.AccountKey
	err   error
}

func (d *decimals) parse(column, s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err == nil {
		return v
	}
	if d.err == nil {
		where := d.table + "." + column
		if d.key != (provision.AccountKey{}) {
			where += " of " + d.key.String()
		}
		d.err = provision.NewDataAnomaly("store", "%s: %q is not a decimal", where, s)
	}
	return decimal.Zero
}

// timeLayout has fixed-width fractions so stored times sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
