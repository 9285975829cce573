package feed

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/npl-provision/provision"
)

// =============================================================================
// CSV TABLE
// =============================================================================

// Column names follow the source extracts. Alternatives are listed after the
// preferred name.
var (
	colAccount  = []string{"ACCTNO", "ACCTNUM"}
	colNote     = []string{"NOTENO"}
	colBranch   = []string{"BRANCH"}
	colProduct  = []string{"PRODUCT"}
	colBalance  = []string{"BALANCE"}
	colStatus   = []string{"BORSTAT"}
	colPaid     = []string{"PAIDIND"}
	colUser5    = []string{"USER5"}
	colRef      = []string{"AANO"}
	colFacility = []string{"FACILITY"}
	colDays     = []string{"DAYARR", "DAYSARR"}
	colWriteOff = []string{"WRIOFF_BAL"}
	colCategory = []string{"CATEGORY"}
	colCARate   = []string{"CARATE"}
	colCap      = []string{"CAP"}
)

type csvTable struct {
	name string
	cols map[string]int
	rows [][]string
}

func readCSV(name string, r io.Reader) (*csvTable, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, provision.NewDataAnomaly("feed", "%s: %v", name, err)
	}
	if len(records) == 0 {
		return nil, provision.NewDataAnomaly("feed", "%s: missing header", name)
	}
	t := &csvTable{name: name, cols: make(map[string]int), rows: records[1:]}
	for i, h := range records[0] {
		t.cols[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	return t, nil
}

func (t *csvTable) require(cols ...[]string) error {
	for _, names := range cols {
		if _, ok := t.index(names); !ok {
			return provision.NewDataAnomaly("feed", "%s: missing column %s", t.name, names[0])
		}
	}
	return nil
}

func (t *csvTable) index(names []string) (int, bool) {
	for _, n := range names {
		if i, ok := t.cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}

// row gives typed access to one record; the first error sticks.
type row struct {
	t    *csvTable
	line int
	rec  []string
	err  error
}

func (t *csvTable) each(fn func(r *row) error) error {
	for i, rec := range t.rows {
		r := &row{t: t, line: i + 2, rec: rec}
		if err := fn(r); err != nil {
			return err
		}
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

func (r *row) str(names []string) string {
	i, ok := r.t.index(names)
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r *row) fail(col, v string, err error) {
	if r.err == nil {
		r.err = provision.NewDataAnomaly("feed", "%s line %d: %s %q: %v", r.t.name, r.line, col, v, err)
	}
}

func (r *row) num(names []string) int {
	v := r.str(names)
	if v == "" {
		r.fail(names[0], v, errors.New("required"))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(names[0], v, err)
	}
	return n
}

func (r *row) amount(names []string) decimal.Decimal {
	v := r.str(names)
	d, err := decimal.NewFromString(v)
	if err != nil {
		r.fail(names[0], v, err)
		return decimal.Zero
	}
	return d
}

// =============================================================================
// READERS
// =============================================================================

// ReadLoansCSV reads an HP snapshot.
func ReadLoansCSV(name string, r io.Reader) ([]LoanRecord, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	if err := t.require(colAccount, colNote, colBranch, colProduct, colBalance, colPaid); err != nil {
		return nil, err
	}
	var out []LoanRecord
	err = t.each(func(r *row) error {
		out = append(out, LoanRecord{
			AccountNo:      r.str(colAccount),
			NoteNo:         r.num(colNote),
			Branch:         r.num(colBranch),
			Product:        r.num(colProduct),
			Balance:        r.amount(colBalance),
			BorrowerStatus: r.str(colStatus),
			PaidIndicator:  r.str(colPaid),
			User5:          r.str(colUser5),
			ExternalRef:    r.str(colRef),
		})
		return nil
	})
	return out, err
}

// ReadArrearsCSV reads a bureau arrears extract.
func ReadArrearsCSV(name string, r io.Reader) ([]ArrearsRecord, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	if err := t.require(colAccount, colNote, colFacility, colDays); err != nil {
		return nil, err
	}
	var out []ArrearsRecord
	err = t.each(func(r *row) error {
		out = append(out, ArrearsRecord{
			AccountNo:     r.str(colAccount),
			NoteNo:        r.num(colNote),
			Facility:      r.str(colFacility),
			DaysInArrears: r.num(colDays),
		})
		return nil
	})
	return out, err
}

// ReadWriteOffsCSV reads a quarter-end write-off table.
func ReadWriteOffsCSV(name string, r io.Reader) ([]provision.WriteOff, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	if err := t.require(colAccount, colNote, colWriteOff); err != nil {
		return nil, err
	}
	var out []provision.WriteOff
	err = t.each(func(r *row) error {
		out = append(out, provision.WriteOff{
			Key:     provision.AccountKey{AccountNo: r.str(colAccount), NoteNo: r.num(colNote)},
			Balance: r.amount(colWriteOff),
		})
		return nil
	})
	return out, err
}

// ReadProvisionsCSV reads an account provision table, as written by
// export.WriteProvisionsCSV, for use as opening balances.
func ReadProvisionsCSV(name string, r io.Reader) ([]provision.AccountProvision, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return nil, err
	}
	if err := t.require(colAccount, colNote, colBranch, colCategory, colCap); err != nil {
		return nil, err
	}
	var out []provision.AccountProvision
	err = t.each(func(r *row) error {
		cat, err := provision.ParseCategory(r.str(colCategory))
		if err != nil {
			r.fail(colCategory[0], r.str(colCategory), err)
		}
		p := provision.AccountProvision{
			AccountNo:   r.str(colAccount),
			NoteNo:      r.num(colNote),
			Branch:      r.num(colBranch),
			Category:    cat,
			Cap:         r.amount(colCap),
			ExternalRef: r.str(colRef),
			Balance:     decimal.Zero,
			CARate:      decimal.Zero,
		}
		if r.str(colBalance) != "" {
			p.Balance = r.amount(colBalance)
		}
		if r.str(colCARate) != "" {
			p.CARate = r.amount(colCARate)
		}
		if r.str(colProduct) != "" {
			p.Product = r.num(colProduct)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// ReadRecRate reads a RECRATE side file: a single percentage, optionally
// preceded by a RECRATE header line.
func ReadRecRate(name string, r io.Reader) (decimal.Decimal, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.EqualFold(line, "RECRATE") {
			continue
		}
		d, err := decimal.NewFromString(line)
		if err != nil {
			return decimal.Zero, provision.NewDataAnomaly("feed", "%s: RECRATE %q: %v", name, line, err)
		}
		if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, provision.NewDataAnomaly("feed", "%s: RECRATE %s outside [0,100]", name, d)
		}
		return d, nil
	}
	if err := sc.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("read %s: %w", name, err)
	}
	return decimal.Zero, provision.NewDataAnomaly("feed", "%s: no RECRATE value", name)
}
