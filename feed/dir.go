package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/npl-provision/provision"
)

// =============================================================================
// FEED DIRECTORY
// =============================================================================
//
// A feed directory holds the extracts of every period, named the way the
// upstream jobs deliver them:
//
//   HP<MM><W><YY>.<ext>            HP snapshot (weekly token)         required
//   CREDMSUBAC<MM><YY>.<ext>       bureau arrears                     required
//   RECRATE<MM><YY>.txt            RECRATE side file                  optional
//   WOFF<MM><YY>.<ext>             quarter-end write-offs             optional
//   <portfolio>-CAP<MM><YY>.<ext>  prior-period provisions (seed)     optional
//
// <ext> is csv or parquet. The opening file carries the previous month's
// token and is only needed when the store has no prior period.

// Formats accepted by Dir.
const (
	FormatAuto    = ""
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// ErrFeedMissing is returned when a required extract is not in the directory.
var ErrFeedMissing = errors.New("feed file missing")

// Dir loads a period's extracts from a directory.
type Dir struct {
	Root   string
	Format string
	Log    logrus.FieldLogger
}

// NewDir returns a Dir over root. An empty format picks whichever file exists,
// preferring parquet.
func NewDir(root, format string, log logrus.FieldLogger) (*Dir, error) {
	switch format {
	case FormatAuto, FormatCSV, FormatParquet:
	default:
		return nil, fmt.Errorf("unknown feed format %q (want csv or parquet)", format)
	}
	return &Dir{Root: root, Format: format, Log: log}, nil
}

// Batch is everything Dir found for one period.
type Batch struct {
	Accounts  []provision.LoanAccount
	RecRate   *decimal.Decimal
	WriteOffs []provision.WriteOff
	Opening   []provision.AccountProvision
	Stats     Stats
	Files     []string
}

// Input returns a PeriodInput for the batch.
func (b *Batch) Input(portfolio string, period provision.Period) provision.PeriodInput {
	return provision.PeriodInput{
		Portfolio: portfolio,
		Period:    period,
		Accounts:  b.Accounts,
		RecRate:   b.RecRate,
		WriteOffs: b.WriteOffs,
		Opening:   b.Opening,
	}
}

// Load reads and prepares the extracts of rd for portfolio p.
func (d *Dir) Load(ctx context.Context, p provision.Portfolio, rd provision.ReportDate) (*Batch, error) {
	b := &Batch{}
	log := d.Log.WithFields(logrus.Fields{"portfolio": p.Name, "period": rd.Period().String()})

	loansPath, err := d.find("HP" + rd.FeedSuffix())
	if err != nil {
		return nil, err
	}
	arrearsPath, err := d.find("CREDMSUBAC" + rd.MonthSuffix())
	if err != nil {
		return nil, err
	}

	loans, err := readLoans(loansPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	arrears, err := readArrears(arrearsPath)
	if err != nil {
		return nil, err
	}
	b.Files = append(b.Files, loansPath, arrearsPath)
	b.Accounts, b.Stats = Prepare(p, loans, arrears)

	log.WithFields(logrus.Fields{
		"loans":          b.Stats.Loans,
		"kept":           b.Stats.Kept(),
		"non_positive":   b.Stats.NonPositive,
		"other_product":  b.Stats.OtherProduct,
		"dup_arrears":    b.Stats.DuplicateArrears,
		"other_facility": b.Stats.OtherFacility,
		"no_arrears":     b.Stats.NoArrears,
	}).Info("feed prepared")

	if path, ok := d.optional("RECRATE"+rd.MonthSuffix(), ".txt"); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		rate, err := ReadRecRate(filepath.Base(path), f)
		f.Close()
		if err != nil {
			return nil, err
		}
		b.RecRate = &rate
		b.Files = append(b.Files, path)
	}

	if path, ok := d.optionalData("WOFF" + rd.MonthSuffix()); ok {
		if b.WriteOffs, err = readWriteOffs(path); err != nil {
			return nil, err
		}
		b.Files = append(b.Files, path)
		log.WithField("write_offs", len(b.WriteOffs)).Info("write-off table loaded")
	}

	prev := provision.NewReportDate(rd.PrevMonth)
	if path, ok := d.optionalData(p.Name + "-CAP" + prev.MonthSuffix()); ok {
		if b.Opening, err = readProvisions(path); err != nil {
			return nil, err
		}
		b.Files = append(b.Files, path)
		log.WithField("opening", len(b.Opening)).Info("opening balances seeded from file")
	}
	return b, nil
}

func (d *Dir) extensions() []string {
	switch d.Format {
	case FormatCSV:
		return []string{".csv"}
	case FormatParquet:
		return []string{".parquet"}
	default:
		return []string{".parquet", ".csv"}
	}
}

func (d *Dir) find(base string) (string, error) {
	if path, ok := d.optionalData(base); ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s in %s", ErrFeedMissing, base, d.Root)
}

func (d *Dir) optionalData(base string) (string, bool) {
	return d.optional(base, d.extensions()...)
}

func (d *Dir) optional(base string, exts ...string) (string, bool) {
	for _, ext := range exts {
		path := filepath.Join(d.Root, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		} else if !errors.Is(err, fs.ErrNotExist) {
			d.Log.WithError(err).WithField("path", path).Warn("feed file not readable")
		}
	}
	return "", false
}

// =============================================================================
// FORMAT DISPATCH
// =============================================================================

func isParquet(path string) bool {
	return filepath.Ext(path) == ".parquet"
}

func withFile[T any](path string, read func(string, *os.File) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return read(filepath.Base(path), f)
}

func readLoans(path string) ([]LoanRecord, error) {
	if isParquet(path) {
		return ReadLoansParquet(path)
	}
	return withFile(path, func(name string, f *os.File) ([]LoanRecord, error) { return ReadLoansCSV(name, f) })
}

func readArrears(path string) ([]ArrearsRecord, error) {
	if isParquet(path) {
		return ReadArrearsParquet(path)
	}
	return withFile(path, func(name string, f *os.File) ([]ArrearsRecord, error) { return ReadArrearsCSV(name, f) })
}

func readWriteOffs(path string) ([]provision.WriteOff, error) {
	if isParquet(path) {
		return ReadWriteOffsParquet(path)
	}
	return withFile(path, func(name string, f *os.File) ([]provision.WriteOff, error) { return ReadWriteOffsCSV(name, f) })
}

func readProvisions(path string) ([]provision.AccountProvision, error) {
	if isParquet(path) {
		return ReadProvisionsParquet(path)
	}
	return withFile(path, func(name string, f *os.File) ([]provision.AccountProvision, error) {
		return ReadProvisionsCSV(name, f)
	})
}
