package feed

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/warp/npl-provision/provision"
)

// =============================================================================
// PARQUET SCHEMAS
// =============================================================================
//
// Amounts are stored as UTF8 decimal strings so that no value passes through
// float64.

type loanRow struct {
	AccountNo      string `parquet:"name=acctno, type=BYTE_ARRAY, convertedtype=UTF8"`
	NoteNo         int32  `parquet:"name=noteno, type=INT32"`
	Branch         int32  `parquet:"name=branch, type=INT32"`
	Product        int32  `parquet:"name=product, type=INT32"`
	Balance        string `parquet:"name=balance, type=BYTE_ARRAY, convertedtype=UTF8"`
	BorrowerStatus string `parquet:"name=borstat, type=BYTE_ARRAY, convertedtype=UTF8"`
	PaidIndicator  string `parquet:"name=paidind, type=BYTE_ARRAY, convertedtype=UTF8"`
	User5          string `parquet:"name=user5, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExternalRef    string `parquet:"name=aano, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type arrearsRow struct {
	AccountNo     string `parquet:"name=acctno, type=BYTE_ARRAY, convertedtype=UTF8"`
	NoteNo        int32  `parquet:"name=noteno, type=INT32"`
	Facility      string `parquet:"name=facility, type=BYTE_ARRAY, convertedtype=UTF8"`
	DaysInArrears int32  `parquet:"name=dayarr, type=INT32"`
}

type writeOffRow struct {
	AccountNo string `parquet:"name=acctno, type=BYTE_ARRAY, convertedtype=UTF8"`
	NoteNo    int32  `parquet:"name=noteno, type=INT32"`
	Balance   string `parquet:"name=wrioff_bal, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ProvisionRow is the parquet layout of an account provision table.
// export.WriteProvisionsParquet writes it; ReadProvisionsParquet reads it
// back as the next period's opening balances.
type ProvisionRow struct {
	AccountNo   string `parquet:"name=acctno, type=BYTE_ARRAY, convertedtype=UTF8"`
	NoteNo      int32  `parquet:"name=noteno, type=INT32"`
	Branch      int32  `parquet:"name=branch, type=INT32"`
	Product     int32  `parquet:"name=product, type=INT32"`
	Category    string `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8"`
	Balance     string `parquet:"name=balance, type=BYTE_ARRAY, convertedtype=UTF8"`
	CARate      string `parquet:"name=carate, type=BYTE_ARRAY, convertedtype=UTF8"`
	Cap         string `parquet:"name=cap, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExternalRef string `parquet:"name=aano, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// NewProvisionRow converts an AccountProvision to its parquet layout.
func NewProvisionRow(p provision.AccountProvision) ProvisionRow {
	return ProvisionRow{
		AccountNo:   p.AccountNo,
		NoteNo:      int32(p.NoteNo),
		Branch:      int32(p.Branch),
		Product:     int32(p.Product),
		Category:    p.Category.String(),
		Balance:     p.Balance.String(),
		CARate:      p.CARate.String(),
		Cap:         p.Cap.String(),
		ExternalRef: p.ExternalRef,
	}
}

// =============================================================================
// GENERIC READ / WRITE
// =============================================================================

func readParquet[T any](path string) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), 4)
	if err != nil {
		return nil, provision.NewDataAnomaly("feed", "%s: parquet schema: %v", path, err)
	}
	defer pr.ReadStop()

	rows := make([]T, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, provision.NewDataAnomaly("feed", "%s: parquet read: %v", path, err)
	}
	return rows, nil
}

// WriteParquet writes rows to path with snappy compression.
func WriteParquet[T any](path string, rows []T) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet %s: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(T), 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("parquet flush: %w", err)
	}
	return fw.Close()
}

func parseAmount(path, col, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, provision.NewDataAnomaly("feed", "%s: %s %q: %v", path, col, v, err)
	}
	return d, nil
}

// =============================================================================
// READERS
// =============================================================================

// ReadLoansParquet reads an HP snapshot.
func ReadLoansParquet(path string) ([]LoanRecord, error) {
	rows, err := readParquet[loanRow](path)
	if err != nil {
		return nil, err
	}
	out := make([]LoanRecord, 0, len(rows))
	for _, r := range rows {
		bal, err := parseAmount(path, "balance", r.Balance)
		if err != nil {
			return nil, err
		}
		out = append(out, LoanRecord{
			AccountNo:      r.AccountNo,
			NoteNo:         int(r.NoteNo),
			Branch:         int(r.Branch),
			Product:        int(r.Product),
			Balance:        bal,
			BorrowerStatus: r.BorrowerStatus,
			PaidIndicator:  r.PaidIndicator,
			User5:          r.User5,
			ExternalRef:    r.ExternalRef,
		})
	}
	return out, nil
}

// ReadArrearsParquet reads a bureau arrears extract.
func ReadArrearsParquet(path string) ([]ArrearsRecord, error) {
	rows, err := readParquet[arrearsRow](path)
	if err != nil {
		return nil, err
	}
	out := make([]ArrearsRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, ArrearsRecord{
			AccountNo:     r.AccountNo,
			NoteNo:        int(r.NoteNo),
			Facility:      r.Facility,
			DaysInArrears: int(r.DaysInArrears),
		})
	}
	return out, nil
}

// ReadWriteOffsParquet reads a write-off table.
func ReadWriteOffsParquet(path string) ([]provision.WriteOff, error) {
	rows, err := readParquet[writeOffRow](path)
	if err != nil {
		return nil, err
	}
	out := make([]provision.WriteOff, 0, len(rows))
	for _, r := range rows {
		bal, err := parseAmount(path, "wrioff_bal", r.Balance)
		if err != nil {
			return nil, err
		}
		out = append(out, provision.WriteOff{
			Key:     provision.AccountKey{AccountNo: r.AccountNo, NoteNo: int(r.NoteNo)},
			Balance: bal,
		})
	}
	return out, nil
}

// ReadProvisionsParquet reads an account provision table.
func ReadProvisionsParquet(path string) ([]provision.AccountProvision, error) {
	rows, err := readParquet[ProvisionRow](path)
	if err != nil {
		return nil, err
	}
	out := make([]provision.AccountProvision, 0, len(rows))
	for _, r := range rows {
		cat, err := provision.ParseCategory(r.Category)
		if err != nil {
			return nil, provision.NewDataAnomaly("feed", "%s: %v", path, err)
		}
		p := provision.AccountProvision{
			AccountNo:   r.AccountNo,
			NoteNo:      int(r.NoteNo),
			Branch:      int(r.Branch),
			Product:     int(r.Product),
			Category:    cat,
			ExternalRef: r.ExternalRef,
		}
		if p.Balance, err = parseAmount(path, "balance", r.Balance); err != nil {
			return nil, err
		}
		if p.CARate, err = parseAmount(path, "carate", r.CARate); err != nil {
			return nil, err
		}
		if p.Cap, err = parseAmount(path, "cap", r.Cap); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// WriteLoansParquet writes an HP snapshot. Used to convert CSV extracts and
// by tests.
func WriteLoansParquet(path string, loans []LoanRecord) error {
	rows := make([]loanRow, 0, len(loans))
	for _, l := range loans {
		rows = append(rows, loanRow{
			AccountNo:      l.AccountNo,
			NoteNo:         int32(l.NoteNo),
			Branch:         int32(l.Branch),
			Product:        int32(l.Product),
			Balance:        l.Balance.String(),
			BorrowerStatus: l.BorrowerStatus,
			PaidIndicator:  l.PaidIndicator,
			User5:          l.User5,
			ExternalRef:    l.ExternalRef,
		})
	}
	return WriteParquet(path, rows)
}

// WriteArrearsParquet writes a bureau arrears extract.
func WriteArrearsParquet(path string, arrears []ArrearsRecord) error {
	rows := make([]arrearsRow, 0, len(arrears))
	for _, a := range arrears {
		rows = append(rows, arrearsRow{
			AccountNo:     a.AccountNo,
			NoteNo:        int32(a.NoteNo),
			Facility:      a.Facility,
			DaysInArrears: int32(a.DaysInArrears),
		})
	}
	return WriteParquet(path, rows)
}
