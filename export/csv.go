// Package export writes provisioning outputs: the category × branch report
// (CSV, XLSX, XML), the account provision table (CSV, Parquet) and the
// fixed-width bureau interface.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/warp/npl-provision/provision"
)

// ReportHeader is the column layout of the CAPCATE report.
var ReportHeader = []string{
	"CATEGORY", "BRANCH", "BALANCE", "OPEN_BALANCE", "SUSPEND", "WRBACK", "WRIOFF_BAL", "CAP", "NET",
}

// ProvisionHeader is the column layout of the account provision table.
var ProvisionHeader = []string{
	"ACCTNO", "NOTENO", "BRANCH", "PRODUCT", "CATEGORY", "BALANCE", "CARATE", "CAP", "AANO",
}

// WaterfallHeader is the column layout of the provision waterfall.
var WaterfallHeader = []string{
	"CATEGORY", "SUBCATEGORY", "RATE", "RECRATE", "BALANCE", "OBDEFAULT", "EXPECTEDREC", "CAPROVISION",
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func measureCells(m provision.Measures) []string {
	return []string{
		money(m.Balance), money(m.OpenBalance), money(m.Suspend), money(m.WrBack),
		money(m.WriteOffBal), money(m.Cap), money(m.Net),
	}
}

// WriteReportCSV writes the tabulated report.
func WriteReportCSV(w io.Writer, rows []provision.TabRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := append([]string{r.Category, r.Branch}, measureCells(r.Measures)...)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteProvisionsCSV writes the account provision table. The file is read
// back by feed.ReadProvisionsCSV as opening balances.
func WriteProvisionsCSV(w io.Writer, provs []provision.AccountProvision) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ProvisionHeader); err != nil {
		return err
	}
	for _, p := range provs {
		rec := []string{
			p.AccountNo,
			strconv.Itoa(p.NoteNo),
			strconv.Itoa(p.Branch),
			strconv.Itoa(p.Product),
			p.Category.Label(),
			p.Balance.String(),
			p.CARate.String(),
			money(p.Cap),
			p.ExternalRef,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteWaterfallCSV writes the provision table with a trailing total line.
// The total carries no CAPROVISION.
func WriteWaterfallCSV(w io.Writer, rows []provision.ProvisionRow, total provision.ProvisionTotal) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(WaterfallHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Category.Label(),
			r.SubCategory,
			money(r.Rate),
			money(r.RecoveryRate),
			money(r.Balance),
			money(r.ObDefault),
			money(r.ExpectedRec),
			money(r.CapProvision),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	if err := cw.Write([]string{
		"TOTAL", "", "", "", money(total.Balance), money(total.ObDefault), money(total.ExpectedRec), "",
	}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
