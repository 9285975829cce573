package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/npl-provision/provision"
)

// Sheet names of the XLSX workbook.
const (
	SheetReport    = "CAPCATE"
	SheetWaterfall = "WATERFALL"
)

// numFmtThousands is excelize's built-in "#,##0.00" format.
const numFmtThousands = 4

// Workbook holds what goes into the XLSX report.
type Workbook struct {
	Title     string // e.g. "CONVENTIONAL HP - CAP BY CATEGORY 31/01/25"
	Report    []provision.TabRow
	Waterfall []provision.ProvisionRow
	Total     provision.ProvisionTotal
}

// WriteXLSX writes the report (and the waterfall when present) as a workbook.
func WriteXLSX(w io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetReport); err != nil {
		return err
	}
	numStyle, err := f.NewStyle(&excelize.Style{NumFmt: numFmtThousands})
	if err != nil {
		return err
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	// Report sheet: title, header, rows
	if err := f.SetCellValue(SheetReport, "A1", wb.Title); err != nil {
		return err
	}
	if err := setRow(f, SheetReport, 3, toCells(ReportHeader)); err != nil {
		return err
	}
	for i, r := range wb.Report {
		line := 4 + i
		cells := []interface{}{r.Category, r.Branch,
			amount(r.Balance), amount(r.OpenBalance), amount(r.Suspend), amount(r.WrBack),
			amount(r.WriteOffBal), amount(r.Cap), amount(r.Net)}
		if err := setRow(f, SheetReport, line, cells); err != nil {
			return err
		}
		if r.IsSubTotal() || r.IsGrandTotal() {
			if err := styleRow(f, SheetReport, line, 1, 2, boldStyle); err != nil {
				return err
			}
		}
	}
	if len(wb.Report) > 0 {
		if err := styleRange(f, SheetReport, 3, 4, len(ReportHeader), 3+len(wb.Report), numStyle); err != nil {
			return err
		}
	}

	if len(wb.Waterfall) > 0 {
		if _, err := f.NewSheet(SheetWaterfall); err != nil {
			return err
		}
		if err := setRow(f, SheetWaterfall, 1, toCells(WaterfallHeader)); err != nil {
			return err
		}
		for i, r := range wb.Waterfall {
			cells := []interface{}{r.Category.Label(), r.SubCategory,
				amount(r.Rate), amount(r.RecoveryRate), amount(r.Balance),
				amount(r.ObDefault), amount(r.ExpectedRec), amount(r.CapProvision)}
			if err := setRow(f, SheetWaterfall, 2+i, cells); err != nil {
				return err
			}
		}
		totalLine := 2 + len(wb.Waterfall)
		if err := setRow(f, SheetWaterfall, totalLine, []interface{}{"TOTAL", "", "", "",
			amount(wb.Total.Balance), amount(wb.Total.ObDefault), amount(wb.Total.ExpectedRec)}); err != nil {
			return err
		}
		if err := styleRange(f, SheetWaterfall, 3, 2, len(WaterfallHeader), totalLine, numStyle); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}

// amount converts to float64 for the spreadsheet cell. The cell is display
// only; the CSV and interface outputs carry the exact values.
func amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func toCells(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func setRow(f *excelize.File, sheet string, line int, cells []interface{}) error {
	return f.SetSheetRow(sheet, fmt.Sprintf("A%d", line), &cells)
}

func styleRow(f *excelize.File, sheet string, line, fromCol, toCol, style int) error {
	return styleRange(f, sheet, fromCol, line, toCol, line, style)
}

func styleRange(f *excelize.File, sheet string, fromCol, fromLine, toCol, toLine, style int) error {
	from, err := excelize.CoordinatesToCellName(fromCol, fromLine)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(toCol, toLine)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, from, to, style)
}
