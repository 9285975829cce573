package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/npl-provision/provision"
)

// Output formats Publish understands.
const (
	FormatCSV       = "csv"
	FormatXLSX      = "xlsx"
	FormatXML       = "xml"
	FormatParquet   = "parquet"
	FormatInterface = "interface"
)

// Formats lists every output format.
var Formats = []string{FormatCSV, FormatXLSX, FormatXML, FormatParquet, FormatInterface}

// ValidFormat reports whether f is a known output format.
func ValidFormat(f string) bool {
	for _, x := range Formats {
		if x == f {
			return true
		}
	}
	return false
}

// Published is one file written by Publish.
type Published struct {
	Format string
	Path   string
}

// FileNames returns the base names of a period's outputs:
//
//	{portfolio}-CAPCATE{MMYY}  the category x branch report
//	{portfolio}-CAP{MMYY}      the account provisions (next OPEN_BALANCE)
//	{portfolio}-WATERFALL{MMYY}
//	{portfolio}-FSAS5{MMYY}.txt
func FileNames(portfolio string, rd provision.ReportDate) (report, provisions, waterfall, iface string) {
	s := rd.MonthSuffix()
	return portfolio + "-CAPCATE" + s,
		portfolio + "-CAP" + s,
		portfolio + "-WATERFALL" + s,
		portfolio + "-FSAS5" + s + ".txt"
}

// Publish writes the requested formats of res into dir. The interface file
// is validated in full before anything is written for it.
func Publish(dir string, formats []string, res *provision.PeriodResult, rd provision.ReportDate) ([]Published, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	portfolio := res.Run.Portfolio
	report, provs, waterfall, iface := FileNames(portfolio, rd)

	var out []Published
	add := func(format, name string, write func(io.Writer) error) error {
		var buf bytes.Buffer
		if err := write(&buf); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return err
		}
		out = append(out, Published{Format: format, Path: path})
		return nil
	}

	for _, f := range formats {
		var err error
		switch f {
		case FormatCSV:
			err = add(f, report+".csv", func(w io.Writer) error { return WriteReportCSV(w, res.Report) })
			if err == nil {
				err = add(f, provs+".csv", func(w io.Writer) error { return WriteProvisionsCSV(w, res.Cap.Provisions) })
			}
			if err == nil && res.Waterfall != nil {
				err = add(f, waterfall+".csv", func(w io.Writer) error {
					return WriteWaterfallCSV(w, res.Waterfall.Rows(), res.Waterfall.Total)
				})
			}
		case FormatXLSX:
			wb := Workbook{
				Title:  fmt.Sprintf("%s HP - CAP BY CATEGORY %s", strings.ToUpper(portfolio), rd.Display()),
				Report: res.Report,
			}
			if res.Waterfall != nil {
				wb.Waterfall, wb.Total = res.Waterfall.Rows(), res.Waterfall.Total
			}
			err = add(f, report+".xlsx", func(w io.Writer) error { return WriteXLSX(w, wb) })
		case FormatXML:
			meta := ReportMeta{Portfolio: portfolio, Period: res.Run.Period, ReportDate: rd.Display(), RunID: res.Run.ID}
			err = add(f, report+".xml", func(w io.Writer) error { return WriteReportXML(w, meta, res.Report) })
		case FormatParquet:
			path := filepath.Join(dir, provs+".parquet")
			if err = WriteProvisionsParquet(path, res.Cap.Provisions); err == nil {
				out = append(out, Published{Format: f, Path: path})
			}
		case FormatInterface:
			err = add(f, iface, func(w io.Writer) error {
				_, err := WriteInterface(w, res.Cap.Provisions)
				return err
			})
		default:
			err = fmt.Errorf("unknown output format %q", f)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
