package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/npl-provision/feed"
	"github.com/warp/npl-provision/provision"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleProvision() provision.AccountProvision {
	return provision.AccountProvision{
		AccountNo:   "1234567",
		NoteNo:      12,
		Branch:      7,
		Product:     700,
		Category:    provision.OneToTwo,
		Balance:     dec("10000"),
		CARate:      dec("5.331592"),
		Cap:         dec("533.16"),
		ExternalRef: "AA1234567890",
	}
}

func sampleReport() []provision.TabRow {
	m := func(bal, capAmt string) provision.Measures {
		out := provision.ZeroMeasures()
		out.Balance = dec(bal)
		out.Cap = dec(capAmt)
		out.Suspend = dec(capAmt)
		out.Net = dec(capAmt)
		return out
	}
	return []provision.TabRow{
		{Ordinal: 1, Category: "CURRENT", Branch: "002", Measures: m("1000", "3.12")},
		{Ordinal: 1, Category: "CURRENT", Branch: "015", Measures: m("2000", "6.24")},
		{Ordinal: 1, Category: "CURRENT", Branch: provision.SubTotalLabel, Measures: m("3000", "9.36")},
		{Ordinal: 4, Category: ">=6 MTHS", Branch: "002", Measures: m("500", "500")},
		{Ordinal: 4, Category: ">=6 MTHS", Branch: provision.SubTotalLabel, Measures: m("500", "500")},
		{Ordinal: 99, Category: provision.GrandTotalLabel, Branch: provision.GrandTotalLabel, Measures: m("3500", "509.36")},
	}
}

// =============================================================================
// INTERFACE RECORD
// =============================================================================

func TestFormatRecord_Layout(t *testing.T) {
	line, err := FormatRecord(sampleProvision())
	require.NoError(t, err)

	require.Len(t, line, RecordWidth)
	assert.Equal(t, 53, RecordWidth)
	assert.Equal(t, "1234567   ", line[0:10])
	assert.Equal(t, "00012", line[10:15])
	assert.Equal(t, "00007", line[15:20])
	assert.Equal(t, "              533.16", line[20:40])
	assert.Equal(t, "AA1234567890 ", line[40:53])
}

func TestFormatRecord_ZeroCapAndBlankReference(t *testing.T) {
	p := sampleProvision()
	p.Cap = decimal.Zero
	p.ExternalRef = ""

	line, err := FormatRecord(p)
	require.NoError(t, err)
	assert.Equal(t, "                0.00", line[20:40])
	assert.Equal(t, strings.Repeat(" ", 13), line[40:])
}

func TestFormatRecord_OverflowIsDataAnomaly(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*provision.AccountProvision)
	}{
		{"missing account", func(p *provision.AccountProvision) { p.AccountNo = "" }},
		{"account too long", func(p *provision.AccountProvision) { p.AccountNo = "12345678901" }},
		{"note too large", func(p *provision.AccountProvision) { p.NoteNo = 100000 }},
		{"negative branch", func(p *provision.AccountProvision) { p.Branch = -1 }},
		{"reference too long", func(p *provision.AccountProvision) { p.ExternalRef = "ABCDEFGHIJKLMN" }},
		{"cap too wide", func(p *provision.AccountProvision) { p.Cap = dec("1234567890123456789.99") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sampleProvision()
			tt.mutate(&p)
			_, err := FormatRecord(p)
			assert.True(t, provision.IsDataAnomaly(err))
		})
	}
}

func TestWriteInterface_NothingWrittenOnError(t *testing.T) {
	good := sampleProvision()
	bad := sampleProvision()
	bad.AccountNo = "TOO-LONG-ACCOUNT"

	var buf bytes.Buffer
	n, err := WriteInterface(&buf, []provision.AccountProvision{good, bad})
	assert.True(t, provision.IsDataAnomaly(err))
	assert.Equal(t, 0, n)
	assert.Empty(t, buf.String())

	n, err = WriteInterface(&buf, []provision.AccountProvision{good, good})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2*(RecordWidth+1), buf.Len())
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

// =============================================================================
// TABLES
// =============================================================================

func TestWriteReportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReportCSV(&buf, sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "CATEGORY,BRANCH,BALANCE,OPEN_BALANCE,SUSPEND,WRBACK,WRIOFF_BAL,CAP,NET", lines[0])
	assert.Equal(t, "CURRENT,002,1000.00,0.00,3.12,0.00,0.00,3.12,3.12", lines[1])
	assert.Equal(t, "GRAND TOTAL,GRAND TOTAL,3500.00,0.00,509.36,0.00,0.00,509.36,509.36", lines[6])
}

func TestWriteProvisionsCSV_ReadsBackAsOpening(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProvisionsCSV(&buf, []provision.AccountProvision{sampleProvision()}))

	provs, err := feed.ReadProvisionsCSV("cap.csv", &buf)
	require.NoError(t, err)
	require.Len(t, provs, 1)
	assert.Equal(t, sampleProvision().Key(), provs[0].Key())
	assert.Equal(t, provision.OneToTwo, provs[0].Category)
	assert.Equal(t, "533.16", provs[0].Cap.String())
	assert.Equal(t, 700, provs[0].Product)
}

func TestWriteProvisionsParquet_ReadsBackAsOpening(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conventional-CAP0125.parquet")
	require.NoError(t, WriteProvisionsParquet(path, []provision.AccountProvision{sampleProvision()}))

	provs, err := feed.ReadProvisionsParquet(path)
	require.NoError(t, err)
	require.Len(t, provs, 1)
	assert.Equal(t, "5.331592", provs[0].CARate.String())
	assert.Equal(t, "AA1234567890", provs[0].ExternalRef)
}

func TestWriteWaterfallCSV(t *testing.T) {
	rows := []provision.ProvisionRow{{
		Category: provision.Current, SubCategory: provision.SubSuccessfulRepossession,
		Rate: dec("0.16"), RecoveryRate: dec("40"), Balance: dec("100000"),
		ObDefault: dec("160"), ExpectedRec: dec("64"), CapProvision: dec("96"),
	}}
	total := provision.ProvisionTotal{Balance: dec("100000"), ObDefault: dec("160"), ExpectedRec: dec("64")}

	var buf bytes.Buffer
	require.NoError(t, WriteWaterfallCSV(&buf, rows, total))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "CURRENT,SUCCESSFUL REPOSSESSION,0.16,40.00,100000.00,160.00,64.00,96.00", lines[1])
	assert.Equal(t, "TOTAL,,,,100000.00,160.00,64.00,", lines[2])
}

// =============================================================================
// XML / XLSX
// =============================================================================

func TestWriteReportXML(t *testing.T) {
	var buf bytes.Buffer
	meta := ReportMeta{Portfolio: "conventional", Period: provision.Period{Year: 2025, Month: 1}, ReportDate: "31/01/25", RunID: "r-1"}
	require.NoError(t, WriteReportXML(&buf, meta, sampleReport()))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))

	root := doc.SelectElement("CapCategoryReport")
	require.NotNil(t, root)
	assert.Equal(t, "2025-01", root.SelectAttrValue("period", ""))

	cats := root.SelectElements("Category")
	require.Len(t, cats, 2)
	assert.Equal(t, "CURRENT", cats[0].SelectAttrValue("label", ""))
	assert.Len(t, cats[0].SelectElements("Branch"), 2)
	assert.Equal(t, "9.36", cats[0].FindElement("SubTotal/Cap").Text())

	assert.Equal(t, "509.36", root.FindElement("GrandTotal/Cap").Text())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	wb := Workbook{
		Title:  "CONVENTIONAL HP 31/01/25",
		Report: sampleReport(),
		Waterfall: []provision.ProvisionRow{{
			Category: provision.Current, SubCategory: provision.SubContinuePaying,
			Rate: dec("99.48"), RecoveryRate: dec("100"), Balance: dec("1000"),
			ObDefault: dec("994.8"), ExpectedRec: dec("994.8"), CapProvision: decimal.Zero,
		}},
		Total: provision.ProvisionTotal{Balance: dec("1000"), ObDefault: dec("994.8"), ExpectedRec: dec("994.8")},
	}
	require.NoError(t, WriteXLSX(&buf, wb))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetReport, SheetWaterfall}, f.GetSheetList())
	title, err := f.GetCellValue(SheetReport, "A1")
	require.NoError(t, err)
	assert.Equal(t, wb.Title, title)

	label, err := f.GetCellValue(SheetReport, "B6")
	require.NoError(t, err)
	assert.Equal(t, provision.SubTotalLabel, label)

	sub, err := f.GetCellValue(SheetWaterfall, "B2")
	require.NoError(t, err)
	assert.Equal(t, provision.SubContinuePaying, sub)
}

// =============================================================================
// PUBLISH
// =============================================================================

func samplePeriodResult() *provision.PeriodResult {
	return &provision.PeriodResult{
		Run:    provision.Run{ID: "r-1", Portfolio: "conventional", Period: provision.Period{Year: 2025, Month: 1}},
		Report: sampleReport(),
		Cap:    provision.CapResult{Provisions: []provision.AccountProvision{sampleProvision()}},
	}
}

func TestPublish_AllFormats(t *testing.T) {
	dir := t.TempDir()
	rd := provision.NewReportDate(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))

	files, err := Publish(dir, Formats, samplePeriodResult(), rd)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
	}
	assert.Equal(t, []string{
		"conventional-CAPCATE0125.csv",
		"conventional-CAP0125.csv",
		"conventional-CAPCATE0125.xlsx",
		"conventional-CAPCATE0125.xml",
		"conventional-CAP0125.parquet",
		"conventional-FSAS50125.txt",
	}, names)

	// The provision table is the next period's opening feed
	provs, err := feed.ReadProvisionsParquet(filepath.Join(dir, "conventional-CAP0125.parquet"))
	require.NoError(t, err)
	assert.Len(t, provs, 1)

	iface, err := os.ReadFile(filepath.Join(dir, "conventional-FSAS50125.txt"))
	require.NoError(t, err)
	assert.Len(t, iface, RecordWidth+1)
}

func TestPublish_BadInterfaceRecordWritesNoInterfaceFile(t *testing.T) {
	dir := t.TempDir()
	rd := provision.NewReportDate(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	res := samplePeriodResult()
	res.Cap.Provisions[0].AccountNo = "TOO-LONG-ACCOUNT"

	_, err := Publish(dir, []string{FormatInterface}, res, rd)
	assert.True(t, provision.IsDataAnomaly(err))

	_, statErr := os.Stat(filepath.Join(dir, "conventional-FSAS50125.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
