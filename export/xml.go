package export

import (
	"io"
	"strconv"

	"github.com/beevik/etree"

	"github.com/warp/npl-provision/provision"
)

// ReportMeta identifies the XML submission.
type ReportMeta struct {
	Portfolio  string
	Period     provision.Period
	ReportDate string // DD/MM/YY
	RunID      provision.RunID
}

// WriteReportXML writes the tabulated report as an XML submission pack:
//
//	<CapCategoryReport portfolio=".." period="YYYY-MM" reportDate=".." run="..">
//	  <Category ordinal="1" label="CURRENT">
//	    <Branch code="002"> <Balance>..</Balance> ... </Branch>
//	    <SubTotal> ... </SubTotal>
//	  </Category>
//	  <GrandTotal> ... </GrandTotal>
//	</CapCategoryReport>
func WriteReportXML(w io.Writer, meta ReportMeta, rows []provision.TabRow) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("CapCategoryReport")
	root.CreateAttr("portfolio", meta.Portfolio)
	root.CreateAttr("period", meta.Period.String())
	if meta.ReportDate != "" {
		root.CreateAttr("reportDate", meta.ReportDate)
	}
	if meta.RunID != "" {
		root.CreateAttr("run", string(meta.RunID))
	}

	var cat *etree.Element
	for _, r := range rows {
		switch {
		case r.IsGrandTotal():
			writeMeasures(root.CreateElement("GrandTotal"), r.Measures)
			continue
		case cat == nil || cat.SelectAttrValue("label", "") != r.Category:
			cat = root.CreateElement("Category")
			cat.CreateAttr("ordinal", strconv.Itoa(r.Ordinal))
			cat.CreateAttr("label", r.Category)
		}
		if r.IsSubTotal() {
			writeMeasures(cat.CreateElement("SubTotal"), r.Measures)
			continue
		}
		br := cat.CreateElement("Branch")
		br.CreateAttr("code", r.Branch)
		writeMeasures(br, r.Measures)
	}

	doc.Indent(2)
	_, err := doc.WriteTo(w)
	return err
}

func writeMeasures(el *etree.Element, m provision.Measures) {
	el.CreateElement("Balance").SetText(money(m.Balance))
	el.CreateElement("OpenBalance").SetText(money(m.OpenBalance))
	el.CreateElement("Suspend").SetText(money(m.Suspend))
	el.CreateElement("WriteBack").SetText(money(m.WrBack))
	el.CreateElement("WriteOffBalance").SetText(money(m.WriteOffBal))
	el.CreateElement("Cap").SetText(money(m.Cap))
	el.CreateElement("Net").SetText(money(m.Net))
}
