package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/npl-provision/feed"
	"github.com/warp/npl-provision/provision"
)

var (
	primaryColor = lipgloss.Color("#5FAFD7")
	successColor = lipgloss.Color("#4ECDC4")
	warningColor = lipgloss.Color("#FFE66D")
	errorColor   = lipgloss.Color("#FF6B6B")
	subtleColor  = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	totalStyle  = lipgloss.NewStyle().Bold(true)
	subtleStyle = lipgloss.NewStyle().Foreground(subtleColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warningColor)
	okStyle     = lipgloss.NewStyle().Foreground(successColor)
	errStyle    = lipgloss.NewStyle().Foreground(errorColor)
)

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return errStyle.Render("✗ " + message)
}

func renderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.UnsetMargins().Render(title), "", content))
}

// =============================================================================
// PROGRESS
// =============================================================================

// stageProgress advances a progress bar as pipeline stages complete.
type stageProgress struct {
	bar *progressbar.ProgressBar
}

func newStageProgress(w io.Writer, description string) *stageProgress {
	return &stageProgress{bar: progressbar.NewOptions(len(provision.Stages),
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)}
}

func (p *stageProgress) StageDone(_ provision.RunID, stage string) {
	p.bar.Describe("[cyan]" + stage + "[reset]")
	_ = p.bar.Add(1)
}

func (p *stageProgress) RunFinished(_ provision.Run, _ *provision.PeriodResult, err error) {
	if err != nil {
		_ = p.bar.Exit()
		return
	}
	_ = p.bar.Finish()
}

// =============================================================================
// TABLES
// =============================================================================

// table lays out right-aligned numeric columns after a left-aligned label.
type table struct {
	header []string
	rows   [][]string
	bold   map[int]bool
}

func (t *table) add(bold bool, cells ...string) {
	if bold {
		if t.bold == nil {
			t.bold = make(map[int]bool)
		}
		t.bold[len(t.rows)] = true
	}
	t.rows = append(t.rows, cells)
}

func (t *table) String() string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = len(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}
	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if i == 0 {
				parts[i] = fmt.Sprintf("%-*s", widths[i], c)
			} else {
				parts[i] = fmt.Sprintf("%*s", widths[i], c)
			}
		}
		return strings.Join(parts, "  ")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(line(t.header)))
	for i, r := range t.rows {
		b.WriteString("\n")
		if t.bold[i] {
			b.WriteString(totalStyle.Render(line(r)))
		} else {
			b.WriteString(line(r))
		}
	}
	return b.String()
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// rateTable renders category rates.
func rateTable(rates []provision.CategoryRate) string {
	t := &table{header: []string{"CATEGORY", "BALANCE", "CAPROVISION", "CARATE"}}
	balance, capProv := decimal.Zero, decimal.Zero
	for _, r := range rates {
		label := r.Category.Label()
		if r.Overridden {
			label += " *"
		}
		t.add(false, label, money(r.Balance), money(r.CapProvision), r.CARate.StringFixed(6))
		balance = balance.Add(r.Balance)
		capProv = capProv.Add(r.CapProvision)
	}
	t.add(true, "TOTAL", money(balance), money(capProv), "")
	return t.String()
}

// reportTable renders the CAP by category tabulation.
func reportTable(rows []provision.TabRow) string {
	t := &table{header: []string{"CATEGORY", "BRANCH", "BALANCE", "OPEN_BALANCE", "SUSPEND", "WRBACK", "WRIOFF_BAL", "CAP", "NET"}}
	for _, r := range rows {
		t.add(r.IsSubTotal() || r.IsGrandTotal(), r.Category, r.Branch,
			money(r.Balance), money(r.OpenBalance), money(r.Suspend), money(r.WrBack),
			money(r.WriteOffBal), money(r.Cap), money(r.Net))
	}
	return t.String()
}

// runSummary renders the outcome of a run.
func runSummary(res *provision.PeriodResult, stats feed.Stats, files []string) string {
	run := res.Run
	var b strings.Builder

	fmt.Fprintf(&b, "Run        %s\n", subtleStyle.Render(string(run.ID)))
	fmt.Fprintf(&b, "Rule book  %s (%s rates)\n", res.Waterfall.RuleBook, run.RateBasis)
	fmt.Fprintf(&b, "Accounts   %d loans, %d kept, %d classified, %d excluded\n",
		stats.Loans, stats.Kept(), run.Classified, run.Excluded)
	fmt.Fprintf(&b, "RECRATE    %s   RATE_A %s   RATE_B %s   RATE_C %s\n\n",
		run.RecRate.String(), run.Rates.RateA.StringFixed(2), run.Rates.RateB.StringFixed(2), run.Rates.RateC.StringFixed(2))

	b.WriteString(rateTable(res.CapBasis.Rates))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Total CAP  %s\n", totalStyle.Render(money(run.TotalCap)))

	counts := res.Reconciliation.Counts()
	fmt.Fprintf(&b, "Movements  %d new, %d continuing, %d closed\n",
		counts[provision.StatusNew], counts[provision.StatusContinuing], counts[provision.StatusClosed])

	if n := len(res.Classification.Gaps) + len(res.Cap.Uncapped); n > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("⚠ %d accounts without a provision", n)))
		b.WriteString("\n")
	}
	for _, f := range files {
		b.WriteString(okStyle.Render("✓ " + f))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
