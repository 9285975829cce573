package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/npl-provision/export"
	"github.com/warp/npl-provision/provision"
)

func reportCmd() *cobra.Command {
	var portfolio, period, format, outDir string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print or export a period's CAP by category report",
		Long: `Report tabulates a saved period by category and branch. Without --format
the table is printed; with csv, xlsx, xml or interface the file is written
to --out under its published name.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := periodFlag(period)
			if err != nil {
				return err
			}
			if portfolio == "" {
				portfolio = cfg.Provisioning.Portfolio
			}
			st, err := openStore(cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if _, err := st.LatestSnapshot(ctx, portfolio, p); err != nil {
				return err
			}
			moves, err := st.LoadMovements(ctx, portfolio, p)
			if err != nil {
				return err
			}
			report := provision.Tabulate(moves)
			rd := provision.NewReportDate(p.End())

			if format == "" {
				title := fmt.Sprintf("%s HP - CAP BY CATEGORY %s", strings.ToUpper(portfolio), rd.Display())
				fmt.Fprintln(cmd.OutOrStdout(), renderBox(title, reportTable(report)))
				return nil
			}

			base, _, _, ifaceName := export.FileNames(portfolio, rd)
			var (
				buf  bytes.Buffer
				name = base + "." + format
			)
			switch format {
			case export.FormatCSV:
				err = export.WriteReportCSV(&buf, report)
			case export.FormatXML:
				err = export.WriteReportXML(&buf, export.ReportMeta{Portfolio: portfolio, Period: p, ReportDate: rd.Display()}, report)
			case export.FormatXLSX:
				wb := export.Workbook{Title: fmt.Sprintf("%s HP - CAP BY CATEGORY %s", strings.ToUpper(portfolio), rd.Display()), Report: report}
				if wb.Waterfall, err = st.LoadWaterfall(ctx, portfolio, p); err == nil {
					wb.Total = provision.TotalRows(wb.Waterfall)
					err = export.WriteXLSX(&buf, wb)
				}
			case export.FormatInterface:
				name = ifaceName
				var provs []provision.AccountProvision
				if provs, err = st.LoadProvisions(ctx, portfolio, p); err == nil {
					_, err = export.WriteInterface(&buf, provs)
				}
			default:
				return fmt.Errorf("--format: unknown format %q (want csv, xlsx, xml or interface)", format)
			}
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = cfg.Output.Dir
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(outDir, name)
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ "+path))
			return nil
		},
	}
	cmd.Flags().StringVarP(&portfolio, "portfolio", "p", "", "portfolio (default: provisioning.portfolio)")
	cmd.Flags().StringVar(&period, "period", "", "period YYYY-MM (default: previous month)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "write csv, xlsx, xml or interface instead of printing")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: output.dir)")
	return cmd
}
