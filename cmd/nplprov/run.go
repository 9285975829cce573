package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/npl-provision/api"
	"github.com/warp/npl-provision/provision"
)

func runCmd() *cobra.Command {
	var (
		portfolio     string
		reportDate    string
		period        string
		recoveryRate  string
		forceWriteOff bool
		noPublish     bool
		feedsDir      string
		outDir        string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one period from the feed directory",
		Long: `Run loads the period's extracts (HP snapshot, bureau arrears, RECRATE,
write-offs and the previous CAP table) from the feed directory, runs the
pipeline, saves the period and publishes the configured output formats.

The report date defaults to the last day of the previous month.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if feedsDir != "" {
				cfg.Feeds.Dir = feedsDir
			}
			if outDir != "" {
				cfg.Output.Dir = outDir
			}
			if portfolio == "" {
				portfolio = cfg.Provisioning.Portfolio
			}

			req := api.RunRequest{
				Portfolio:     portfolio,
				ReportDate:    reportDate,
				Period:        period,
				ForceWriteOff: forceWriteOff,
				Publish:       !noPublish,
			}
			if req.ReportDate == "" && req.Period == "" {
				req.Period = provision.PeriodOf(timeNow()).Previous().String()
			}
			if recoveryRate != "" {
				d, err := decimal.NewFromString(recoveryRate)
				if err != nil {
					return fmt.Errorf("--recovery-rate: %w", err)
				}
				req.RecoveryRate = &d
			}

			progress := newStageProgress(cmd.ErrOrStderr(), portfolio)
			a, err := newApp(cfg, progress)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.handler.RunPeriod(cmd.Context(), req, "cli")
			if err != nil && (out == nil || out.Result == nil) {
				return err
			}

			files := make([]string, len(out.Files))
			for i, f := range out.Files {
				files[i] = f.Path
			}
			title := fmt.Sprintf("%s %s", portfolio, out.Result.Run.Period)
			fmt.Fprintln(cmd.OutOrStdout(), renderBox(title, runSummary(out.Result, out.Batch.Stats, files)))
			return err
		},
	}

	cmd.Flags().StringVarP(&portfolio, "portfolio", "p", "", "portfolio to run (default: provisioning.portfolio)")
	cmd.Flags().StringVar(&reportDate, "date", "", "report date YYYY-MM-DD")
	cmd.Flags().StringVar(&period, "period", "", "period YYYY-MM (report date is its last day)")
	cmd.Flags().StringVar(&recoveryRate, "recovery-rate", "", "RECRATE for this run (default: feed file, provisioning.recovery_rate, then parameter table)")
	cmd.Flags().BoolVar(&forceWriteOff, "force-write-off", false, "apply write-offs outside quarter end")
	cmd.Flags().BoolVar(&noPublish, "no-publish", false, "save the period without writing output files")
	cmd.Flags().StringVar(&feedsDir, "feeds", "", "feed directory (default: feeds.dir)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: output.dir)")
	cmd.MarkFlagsMutuallyExclusive("date", "period")
	return cmd
}

var timeNow = time.Now
