package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/npl-provision/provision"
)

func ratesCmd() *cobra.Command {
	var portfolio, period string

	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Show a period's category rates",
		Long: `Rates prints the latest category-rate snapshot of a period: the CARATE
each category's accounts were capped at in that month. Rates marked * were
overridden to a full provision.`,
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

			snap, err := st.LatestSnapshot(cmd.Context(), portfolio, p)
			if err != nil {
				return err
			}
			title := fmt.Sprintf("%s %s category rates (v%d)", portfolio, p, snap.Version)
			fmt.Fprintln(cmd.OutOrStdout(), renderBox(title, rateTable(snap.Rates)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&portfolio, "portfolio", "p", "", "portfolio (default: provisioning.portfolio)")
	cmd.Flags().StringVar(&period, "period", "", "period YYYY-MM (default: previous month)")

	cmd.AddCommand(recRateCmd())
	cmd.AddCommand(setRecRateCmd())
	return cmd
}

func recRateCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "recrate",
		Short: "Show RECRATE effective for a period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := periodFlag(period)
			if err != nil {
				return err
			}
			st, err := openStore(cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			rate, err := st.RecRate(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "RECRATE %s: %s\n", p, rate.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "period YYYY-MM (default: previous month)")
	return cmd
}

func setRecRateCmd() *cobra.Command {
	var effective, rate string
	cmd := &cobra.Command{
		Use:   "set-recrate",
		Short: "Record RECRATE from an effective period onwards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := provision.ParsePeriod(effective)
			if err != nil {
				return err
			}
			d, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("--rate: %w", err)
			}
			if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
				return fmt.Errorf("--rate: %s is not a percentage", d)
			}

			st, err := openStore(cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetRecRate(cmd.Context(), p, d); err != nil {
				return err
			}
			logger.WithField("effective", p.String()).WithField("rate", d.String()).Info("RECRATE updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&effective, "effective", "", "first period YYYY-MM the rate applies to")
	cmd.Flags().StringVar(&rate, "rate", "", "recovery rate percentage")
	_ = cmd.MarkFlagRequired("effective")
	_ = cmd.MarkFlagRequired("rate")
	return cmd
}

// periodFlag parses --period, defaulting to the previous month.
func periodFlag(s string) (provision.Period, error) {
	if s == "" {
		return provision.PeriodOf(timeNow()).Previous(), nil
	}
	return provision.ParsePeriod(s)
}
