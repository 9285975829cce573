/*
main.go - Application entry point

PURPOSE:
  The nplprov command: runs the monthly hire-purchase loan-loss provisioning
  batch, serves the API and reads back carried state.

COMMANDS:
  run      Run one period from the feed directory and publish its outputs
  serve    Start the HTTP API (and the monthly scheduler when enabled)
  rates    Show a period's category rates, or set RECRATE
  report   Print or export a period's CAP by category report
  token    Issue an operator bearer token for the API
  version  Print version information

CONFIGURATION:
  --config points at a YAML file (default ./npl.yaml, then
  $HOME/.config/npl/npl.yaml). NPL_* environment variables override the file,
  flags override both. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the root context is cancelled. serve stops accepting
  connections and waits up to 30s for active requests and a running
  scheduled job.

EXAMPLES:
  nplprov run --portfolio islamic --date 2025-03-31
  nplprov rates --portfolio islamic --period 2025-03
  nplprov rates set-recrate --effective 2025-01 --rate 38.5
  nplprov serve --addr :9090

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings and defaults
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/npl-provision/config"
	_ "github.com/warp/npl-provision/conventional"
	_ "github.com/warp/npl-provision/islamic"
	"github.com/warp/npl-provision/logging"
)

var (
	cfgFile string
	version = "dev"

	cfg    *config.Config
	logger *logrus.Logger

	rootCmd = &cobra.Command{
		Use:   "nplprov",
		Short: "Hire-purchase loan-loss provisioning engine",
		Long: `nplprov classifies the hire-purchase book by arrears, runs the provision
waterfall, caps every account at its category rate, reconciles against the
previous month and publishes the CAP by category report and the interface file.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./npl.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("db-driver", "sqlite", "database driver (sqlite, postgres, memory)")
	rootCmd.PersistentFlags().String("db", "./data/npl.db", "database path or DSN")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("db-driver"))
	_ = viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("db"))

	// Add commands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(ratesCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, FormatError(err.Error()))
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	c, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	l, err := logging.New(c.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	cfg, logger = c, l
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nplprov %s\n", version)
		},
	}
}
