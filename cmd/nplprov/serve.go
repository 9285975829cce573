package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/npl-provision/api"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serve exposes runs, rule books, RECRATE and period state over HTTP.
Mutating routes need a bearer token (see "nplprov token"). With
scheduler.enabled the configured portfolios also run every month.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := api.RouterOptions{
				CORSOrigins: cfg.Server.CORSOrigins,
				JWTSecret:   cfg.Auth.JWTSecret,
			}
			if a.metrics != nil {
				opts.Metrics = a.metrics.Handler()
			}
			if cfg.Auth.JWTSecret == "" {
				logger.Warn("auth.jwt_secret is empty: mutating routes will reject every request")
			}

			var sched *api.Scheduler
			if cfg.Scheduler.Enabled {
				sched, err = api.NewScheduler(a.handler, cfg.Scheduler.Spec, cfg.Scheduler.Portfolios, logger)
				if err != nil {
					return err
				}
				sched.Start()
			}

			server := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      api.NewRouter(a.handler, opts),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 5 * time.Minute, // POST /api/runs runs a whole period
				IdleTimeout:  60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				logger.WithField("addr", cfg.Server.Addr).Info("server starting")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return err
				}
			case <-cmd.Context().Done():
			}

			logger.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if sched != nil {
				sched.Stop()
			}
			if err := server.Shutdown(ctx); err != nil {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	cmd.Flags().Bool("schedule", false, "run the monthly scheduler")
	_ = viper.BindPFlag("scheduler.enabled", cmd.Flags().Lookup("schedule"))
	return cmd
}
