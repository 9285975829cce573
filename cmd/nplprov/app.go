package main

import (
	"fmt"

	"github.com/warp/npl-provision/api"
	"github.com/warp/npl-provision/config"
	"github.com/warp/npl-provision/feed"
	"github.com/warp/npl-provision/metrics"
	"github.com/warp/npl-provision/notify"
	"github.com/warp/npl-provision/provision"
	"github.com/warp/npl-provision/provision/store"
	"github.com/warp/npl-provision/store/postgres"
	"github.com/warp/npl-provision/store/sqlite"
)

// openStore opens the configured backend.
func openStore(db config.DatabaseConfig) (provision.FullStore, error) {
	switch db.Driver {
	case "sqlite":
		return sqlite.New(db.DSN)
	case "postgres":
		return postgres.New(db.DSN)
	case "memory":
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", db.Driver)
}

// app is everything a command needs to run periods.
type app struct {
	store   provision.FullStore
	runner  *provision.PeriodRunner
	handler *api.Handler
	metrics *metrics.Collector
}

// newApp wires the store, the runner and its observers, and the handler
// that loads feeds and publishes outputs. extra observers run first.
func newApp(c *config.Config, extra ...provision.Observer) (*app, error) {
	basis, err := provision.ParseRateBasis(c.Provisioning.RateBasis)
	if err != nil {
		return nil, err
	}
	feeds, err := feed.NewDir(c.Feeds.Dir, c.Feeds.Format, logger)
	if err != nil {
		return nil, err
	}
	defaultRate, err := c.RecoveryRate()
	if err != nil {
		return nil, err
	}
	st, err := openStore(c.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{store: st}
	a.runner = provision.NewPeriodRunner(st, st, logger)
	a.runner.RateBasis = basis
	a.runner.Classifier = provision.NewClassifier(c.Provisioning.NormalPaidCode)

	observers := provision.Observers(extra)
	if c.Metrics.Enabled {
		a.metrics = metrics.NewCollector()
		observers = append(observers, a.metrics)
	}
	if c.Notify.Enabled {
		observers = append(observers, notify.NewSender(c.Notify, logger))
	}
	if len(observers) > 0 {
		a.runner.Observer = observers
	}

	a.handler = api.NewHandler(st, a.runner, feeds, logger)
	a.handler.OutputDir = c.Output.Dir
	a.handler.OutputFormats = c.Output.Formats
	a.handler.DefaultRecRate = defaultRate
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
