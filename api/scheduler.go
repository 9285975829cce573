/*
scheduler.go - Monthly provisioning scheduler

PURPOSE:
  Runs the configured portfolios once a month for the month that just
  closed, the way the batch used to be kicked off after month end.

DESIGN:
  - robfig/cron drives the timing from a standard 5-field spec
    (default "0 6 1 * *": 06:00 on the 1st)
  - Each firing runs every configured portfolio for the previous month,
    reading feeds from the handler's feed directory and publishing outputs
  - A failing portfolio is logged and does not stop the others
  - Runs go through Handler.RunPeriod, so they queue behind API runs

USAGE:
  s, err := NewScheduler(handler, "0 6 1 * *", []string{"islamic"}, log)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: RunPeriod
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/npl-provision/provision"
)

// Scheduler runs portfolios on a cron schedule.
type Scheduler struct {
	Handler    *Handler
	Portfolios []string
	Log        logrus.FieldLogger
	Now        func() time.Time

	cron    *cron.Cron
	entry   cron.EntryID
	mu      sync.Mutex
	started bool
}

// NewScheduler validates spec and registers the monthly job.
func NewScheduler(h *Handler, spec string, portfolios []string, log logrus.FieldLogger) (*Scheduler, error) {
	if len(portfolios) == 0 {
		return nil, fmt.Errorf("scheduler: no portfolios configured")
	}
	for _, name := range portfolios {
		if _, err := provision.LookupPortfolio(name); err != nil {
			return nil, fmt.Errorf("scheduler: %w", err)
		}
	}

	s := &Scheduler{
		Handler:    h,
		Portfolios: portfolios,
		Log:        log.WithField("component", "scheduler"),
		Now:        time.Now,
		cron:       cron.New(cron.WithLogger(cron.PrintfLogger(log))),
	}
	id, err := s.cron.AddFunc(spec, func() { s.RunNow(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	s.Log.WithField("next", s.Next()).Info("scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.started = false
	s.Log.Info("scheduler stopped")
}

// Next returns when the job fires next. Zero until started.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Period is the month a firing at now provisions: the previous one.
func (s *Scheduler) Period() provision.Period {
	return provision.PeriodOf(s.Now()).Previous()
}

// RunNow runs every configured portfolio for the previous month and returns
// the number that succeeded.
func (s *Scheduler) RunNow(ctx context.Context) int {
	period := s.Period()
	ok := 0
	for _, name := range s.Portfolios {
		log := s.Log.WithFields(logrus.Fields{"portfolio": name, "period": period.String()})
		out, err := s.Handler.RunPeriod(ctx, RunRequest{
			Portfolio: name,
			Period:    period.String(),
			Publish:   true,
		}, "schedule")
		if err != nil {
			log.WithError(err).Error("scheduled run failed")
			continue
		}
		ok++
		log.WithFields(logrus.Fields{
			"run_id":    out.Result.Run.ID,
			"total_cap": out.Result.Run.TotalCap.StringFixed(2),
			"files":     len(out.Files),
		}).Info("scheduled run completed")
	}
	return ok
}
