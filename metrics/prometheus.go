// Package metrics exposes pipeline runs to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/npl-provision/provision"
)

// Collector records runs on its own registry. It implements
// provision.Observer.
type Collector struct {
	registry           *prometheus.Registry
	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	stages             *prometheus.CounterVec
	accountsClassified *prometheus.CounterVec
	accountsExcluded   *prometheus.CounterVec
	accountsUncapped   *prometheus.GaugeVec
	derivedRate        *prometheus.GaugeVec
	totalCap           *prometheus.GaugeVec
	mu                 sync.Mutex
}

var _ provision.Observer = (*Collector)(nil)

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	f := promauto.With(registry)

	return &Collector{
		registry: registry,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "npl_runs_total",
			Help: "Pipeline runs by portfolio and final status",
		}, []string{"portfolio", "status"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "npl_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: prometheus.DefBuckets,
		}, []string{"portfolio"}),
		stages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "npl_stages_completed_total",
			Help: "Pipeline stages completed",
		}, []string{"stage"}),
		accountsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "npl_accounts_classified_total",
			Help: "Accounts placed in a category",
		}, []string{"portfolio", "category"}),
		accountsExcluded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "npl_accounts_excluded_total",
			Help: "Accounts no classification rule matched",
		}, []string{"portfolio"}),
		accountsUncapped: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "npl_accounts_uncapped",
			Help: "Accounts left without CAP in the last successful run",
		}, []string{"portfolio"}),
		derivedRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "npl_derived_rate_percent",
			Help: "RATE_A, RATE_B and RATE_C of the last successful run",
		}, []string{"portfolio", "rate"}),
		totalCap: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "npl_total_cap",
			Help: "Total CAP of the last successful run",
		}, []string{"portfolio"}),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StageDone(_ provision.RunID, stage string) {
	c.stages.WithLabelValues(stage).Inc()
}

// RunFinished records the run outcome. Classification counts and rates are
// only recorded for successful runs.
func (c *Collector) RunFinished(run provision.Run, res *provision.PeriodResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runs.WithLabelValues(run.Portfolio, string(run.Status)).Inc()
	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		c.runDuration.WithLabelValues(run.Portfolio).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
	if err != nil || res == nil {
		return
	}

	for _, cat := range provision.Categories {
		if n := res.Classification.Count(cat); n > 0 {
			c.accountsClassified.WithLabelValues(run.Portfolio, cat.Label()).Add(float64(n))
		}
	}
	c.accountsExcluded.WithLabelValues(run.Portfolio).Add(float64(len(res.Classification.Gaps)))
	c.accountsUncapped.WithLabelValues(run.Portfolio).Set(float64(len(res.Cap.Uncapped)))

	rates := res.Waterfall.Rates
	c.derivedRate.WithLabelValues(run.Portfolio, string(provision.RateA)).Set(rates.RateA.InexactFloat64())
	c.derivedRate.WithLabelValues(run.Portfolio, string(provision.RateB)).Set(rates.RateB.InexactFloat64())
	c.derivedRate.WithLabelValues(run.Portfolio, string(provision.RateC)).Set(rates.RateC.InexactFloat64())
	c.totalCap.WithLabelValues(run.Portfolio).Set(res.Cap.Total().InexactFloat64())
}

