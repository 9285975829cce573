/*
pipeline.go - Period runner

PURPOSE:
  Orchestrates one reporting period end to end:

    classify → waterfall → category rates → cap → reconcile → tabulate → persist

  Each stage consumes the complete output of the previous one. Any error
  aborts the period; SavePeriod is only reached when every stage succeeded,
  so a failed run leaves the carried state of every period untouched.

CARRIED STATE:
  The runner reads two things from earlier periods, both as explicit values:
    - the prior period's AccountProvisions (this period's OPEN_BALANCE)
    - with RateBasisPrior, the prior period's CategoryRateSnapshot
  With RateBasisCurrent (default) the Cap Engine uses the snapshot freshly
  computed from this period's waterfall.

SEE ALSO:
  - store.go: Store, ParameterStore
  - api/handlers.go, cmd/nplprov: Callers
*/
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RateBasis selects which category-rate snapshot sizes this period's CAP.
type RateBasis string

const (
	RateBasisCurrent RateBasis = "current"
	RateBasisPrior   RateBasis = "prior"
)

// ParseRateBasis validates a configured rate basis. Empty selects current.
func ParseRateBasis(s string) (RateBasis, error) {
	switch RateBasis(s) {
	case "", RateBasisCurrent:
		return RateBasisCurrent, nil
	case RateBasisPrior:
		return RateBasisPrior, nil
	}
	return "", fmt.Errorf("unknown rate basis %q (want current or prior)", s)
}

// Stage names reported to observers.
const (
	StageClassify  = "classify"
	StageWaterfall = "waterfall"
	StageRates     = "category_rates"
	StageCap       = "cap"
	StageReconcile = "reconcile"
	StageTabulate  = "tabulate"
	StagePersist   = "persist"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageClassify, StageWaterfall, StageRates, StageCap, StageReconcile, StageTabulate, StagePersist}

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// PeriodInput is everything a run needs besides carried state.
type PeriodInput struct {
	Portfolio     string
	Period        Period
	Accounts      []LoanAccount
	RecRate       *decimal.Decimal // nil reads the ParameterStore
	WriteOffs     []WriteOff
	ForceWriteOff bool // apply write-offs outside quarter end
	Trigger       string

	// Opening seeds OPEN_BALANCE. Nil loads the prior period from the store.
	Opening []AccountProvision
}

// PeriodResult is the complete output of one run.
type PeriodResult struct {
	Run            Run
	Classification Classification
	Waterfall      *WaterfallResult
	Snapshot       CategoryRateSnapshot // this period's rates
	CapBasis       CategoryRateSnapshot // rates actually applied
	Cap            CapResult
	Reconciliation *ReconcileResult
	Report         []TabRow
}

// =============================================================================
// OBSERVER
// =============================================================================

// Observer is notified as a run progresses.
type Observer interface {
	StageDone(run RunID, stage string)
	RunFinished(run Run, res *PeriodResult, err error)
}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) StageDone(run RunID, stage string) {
	for _, x := range o {
		x.StageDone(run, stage)
	}
}

func (o Observers) RunFinished(run Run, res *PeriodResult, err error) {
	for _, x := range o {
		x.RunFinished(run, res, err)
	}
}

// PortfolioResolver returns the portfolio, with its effective rule book.
type PortfolioResolver interface {
	Resolve(ctx context.Context, name string) (Portfolio, error)
}

// RegistryResolver resolves portfolios from the global registry.
type RegistryResolver struct{}

func (RegistryResolver) Resolve(_ context.Context, name string) (Portfolio, error) {
	return LookupPortfolio(name)
}

// =============================================================================
// PERIOD RUNNER
// =============================================================================

// PeriodRunner runs periods against a store.
type PeriodRunner struct {
	Store      Store
	Params     ParameterStore
	Portfolios PortfolioResolver
	Classifier *Classifier
	RateBasis  RateBasis
	Observer   Observer
	Log        logrus.FieldLogger
	Now        func() time.Time
}

// NewPeriodRunner returns a runner with registry portfolios, the default
// classifier and the current rate basis.
func NewPeriodRunner(store Store, params ParameterStore, log logrus.FieldLogger) *PeriodRunner {
	return &PeriodRunner{
		Store:      store,
		Params:     params,
		Portfolios: RegistryResolver{},
		Classifier: NewClassifier(DefaultNormalPaidCode),
		RateBasis:  RateBasisCurrent,
		Log:        log,
		Now:        time.Now,
	}
}

func (r *PeriodRunner) stage(id RunID, name string) {
	if r.Observer != nil {
		r.Observer.StageDone(id, name)
	}
}

// Run executes one period. The run record is saved whether or not the
// period succeeds; period state only on success.
func (r *PeriodRunner) Run(ctx context.Context, in PeriodInput) (*PeriodResult, error) {
	if in.Period.IsZero() {
		return nil, fmt.Errorf("%w: period is required", ErrInvalidPeriod)
	}
	run := Run{
		ID:        RunID(uuid.NewString()),
		Portfolio: in.Portfolio,
		Period:    in.Period,
		Status:    RunRunning,
		Trigger:   in.Trigger,
		RateBasis: r.RateBasis,
		Accounts:  len(in.Accounts),
		StartedAt: r.Now().UTC(),
	}
	log := r.Log.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"portfolio": in.Portfolio,
		"period":    in.Period.String(),
	})
	if err := r.Store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	res, err := r.execute(ctx, in, &run, log)
	run.FinishedAt = r.Now().UTC()
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		log.WithError(err).Error("period run failed")
	} else {
		run.Status = RunSucceeded
		log.WithFields(logrus.Fields{
			"classified": run.Classified,
			"excluded":   run.Excluded,
			"total_cap":  run.TotalCap.StringFixed(2),
		}).Info("period run succeeded")
	}
	if serr := r.Store.SaveRun(ctx, run); serr != nil && err == nil {
		err = fmt.Errorf("save run: %w", serr)
	}
	if res != nil {
		res.Run = run
	}
	if r.Observer != nil {
		r.Observer.RunFinished(run, res, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *PeriodRunner) execute(ctx context.Context, in PeriodInput, run *Run, log logrus.FieldLogger) (*PeriodResult, error) {
	portfolio, err := r.Portfolios.Resolve(ctx, in.Portfolio)
	if err != nil {
		return nil, err
	}

	recRate, err := r.recRate(ctx, in)
	if err != nil {
		return nil, err
	}
	run.RecRate = recRate

	// Classify
	cl := r.Classifier.ClassifyAll(in.Accounts)
	run.Excluded = len(cl.Gaps)
	run.Classified = len(in.Accounts) - len(cl.Gaps)
	for _, g := range cl.Gaps {
		log.WithFields(logrus.Fields{"account": g.Key.String(), "reason": g.Reason}).Debug("account excluded")
	}
	if len(cl.Gaps) > 0 {
		log.WithField("excluded", len(cl.Gaps)).Warn("accounts matched no classification rule")
	}
	r.stage(run.ID, StageClassify)

	// Waterfall
	balances := BucketBalances(cl)
	wf, err := RunWaterfall(portfolio.RuleBook, recRate, balances)
	if err != nil {
		return nil, err
	}
	run.Rates = wf.Rates
	log.WithFields(logrus.Fields{
		"rate_a": wf.Rates.RateA.StringFixed(2),
		"rate_b": wf.Rates.RateB.StringFixed(2),
		"rate_c": wf.Rates.RateC.StringFixed(2),
	}).Info("derived rates")
	r.stage(run.ID, StageWaterfall)

	// Category rates
	snap := CategoryRateSnapshot{
		Portfolio: in.Portfolio,
		Period:    in.Period,
		TakenAt:   run.StartedAt,
		Rates:     ComputeCategoryRates(wf, balances),
	}
	basis := snap
	if r.RateBasis == RateBasisPrior {
		prior, err := r.Store.LatestSnapshot(ctx, in.Portfolio, in.Period.Previous())
		if err != nil {
			if errors.Is(err, ErrSnapshotNotFound) {
				return nil, anomaly("cap", "no category rates for prior period %s", in.Period.Previous())
			}
			return nil, err
		}
		basis = *prior
	}
	r.stage(run.ID, StageRates)

	// Cap
	capRes := ApplyCap(basis, cl)
	run.Uncapped = len(capRes.Uncapped)
	run.TotalCap = capRes.Total()
	for _, g := range capRes.Uncapped {
		log.WithFields(logrus.Fields{"account": g.Key.String(), "reason": g.Reason}).Warn("account not capped")
	}
	r.stage(run.ID, StageCap)

	// Reconcile
	prior := in.Opening
	if prior == nil {
		prior, err = r.Store.LoadProvisions(ctx, in.Portfolio, in.Period.Previous())
		if err != nil {
			return nil, fmt.Errorf("load opening balances: %w", err)
		}
	}
	if len(prior) == 0 {
		log.Warn("no opening balances for prior period, every account is new")
	}
	applyWO := in.Period.IsQuarterEnd() || in.ForceWriteOff
	if len(in.WriteOffs) > 0 && !applyWO {
		log.WithField("write_offs", len(in.WriteOffs)).Info("write-offs ignored outside quarter end")
	}
	opening, err := NewOpeningBalances(prior)
	if err != nil {
		return nil, err
	}
	rec, err := Reconcile(opening, capRes.Provisions, in.WriteOffs, applyWO)
	if err != nil {
		return nil, err
	}
	if len(rec.UnmatchedWriteOffs) > 0 {
		log.WithField("unmatched", len(rec.UnmatchedWriteOffs)).Warn("write-offs for accounts in neither period")
	}
	r.stage(run.ID, StageReconcile)

	res := &PeriodResult{
		Classification: cl,
		Waterfall:      wf,
		Snapshot:       snap,
		CapBasis:       basis,
		Cap:            capRes,
		Reconciliation: rec,
		Report:         Tabulate(rec.Movements),
	}
	r.stage(run.ID, StageTabulate)

	res.Run = *run
	if err := r.Store.SavePeriod(ctx, res); err != nil {
		return nil, fmt.Errorf("save period: %w", err)
	}
	r.stage(run.ID, StagePersist)
	return res, nil
}

func (r *PeriodRunner) recRate(ctx context.Context, in PeriodInput) (decimal.Decimal, error) {
	if in.RecRate != nil {
		return *in.RecRate, nil
	}
	if r.Params == nil {
		return decimal.Zero, fmt.Errorf("%w: RECRATE", ErrParameterNotFound)
	}
	return r.Params.RecRate(ctx, in.Period)
}
