/*
handlers.go - HTTP API handlers for the provisioning engine

PURPOSE:
  Exposes period runs and their carried state via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the pipeline.

ENDPOINTS:
  Runs:
    POST   /api/runs                         Run a period from the feed directory
    GET    /api/runs                         List runs (?portfolio=&period=&status=&limit=)
    GET    /api/runs/{id}                    Get one run

  Portfolios:
    GET    /api/portfolios                   List registered portfolios
    GET    /api/portfolios/{name}/rulebook   Effective rule book
    PUT    /api/portfolios/{name}/rulebook   Store a rule book override

  Period state:
    GET    /api/portfolios/{name}/periods/{period}/rates
    GET    /api/portfolios/{name}/periods/{period}/provisions
    GET    /api/portfolios/{name}/periods/{period}/report?format=json|csv|xlsx|xml
    GET    /api/portfolios/{name}/periods/{period}/interface

  Parameters:
    GET    /api/parameters/recrate?period=YYYY-MM
    PUT    /api/parameters/recrate

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Runs and period state
  - Runner: The period pipeline
  - Resolver: Registered portfolios with stored rule book overrides
  - Feeds: Where run requests read their extracts

  Runs are serialized: one period at a time, matching the batch it replaces.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, invalid period or rule book
  - 401: Missing or invalid token on a mutating route
  - 404: Unknown portfolio, run, period or parameter
  - 409: Conflicting write
  - 422: Data anomaly, the period was not published
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer token middleware
  - scheduler.go: Monthly runs
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/npl-provision/export"
	"github.com/warp/npl-provision/factory"
	"github.com/warp/npl-provision/feed"
	"github.com/warp/npl-provision/provision"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    provision.FullStore
	Runner   *provision.PeriodRunner
	Resolver *factory.StoreResolver
	Feeds    *feed.Dir
	Log      logrus.FieldLogger

	// Publish settings for runs that ask for it
	OutputDir     string
	OutputFormats []string

	// DefaultRecRate applies when neither the request nor the feed has one.
	DefaultRecRate *decimal.Decimal

	runMu sync.Mutex
}

// NewHandler creates a handler and points the runner at the store-backed
// portfolio resolver, so rule book overrides apply to every run.
func NewHandler(store provision.FullStore, runner *provision.PeriodRunner, feeds *feed.Dir, log logrus.FieldLogger) *Handler {
	h := &Handler{
		Store:    store,
		Runner:   runner,
		Resolver: factory.NewStoreResolver(store),
		Feeds:    feeds,
		Log:      log,
	}
	runner.Portfolios = h.Resolver
	return h
}

// =============================================================================
// RUN EXECUTION
// =============================================================================

// RunOutcome is the result of RunPeriod.
type RunOutcome struct {
	Result *provision.PeriodResult
	Batch  *feed.Batch
	Files  []export.Published
}

// RunPeriod loads the feeds of one report date and runs the period. Runs
// never overlap.
func (h *Handler) RunPeriod(ctx context.Context, req RunRequest, trigger string) (*RunOutcome, error) {
	rd, err := reportDate(req)
	if err != nil {
		return nil, err
	}
	if h.Feeds == nil {
		return nil, errors.New("no feed directory configured")
	}
	portfolio, err := h.Resolver.Resolve(ctx, req.Portfolio)
	if err != nil {
		return nil, err
	}

	h.runMu.Lock()
	defer h.runMu.Unlock()

	batch, err := h.Feeds.Load(ctx, portfolio, rd)
	if err != nil {
		return nil, err
	}
	in := batch.Input(portfolio.Name, rd.Period())
	in.Trigger = trigger
	in.ForceWriteOff = req.ForceWriteOff
	switch {
	case req.RecoveryRate != nil:
		in.RecRate = req.RecoveryRate
	case in.RecRate == nil:
		in.RecRate = h.DefaultRecRate
	}

	res, err := h.Runner.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	out := &RunOutcome{Result: res, Batch: batch}

	if req.Publish && h.OutputDir != "" {
		out.Files, err = export.Publish(h.OutputDir, h.OutputFormats, res, rd)
		if err != nil {
			return out, fmt.Errorf("publish: %w", err)
		}
	}
	return out, nil
}

func reportDate(req RunRequest) (provision.ReportDate, error) {
	switch {
	case req.ReportDate != "":
		d, err := time.Parse("2006-01-02", req.ReportDate)
		if err != nil {
			return provision.ReportDate{}, fmt.Errorf("%w: report_date %q is not YYYY-MM-DD", provision.ErrInvalidPeriod, req.ReportDate)
		}
		return provision.NewReportDate(d), nil
	case req.Period != "":
		p, err := provision.ParsePeriod(req.Period)
		if err != nil {
			return provision.ReportDate{}, err
		}
		return provision.NewReportDate(p.End()), nil
	}
	return provision.ReportDate{}, fmt.Errorf("%w: report_date or period is required", provision.ErrInvalidPeriod)
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// CreateRun runs a period and returns its summary.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.Portfolio == "" {
		writeError(w, http.StatusBadRequest, "portfolio is required", nil)
		return
	}

	trigger := "api"
	if sub := Subject(r.Context()); sub != "" {
		trigger = "api:" + sub
	}
	out, err := h.RunPeriod(r.Context(), req, trigger)
	if err != nil && (out == nil || out.Result == nil) {
		writeDomainError(w, "Run failed", err)
		return
	}

	res := out.Result
	dto := RunResultDTO{
		Run:   toRunDTO(res.Run),
		Files: publishedPaths(out.Files),
		Gaps:  toGapDTOs(append(append([]provision.ClassificationGap(nil), res.Classification.Gaps...), res.Cap.Uncapped...)),
		Rates: toCategoryDTOs(res.CapBasis.Rates),
		Feed: FeedStatsDTO{
			Files:            out.Batch.Files,
			Loans:            out.Batch.Stats.Loans,
			Kept:             out.Batch.Stats.Kept(),
			NonPositive:      out.Batch.Stats.NonPositive,
			OtherProduct:     out.Batch.Stats.OtherProduct,
			DuplicateArrears: out.Batch.Stats.DuplicateArrears,
			NoArrears:        out.Batch.Stats.NoArrears,
		},
	}
	if err != nil {
		// the period is saved; only publishing failed
		h.Log.WithError(err).WithField("run_id", res.Run.ID).Error("publish failed")
		writeJSON(w, http.StatusMultiStatus, dto)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// ListRuns returns runs newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := provision.RunFilter{
		Portfolio: q.Get("portfolio"),
		Status:    provision.RunStatus(q.Get("status")),
	}
	if s := q.Get("period"); s != "" {
		p, err := provision.ParsePeriod(s)
		if err != nil {
			writeDomainError(w, "Invalid period", err)
			return
		}
		filter.Period = p
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns one run.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), provision.RunID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Run not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// =============================================================================
// PORTFOLIO HANDLERS
// =============================================================================

// ListPortfolios returns every registered portfolio with its effective rule book.
func (h *Handler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	registered := provision.ListPortfolios()
	dtos := make([]PortfolioDTO, 0, len(registered))
	for _, p := range registered {
		eff, err := h.Resolver.Resolve(r.Context(), p.Name)
		if err != nil {
			writeDomainError(w, "Failed to resolve portfolio", err)
			return
		}
		dtos = append(dtos, PortfolioDTO{
			Name:        eff.Name,
			Description: eff.Description,
			Products:    eff.Products,
			Facilities:  eff.Facilities,
			RuleBook:    eff.RuleBook.Name,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRuleBook returns the portfolio's effective rule book.
func (h *Handler) GetRuleBook(w http.ResponseWriter, r *http.Request) {
	p, err := h.Resolver.Resolve(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, "Portfolio not found", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Resolver.Factory.ToJSON(p.RuleBook))
}

// PutRuleBook validates and stores a rule book override.
func (h *Handler) PutRuleBook(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	name := chi.URLParam(r, "name")
	book, err := h.Resolver.SaveOverride(r.Context(), name, buf.Bytes())
	if err != nil {
		writeDomainError(w, "Invalid rule book", err)
		return
	}
	h.Log.WithFields(logrus.Fields{"portfolio": name, "rule_book": book.Name, "by": Subject(r.Context())}).
		Info("rule book override stored")
	writeJSON(w, http.StatusOK, h.Resolver.Factory.ToJSON(book))
}

// =============================================================================
// PERIOD STATE HANDLERS
// =============================================================================

// periodParams reads {name} and {period} and checks the period was run.
func (h *Handler) periodParams(w http.ResponseWriter, r *http.Request) (string, provision.Period, *provision.CategoryRateSnapshot, bool) {
	name := chi.URLParam(r, "name")
	if _, err := provision.LookupPortfolio(name); err != nil {
		writeDomainError(w, "Portfolio not found", err)
		return "", provision.Period{}, nil, false
	}
	period, err := provision.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return "", provision.Period{}, nil, false
	}
	snap, err := h.Store.LatestSnapshot(r.Context(), name, period)
	if err != nil {
		writeDomainError(w, "Period not provisioned", err)
		return "", provision.Period{}, nil, false
	}
	return name, period, snap, true
}

// GetRates returns the period's latest category-rate snapshot.
func (h *Handler) GetRates(w http.ResponseWriter, r *http.Request) {
	_, _, snap, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SnapshotDTO{
		Portfolio: snap.Portfolio,
		Period:    snap.Period.String(),
		Version:   snap.Version,
		TakenAt:   snap.TakenAt,
		Rates:     toCategoryDTOs(snap.Rates),
	})
}

// GetProvisions returns the period's per-account provisions.
func (h *Handler) GetProvisions(w http.ResponseWriter, r *http.Request) {
	name, period, _, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	provs, err := h.Store.LoadProvisions(r.Context(), name, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load provisions", err)
		return
	}
	writeJSON(w, http.StatusOK, toProvisionDTOs(provs))
}

// GetReport tabulates the period's stored movements.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	name, period, _, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	moves, err := h.Store.LoadMovements(r.Context(), name, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load movements", err)
		return
	}
	report := provision.Tabulate(moves)
	rd := provision.NewReportDate(period.End())

	var (
		buf         bytes.Buffer
		contentType string
		ext         string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, toReportDTOs(report))
		return
	case export.FormatCSV:
		contentType, ext = "text/csv", "csv"
		err = export.WriteReportCSV(&buf, report)
	case export.FormatXML:
		contentType, ext = "application/xml", "xml"
		err = export.WriteReportXML(&buf, export.ReportMeta{Portfolio: name, Period: period, ReportDate: rd.Display()}, report)
	case export.FormatXLSX:
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
		wb := export.Workbook{Title: fmt.Sprintf("%s HP - CAP BY CATEGORY %s", strings.ToUpper(name), rd.Display()), Report: report}
		wb.Waterfall, err = h.Store.LoadWaterfall(r.Context(), name, period)
		if err == nil {
			wb.Total = provision.TotalRows(wb.Waterfall)
			err = export.WriteXLSX(&buf, wb)
		}
	default:
		writeError(w, http.StatusBadRequest, "Unknown format", fmt.Errorf("format %q", format))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render report", err)
		return
	}

	base, _, _, _ := export.FileNames(name, rd)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"."+ext))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GetInterface renders the fixed-width interface file of the period.
func (h *Handler) GetInterface(w http.ResponseWriter, r *http.Request) {
	name, period, _, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	provs, err := h.Store.LoadProvisions(r.Context(), name, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load provisions", err)
		return
	}

	var buf bytes.Buffer
	if _, err := export.WriteInterface(&buf, provs); err != nil {
		writeDomainError(w, "Interface file rejected", err)
		return
	}
	_, _, _, iface := export.FileNames(name, provision.NewReportDate(period.End()))
	w.Header().Set("Content-Type", "text/plain; charset=us-ascii")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", iface))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// =============================================================================
// PARAMETER HANDLERS
// =============================================================================

// GetRecRate returns RECRATE effective for ?period (default: current month).
func (h *Handler) GetRecRate(w http.ResponseWriter, r *http.Request) {
	period := provision.PeriodOf(time.Now())
	if s := r.URL.Query().Get("period"); s != "" {
		p, err := provision.ParsePeriod(s)
		if err != nil {
			writeDomainError(w, "Invalid period", err)
			return
		}
		period = p
	}
	rate, err := h.Store.RecRate(r.Context(), period)
	if err != nil {
		writeDomainError(w, "RECRATE not set", err)
		return
	}
	writeJSON(w, http.StatusOK, RecRateDTO{Period: period.String(), Rate: rate})
}

// PutRecRate records RECRATE from an effective period onwards.
func (h *Handler) PutRecRate(w http.ResponseWriter, r *http.Request) {
	var req SetRecRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	effective, err := provision.ParsePeriod(req.Effective)
	if err != nil {
		writeDomainError(w, "Invalid period", err)
		return
	}
	if req.Rate.IsNegative() || req.Rate.GreaterThan(decimal.NewFromInt(100)) {
		writeError(w, http.StatusBadRequest, "rate must be between 0 and 100", nil)
		return
	}
	if err := h.Store.SetRecRate(r.Context(), effective, req.Rate); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save RECRATE", err)
		return
	}
	h.Log.WithFields(logrus.Fields{"effective": effective.String(), "rate": req.Rate.String(), "by": Subject(r.Context())}).
		Info("RECRATE updated")
	writeJSON(w, http.StatusOK, RecRateDTO{Period: effective.String(), Rate: req.Rate})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps provisioning errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case provision.IsDataAnomaly(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case provision.IsNotFound(err), errors.Is(err, feed.ErrFeedMissing):
		writeError(w, http.StatusNotFound, message, err)
	case provision.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case provision.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
