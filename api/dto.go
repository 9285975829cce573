/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal provisioning model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Decimals are serialized as JSON strings ("1234.56") so no precision is
  lost between the engine and the client.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rulebook.go: RuleBookJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/npl-provision/export"
	"github.com/warp/npl-provision/provision"
)

// =============================================================================
// RUNS
// =============================================================================

// RunRequest starts a period run from the feed directory.
type RunRequest struct {
	Portfolio string `json:"portfolio"`

	// ReportDate is YYYY-MM-DD; Period (YYYY-MM) selects its last day.
	ReportDate string `json:"report_date,omitempty"`
	Period     string `json:"period,omitempty"`

	RecoveryRate  *decimal.Decimal `json:"recovery_rate,omitempty"`
	ForceWriteOff bool             `json:"force_write_off,omitempty"`
	Publish       bool             `json:"publish,omitempty"`
}

// RunDTO represents a pipeline run in API responses.
type RunDTO struct {
	ID         string          `json:"id"`
	Portfolio  string          `json:"portfolio"`
	Period     string          `json:"period"`
	Status     string          `json:"status"`
	Trigger    string          `json:"trigger,omitempty"`
	RateBasis  string          `json:"rate_basis,omitempty"`
	RecRate    decimal.Decimal `json:"rec_rate"`
	RateA      decimal.Decimal `json:"rate_a"`
	RateB      decimal.Decimal `json:"rate_b"`
	RateC      decimal.Decimal `json:"rate_c"`
	Accounts   int             `json:"accounts"`
	Classified int             `json:"classified"`
	Excluded   int             `json:"excluded"`
	Uncapped   int             `json:"uncapped"`
	TotalCap   decimal.Decimal `json:"total_cap"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunResultDTO is returned by POST /api/runs.
type RunResultDTO struct {
	Run   RunDTO        `json:"run"`
	Feed  FeedStatsDTO  `json:"feed"`
	Files []string      `json:"files,omitempty"`
	Gaps  []GapDTO      `json:"gaps,omitempty"`
	Rates []CategoryDTO `json:"category_rates"`
}

// FeedStatsDTO summarizes feed preparation.
type FeedStatsDTO struct {
	Files            []string `json:"files"`
	Loans            int      `json:"loans"`
	Kept             int      `json:"kept"`
	NonPositive      int      `json:"non_positive"`
	OtherProduct     int      `json:"other_product"`
	DuplicateArrears int      `json:"duplicate_arrears"`
	NoArrears        int      `json:"no_arrears"`
}

// GapDTO is an account the classifier or the cap engine could not place.
type GapDTO struct {
	Account string `json:"account"`
	Reason  string `json:"reason"`
}

func toRunDTO(r provision.Run) RunDTO {
	dto := RunDTO{
		ID:         string(r.ID),
		Portfolio:  r.Portfolio,
		Period:     r.Period.String(),
		Status:     string(r.Status),
		Trigger:    r.Trigger,
		RateBasis:  string(r.RateBasis),
		RecRate:    r.RecRate,
		RateA:      r.Rates.RateA,
		RateB:      r.Rates.RateB,
		RateC:      r.Rates.RateC,
		Accounts:   r.Accounts,
		Classified: r.Classified,
		Excluded:   r.Excluded,
		Uncapped:   r.Uncapped,
		TotalCap:   r.TotalCap,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
	}
	if !r.FinishedAt.IsZero() {
		t := r.FinishedAt
		dto.FinishedAt = &t
	}
	return dto
}

func toGapDTOs(gaps []provision.ClassificationGap) []GapDTO {
	out := make([]GapDTO, len(gaps))
	for i, g := range gaps {
		out[i] = GapDTO{Account: g.Key.String(), Reason: g.Reason}
	}
	return out
}

func publishedPaths(files []export.Published) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

// =============================================================================
// PORTFOLIOS AND PERIOD STATE
// =============================================================================

// PortfolioDTO represents a registered portfolio.
type PortfolioDTO struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Products    []int    `json:"products"`
	Facilities  []string `json:"facilities"`
	RuleBook    string   `json:"rule_book"`
}

// CategoryDTO is one category's rate.
type CategoryDTO struct {
	Category     string          `json:"category"`
	Balance      decimal.Decimal `json:"balance"`
	CapProvision decimal.Decimal `json:"cap_provision"`
	CARate       decimal.Decimal `json:"ca_rate"`
	Overridden   bool            `json:"overridden,omitempty"`
}

// SnapshotDTO is a category-rate snapshot.
type SnapshotDTO struct {
	Portfolio string        `json:"portfolio"`
	Period    string        `json:"period"`
	Version   int           `json:"version"`
	TakenAt   time.Time     `json:"taken_at"`
	Rates     []CategoryDTO `json:"rates"`
}

func toCategoryDTOs(rates []provision.CategoryRate) []CategoryDTO {
	out := make([]CategoryDTO, len(rates))
	for i, r := range rates {
		out[i] = CategoryDTO{
			Category:     r.Category.Label(),
			Balance:      r.Balance,
			CapProvision: r.CapProvision,
			CARate:       r.CARate,
			Overridden:   r.Overridden,
		}
	}
	return out
}

// ProvisionDTO is one account's provision.
type ProvisionDTO struct {
	Account     string          `json:"account"`
	Note        int             `json:"note"`
	Branch      int             `json:"branch"`
	Product     int             `json:"product"`
	Category    string          `json:"category"`
	Balance     decimal.Decimal `json:"balance"`
	CARate      decimal.Decimal `json:"ca_rate"`
	Cap         decimal.Decimal `json:"cap"`
	ExternalRef string          `json:"external_ref,omitempty"`
}

func toProvisionDTOs(provs []provision.AccountProvision) []ProvisionDTO {
	out := make([]ProvisionDTO, len(provs))
	for i, p := range provs {
		out[i] = ProvisionDTO{
			Account:     p.AccountNo,
			Note:        p.NoteNo,
			Branch:      p.Branch,
			Product:     p.Product,
			Category:    p.Category.Label(),
			Balance:     p.Balance,
			CARate:      p.CARate,
			Cap:         p.Cap,
			ExternalRef: p.ExternalRef,
		}
	}
	return out
}

// ReportRowDTO is one row of the category x branch report.
type ReportRowDTO struct {
	Ordinal     int             `json:"ordinal"`
	Category    string          `json:"category"`
	Branch      string          `json:"branch"`
	Balance     decimal.Decimal `json:"balance"`
	OpenBalance decimal.Decimal `json:"open_balance"`
	Suspend     decimal.Decimal `json:"suspend"`
	WrBack      decimal.Decimal `json:"wrback"`
	WriteOffBal decimal.Decimal `json:"wrioff_bal"`
	Cap         decimal.Decimal `json:"cap"`
	Net         decimal.Decimal `json:"net"`
}

func toReportDTOs(rows []provision.TabRow) []ReportRowDTO {
	out := make([]ReportRowDTO, len(rows))
	for i, r := range rows {
		out[i] = ReportRowDTO{
			Ordinal:     r.Ordinal,
			Category:    r.Category,
			Branch:      r.Branch,
			Balance:     r.Balance,
			OpenBalance: r.OpenBalance,
			Suspend:     r.Suspend,
			WrBack:      r.WrBack,
			WriteOffBal: r.WriteOffBal,
			Cap:         r.Cap,
			Net:         r.Net,
		}
	}
	return out
}

// =============================================================================
// PARAMETERS
// =============================================================================

// RecRateDTO is RECRATE effective from a period.
type RecRateDTO struct {
	Period string          `json:"period"`
	Rate   decimal.Decimal `json:"rate"`
}

// SetRecRateRequest records RECRATE from Effective onwards.
type SetRecRateRequest struct {
	Effective string          `json:"effective"`
	Rate      decimal.Decimal `json:"rate"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
