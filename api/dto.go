/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the settlement model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are rendered as decimal strings with two places ("1234.50").
  Clients must not parse them as floats for further math.

TYPES:
  Statement:
    StatementDTO, CostBreakdownDTO, CostBucketDTO, CostLineDTO,
    ExternalCostsDTO, PaymentsDTO, TaxDTO, BalanceReportDTO, OutcomeDTO

  Validation:
    ValidationResponse, ValidationErrorDTO

  Plausibility:
    plausibility.Verdict is serialized as is (it carries JSON tags)

  Feedback:
    FeedbackRequest, FeedbackDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request bodies carry validator/v10 tags and are checked in the handler
  before any store call.

SEE ALSO:
  - handlers.go: Uses these types
  - settlement/statement.go: Statement type
*/
package api

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// STATEMENT
// =============================================================================

// StatementDTO is a Hausgeldabrechnung in API responses.
type StatementDTO struct {
	ID          string `json:"id"`
	Year        int    `json:"year"`
	GeneratedAt string `json:"generated_at"`

	Unit      UnitDTO      `json:"unit"`
	Community CommunityDTO `json:"community"`

	Costs          CostBreakdownDTO  `json:"costs"`
	CommunityCosts CommunityCostsDTO `json:"community_costs"`
	CostShare      string            `json:"cost_share_percent"`

	External       ExternalCostsDTO `json:"external"`
	ExternalTotals ExternalCostsDTO `json:"external_totals"`

	Payments          PaymentsDTO          `json:"payments"`
	CommunityPayments CommunityPaymentsDTO `json:"community_payments"`

	Tax      TaxDTO           `json:"tax"`
	Balances BalanceReportDTO `json:"balances"`
	Outcome  OutcomeDTO       `json:"outcome"`
}

type UnitDTO struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	OwnerName    string `json:"owner_name,omitempty"`
	OwnerEmail   string `json:"owner_email,omitempty"`
	MEA          string `json:"mea"`
	MEAPercent   string `json:"mea_percent"`
	SpecialShare string `json:"special_share,omitempty"`
	Months       int    `json:"months"`
}

type CommunityDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Units   int    `json:"units"`
}

type CostLineDTO struct {
	Account       string `json:"account"`
	Label         string `json:"label"`
	KeyCode       string `json:"key"`
	KeyLabel      string `json:"key_label"`
	TaxDeductible bool   `json:"tax_deductible"`
	Total         string `json:"total"`
	UnitShare     string `json:"unit_share"`
}

type CostBucketDTO struct {
	Category  string        `json:"category"`
	Lines     []CostLineDTO `json:"lines"`
	Total     string        `json:"total"`
	UnitShare string        `json:"unit_share"`
}

type CostBreakdownDTO struct {
	Allocatable    CostBucketDTO `json:"allocatable"`
	NonAllocatable CostBucketDTO `json:"non_allocatable"`
	Reserve        CostBucketDTO `json:"reserve"`
	Total          string        `json:"total"`
	UnitTotal      string        `json:"unit_total"`
}

type CommunityCostsDTO struct {
	Allocatable    string `json:"allocatable"`
	NonAllocatable string `json:"non_allocatable"`
	Reserve        string `json:"reserve"`
	Total          string `json:"total"`
	Distributed    string `json:"distributed"`
	Units          int    `json:"units"`
}

type ExternalCostsDTO struct {
	Heating string `json:"heating"`
	Water   string `json:"water"`
	Total   string `json:"total"`
	Units   int    `json:"units,omitempty"`
}

type PaymentItemDTO struct {
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
}

type PaymentsDTO struct {
	MonthlyAdvance string           `json:"monthly_advance"`
	Months         int              `json:"months"`
	Soll           string           `json:"soll"`
	Ist            string           `json:"ist"`
	Differenz      string           `json:"differenz"`
	Status         string           `json:"status"`
	Items          []PaymentItemDTO `json:"items"`
}

type CommunityPaymentsDTO struct {
	Soll      string `json:"soll"`
	Ist       string `json:"ist"`
	Differenz string `json:"differenz"`
	Units     int    `json:"units"`
}

type TaxLineDTO struct {
	Account   string `json:"account"`
	Label     string `json:"label"`
	UnitShare string `json:"unit_share"`
}

type TaxDTO struct {
	Lines        []TaxLineDTO `json:"lines"`
	EligibleBase string       `json:"eligible_base"`
	Rate         string       `json:"rate"`
	Cap          string       `json:"cap"`
	Reduction    string       `json:"reduction"`
	Capped       bool         `json:"capped"`
}

type AccountDevelopmentDTO struct {
	Account string `json:"account"`
	Opening string `json:"opening"`
	Closing string `json:"closing"`
	Change  string `json:"change"`
}

type BalanceReportDTO struct {
	Accounts             []AccountDevelopmentDTO `json:"accounts"`
	TotalOpening         string                  `json:"total_opening"`
	TotalClosing         string                  `json:"total_closing"`
	TotalChange          string                  `json:"total_change"`
	ReserveContributions string                  `json:"reserve_contributions"`
}

type OutcomeDTO struct {
	Charges      string `json:"charges"`
	AdvancesPaid string `json:"advances_paid"`
	Balance      string `json:"balance"`
	Kind         string `json:"kind"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationErrorDTO is one problem found before generation.
type ValidationErrorDTO struct {
	UnitID  string `json:"unit_id,omitempty"`
	Year    int    `json:"year"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Missing bool   `json:"missing_external_data"`
}

// ValidationResponse lists every problem; Valid is true when none remain.
type ValidationResponse struct {
	Valid  bool                 `json:"valid"`
	Errors []ValidationErrorDTO `json:"errors"`
}

// =============================================================================
// FEEDBACK
// =============================================================================

// FeedbackRequest reports a problem the plausibility check did not flag.
type FeedbackRequest struct {
	UnitID  string `json:"unit_id" validate:"omitempty,max=64"`
	Year    int    `json:"year" validate:"omitempty,min=2000,max=2100"`
	Message string `json:"message" validate:"required,min=3,max=2000"`
}

type FeedbackDTO struct {
	ID        string `json:"id"`
	UnitID    string `json:"unit_id,omitempty"`
	Year      int    `json:"year,omitempty"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CommunityID string   `json:"community_id"`
	Year        int      `json:"year"`
	Units       []string `json:"units"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string               `json:"error"`
	Details string               `json:"details,omitempty"`
	Fields  []ValidationErrorDTO `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func toStatementDTO(s *settlement.Statement) StatementDTO {
	dto := StatementDTO{
		ID:          s.ID.String(),
		Year:        s.Year,
		GeneratedAt: s.GeneratedAt.Format(time.RFC3339),
		Unit: UnitDTO{
			ID:         string(s.Unit.ID),
			Label:      s.Unit.Label,
			OwnerName:  s.Unit.OwnerName,
			OwnerEmail: s.Unit.OwnerEmail,
			MEA:        s.Unit.MEA.String(),
			MEAPercent: s.Unit.MEAPercent.StringFixed(2),
			Months:     s.Unit.Months,
		},
		Community: CommunityDTO{
			ID:      string(s.Community.ID),
			Name:    s.Community.Name,
			Address: s.Community.Address,
			Units:   s.Community.Units,
		},
		Costs: CostBreakdownDTO{
			Allocatable:    toBucketDTO(s.Costs.Allocatable),
			NonAllocatable: toBucketDTO(s.Costs.NonAllocatable),
			Reserve:        toBucketDTO(s.Costs.Reserve),
			Total:          money(s.Costs.Total),
			UnitTotal:      money(s.Costs.UnitTotal),
		},
		CommunityCosts: CommunityCostsDTO{
			Allocatable:    money(s.CommunityCosts.Allocatable),
			NonAllocatable: money(s.CommunityCosts.NonAllocatable),
			Reserve:        money(s.CommunityCosts.Reserve),
			Total:          money(s.CommunityCosts.Total),
			Distributed:    money(s.CommunityCosts.Distributed),
			Units:          s.CommunityCosts.Units,
		},
		CostShare: s.CostSharePercent().StringFixed(2),
		External: ExternalCostsDTO{
			Heating: money(s.External.Heating),
			Water:   money(s.External.Water),
			Total:   money(s.External.Total),
		},
		ExternalTotals: ExternalCostsDTO{
			Heating: money(s.ExternalTotals.Heating),
			Water:   money(s.ExternalTotals.Water),
			Total:   money(s.ExternalTotals.Total),
			Units:   s.ExternalTotals.Units,
		},
		Payments: PaymentsDTO{
			MonthlyAdvance: money(s.Payments.MonthlyAdvance),
			Months:         s.Payments.Months,
			Soll:           money(s.Payments.Soll),
			Ist:            money(s.Payments.Ist),
			Differenz:      money(s.Payments.Differenz),
			Status:         string(s.Payments.Status),
			Items:          make([]PaymentItemDTO, len(s.Payments.Items)),
		},
		CommunityPayments: CommunityPaymentsDTO{
			Soll:      money(s.CommunityPayments.Soll),
			Ist:       money(s.CommunityPayments.Ist),
			Differenz: money(s.CommunityPayments.Differenz),
			Units:     s.CommunityPayments.Units,
		},
		Tax: TaxDTO{
			Lines:        make([]TaxLineDTO, len(s.Tax.Lines)),
			EligibleBase: money(s.Tax.EligibleBase),
			Rate:         s.Tax.Rate.String(),
			Cap:          money(s.Tax.Cap),
			Reduction:    money(s.Tax.Reduction),
			Capped:       s.Tax.Capped,
		},
		Balances: BalanceReportDTO{
			Accounts:             make([]AccountDevelopmentDTO, len(s.Balances.Accounts)),
			TotalOpening:         money(s.Balances.TotalOpening),
			TotalClosing:         money(s.Balances.TotalClosing),
			TotalChange:          money(s.Balances.TotalChange),
			ReserveContributions: money(s.Balances.ReserveContributions),
		},
		Outcome: OutcomeDTO{
			Charges:      money(s.Outcome.Charges),
			AdvancesPaid: money(s.Outcome.AdvancesPaid),
			Balance:      money(s.Outcome.Balance),
			Kind:         string(s.Outcome.Kind),
		},
	}
	if s.Unit.SpecialShare != nil {
		dto.Unit.SpecialShare = s.Unit.SpecialShare.String()
	}
	for i, p := range s.Payments.Items {
		dto.Payments.Items[i] = PaymentItemDTO{Date: p.Date.Format("2006-01-02"), Description: p.Description, Amount: money(p.Amount)}
	}
	for i, l := range s.Tax.Lines {
		dto.Tax.Lines[i] = TaxLineDTO{Account: l.Account, Label: l.Label, UnitShare: money(l.UnitShare)}
	}
	for i, a := range s.Balances.Accounts {
		dto.Balances.Accounts[i] = AccountDevelopmentDTO{Account: a.Account, Opening: money(a.Opening), Closing: money(a.Closing), Change: money(a.Change)}
	}
	return dto
}

func toBucketDTO(b settlement.CostBucket) CostBucketDTO {
	dto := CostBucketDTO{
		Category:  string(b.Category),
		Lines:     make([]CostLineDTO, len(b.Lines)),
		Total:     money(b.Total),
		UnitShare: money(b.UnitShare),
	}
	for i, l := range b.Lines {
		dto.Lines[i] = CostLineDTO{
			Account:       l.Account,
			Label:         l.Label,
			KeyCode:       l.KeyCode,
			KeyLabel:      l.KeyLabel,
			TaxDeductible: l.TaxDeductible,
			Total:         money(l.Total),
			UnitShare:     money(l.UnitShare),
		}
	}
	return dto
}

func toValidationDTOs(errs weg.ValidationErrors) []ValidationErrorDTO {
	out := make([]ValidationErrorDTO, len(errs))
	for i, e := range errs {
		out[i] = ValidationErrorDTO{
			UnitID:  string(e.UnitID),
			Year:    e.Year,
			Field:   e.Field,
			Message: e.Message,
			Missing: errors.Is(e, weg.ErrMissingExternalData),
		}
	}
	return out
}

func toFeedbackDTO(f weg.Feedback) FeedbackDTO {
	return FeedbackDTO{
		ID:        f.ID,
		UnitID:    string(f.UnitID),
		Year:      f.Year,
		Message:   f.Message,
		CreatedAt: f.CreatedAt.Format(time.RFC3339),
	}
}
