package settlement

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// STATEMENT - The assembled Hausgeldabrechnung for one unit and year
// =============================================================================

// Statement is built once by the Assembler and never mutated afterwards.
// Renderers and the plausibility checker read it; its field set is the
// contract they depend on. It shares no memory with the records it was
// built from, but its slices are handed out as is: readers must not
// modify them.
type Statement struct {
	ID   uuid.UUID
	Year int

	Unit      UnitInfo
	Community CommunityInfo

	Costs          CostBreakdown
	CommunityCosts CommunityCosts

	External       ExternalCosts
	ExternalTotals ExternalTotals

	Payments          PaymentReconciliation
	CommunityPayments CommunityPayments

	Tax      TaxDeduction
	Balances BalanceReport

	Outcome Outcome

	GeneratedAt time.Time
}

// UnitInfo is the unit header of a statement.
type UnitInfo struct {
	ID           weg.UnitID
	Label        string
	OwnerName    string
	OwnerEmail   string
	MEA          weg.Fraction
	MEAPercent   decimal.Decimal
	SpecialShare *weg.Fraction
	Months       int
}

// CommunityInfo is the community header of a statement.
type CommunityInfo struct {
	ID      weg.CommunityID
	Name    string
	Address string
	Units   int
}

// OutcomeKind says who owes whom after settlement.
type OutcomeKind string

const (
	OutcomeRefund            OutcomeKind = "refund"             // Guthaben
	OutcomeAdditionalPayment OutcomeKind = "additional_payment" // Nachzahlung
	OutcomeSettled           OutcomeKind = "settled"
)

// Outcome is the settlement result (Abrechnungsspitze).
type Outcome struct {
	// Charges = unit cost share + external shares.
	Charges decimal.Decimal

	// AdvancesPaid is the Ist of the payment reconciliation.
	AdvancesPaid decimal.Decimal

	// Balance = AdvancesPaid - Charges. Positive is a refund.
	Balance decimal.Decimal
	Kind    OutcomeKind
}

func newOutcome(costs CostBreakdown, external ExternalCosts, payments PaymentReconciliation) Outcome {
	charges := costs.UnitTotal.Add(external.Total)
	balance := payments.Ist.Sub(charges)
	kind := OutcomeSettled
	switch balance.Sign() {
	case 1:
		kind = OutcomeRefund
	case -1:
		kind = OutcomeAdditionalPayment
	}
	return Outcome{Charges: charges, AdvancesPaid: payments.Ist, Balance: balance, Kind: kind}
}

// CostSharePercent is the unit's share of the community's allocated
// costs. Metered heating and water are excluded; they do not follow MEA.
// Zero when the community booked nothing.
func (s *Statement) CostSharePercent() decimal.Decimal {
	if s.CommunityCosts.Total.IsZero() {
		return decimal.Zero
	}
	return s.Costs.UnitTotal.Div(s.CommunityCosts.Total).Mul(decimal.NewFromInt(100)).Round(2)
}

// statementNamespace scopes deterministic statement IDs.
var statementNamespace = uuid.MustParse("0b7e4b7c-2f7e-4c47-9a0e-5d3f6f1a2c11")

// StatementID is stable for a (unit, year) pair, so regenerating a
// statement yields the same ID.
func StatementID(unitID weg.UnitID, year int) uuid.UUID {
	return uuid.NewSHA1(statementNamespace, []byte(string(unitID)+"/"+strconv.Itoa(year)))
}
