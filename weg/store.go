/*
store.go - Collaborator interfaces consumed by the settlement engine

PURPOSE:
  Defines the boundary between the engine and everything it reads. The
  engine never writes records; persistence, CRUD and metering live
  behind these interfaces.

KEY INTERFACES:
  Repository:           Communities, units, accounts, bookings
  ExternalCostSource:   Pre-apportioned heating and water shares
  AdvancePaymentSource: Configured monthly advance (Hausgeld) per unit/year
  BankBalanceSource:    Opening/closing balances of community accounts
  FeedbackStore:        User-reported plausibility misses
  RecordWriter:         Upserts for imports and demo data

ABSENCE CONTRACT:
  Lookups of single records return (nil, nil) when the record does not
  exist. Callers decide whether absence is an error. Sources of optional
  amounts return nil pointers for "not delivered", never zero.

IMPLEMENTATIONS:
  - weg/store/memory.go: In-memory for tests and demo data
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - settlement/assembler.go: Main consumer
*/
package weg

import (
	"context"

	"github.com/shopspring/decimal"
)

// BookingFilter selects bookings for one community and settlement year.
type BookingFilter struct {
	CommunityID CommunityID
	Year        int

	// UnitID restricts to bookings linked to a unit. Empty means all.
	UnitID UnitID

	// Category restricts to one category. Empty means all.
	Category Category
}

// Matches reports whether b passes the filter.
func (f BookingFilter) Matches(b Booking) bool {
	if b.CommunityID != f.CommunityID || b.EffectiveYear() != f.Year {
		return false
	}
	if f.UnitID != "" && b.UnitID != f.UnitID {
		return false
	}
	if f.Category != "" && b.Category != f.Category {
		return false
	}
	return true
}

// Repository reads raw community records.
type Repository interface {
	FindUnit(ctx context.Context, id UnitID) (*Unit, error)
	FindCommunity(ctx context.Context, id CommunityID) (*Community, error)
	ListUnits(ctx context.Context, communityID CommunityID) ([]Unit, error)
	CountUnits(ctx context.Context, communityID CommunityID) (int, error)
	ListAccounts(ctx context.Context, communityID CommunityID) ([]CostAccount, error)

	// ListBookings returns matching bookings ordered by date.
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
}

// ExternalCostSource delivers costs apportioned outside this engine.
type ExternalCostSource interface {
	HeatingShare(ctx context.Context, unitID UnitID, year int) (*decimal.Decimal, error)
	WaterShare(ctx context.Context, unitID UnitID, year int) (*decimal.Decimal, error)

	// CommunityRecords returns every delivered record for the community.
	CommunityRecords(ctx context.Context, communityID CommunityID, year int) ([]ExternalCostRecord, error)
}

// AdvancePaymentSource delivers the configured monthly advance payment.
type AdvancePaymentSource interface {
	// MonthlyAdvance returns nil when no plan is configured.
	MonthlyAdvance(ctx context.Context, unitID UnitID, year int) (*decimal.Decimal, error)
}

// BankBalanceSource delivers account balances for the balance report.
type BankBalanceSource interface {
	BankBalances(ctx context.Context, communityID CommunityID, year int) ([]BankBalance, error)
}

// FeedbackStore records and recalls plausibility misses reported by users.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb Feedback) error
	RecentFeedback(ctx context.Context, limit int) ([]Feedback, error)
}

// RecordWriter upserts records. Used by imports and demo data only; the
// settlement engine never writes.
type RecordWriter interface {
	SaveCommunity(ctx context.Context, c Community) error
	SaveUnit(ctx context.Context, u Unit) error
	SaveAccount(ctx context.Context, a CostAccount) error
	SaveBooking(ctx context.Context, b Booking) error
	SaveExternalCosts(ctx context.Context, r ExternalCostRecord) error
	SaveMonthlyAdvance(ctx context.Context, unitID UnitID, year int, amount decimal.Decimal) error
	SaveBankBalance(ctx context.Context, b BankBalance) error
}
