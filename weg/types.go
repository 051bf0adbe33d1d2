/*
Package weg provides the domain model of a property community settlement.

PURPOSE:
  This package contains the record types the settlement engine reads:
  communities, their units, cost accounts and bookings, plus the
  externally apportioned utility costs and bank balances. It holds no
  computation beyond small value helpers; the engine lives in package
  settlement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Fraction: An ownership share such as 290/1000 (MEA) or 2/6
  - Unit: One apartment/section with its MEA and optional special share
  - CostAccount: A cost type with its allocation key and category
  - Booking: A signed posting (costs negative, income positive)

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Absence is explicit: unknown values are nil pointers, not zero
  3. Records are read-only input; the engine never mutates them

USAGE:
  mea, _ := weg.ParseFraction("290/1000")
  unit := weg.Unit{ID: "unit-1", CommunityID: "weg-1", MEA: &mea}
  share := mea.Apply(decimal.NewFromInt(1000)) // 290

SEE ALSO:
  - store.go: Collaborator interfaces (record repository, sources)
  - errors.go: Sentinel and structured errors
  - period.go: Settlement year helpers
*/
package weg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FRACTION - Ownership share stored as a rational
// =============================================================================

// Fraction is a non-negative rational share no greater than one.
type Fraction struct {
	Num int64
	Den int64
}

// ParseFraction parses "290/1000". A bare integer is not accepted.
func ParseFraction(s string) (Fraction, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Fraction{}, fmt.Errorf("fraction %q: expected num/den", s)
	}
	num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Fraction{}, fmt.Errorf("fraction %q: numerator: %w", s, err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Fraction{}, fmt.Errorf("fraction %q: denominator: %w", s, err)
	}
	f := Fraction{Num: num, Den: den}
	if err := f.Validate(); err != nil {
		return Fraction{}, fmt.Errorf("fraction %q: %w", s, err)
	}
	return f, nil
}

// MustParseFraction panics on malformed input. Use in tests and fixtures.
func MustParseFraction(s string) Fraction {
	f, err := ParseFraction(s)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Fraction) Validate() error {
	switch {
	case f.Den <= 0:
		return fmt.Errorf("denominator must be positive")
	case f.Num < 0:
		return fmt.Errorf("numerator must not be negative")
	case f.Num > f.Den:
		return fmt.Errorf("share exceeds one")
	}
	return nil
}

// Apply multiplies amount by the fraction without intermediate rounding.
func (f Fraction) Apply(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(f.Num)).Div(decimal.NewFromInt(f.Den))
}

// Decimal returns the fraction as a decimal (16 digits of precision).
func (f Fraction) Decimal() decimal.Decimal {
	return decimal.NewFromInt(f.Num).Div(decimal.NewFromInt(f.Den))
}

// Percent returns the share in percent, e.g. 29 for 290/1000.
func (f Fraction) Percent() decimal.Decimal {
	return f.Apply(decimal.NewFromInt(100))
}

func (f Fraction) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Den) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CommunityID string
type UnitID string
type BookingID string

// =============================================================================
// COMMUNITY & UNIT
// =============================================================================

// Community is a WEG, the owners' association whose costs are settled.
type Community struct {
	ID      CommunityID
	Name    string
	Address string
}

// Unit is one individually owned apartment or section.
type Unit struct {
	ID          UnitID
	CommunityID CommunityID
	Label       string

	// MEA is the ownership fraction. nil means not yet recorded.
	MEA *Fraction

	// SpecialShare is the fixed fraction for key 06* (lift, pump).
	SpecialShare *Fraction

	OwnerName  string
	OwnerEmail string

	// EnteredAt is the start of ownership. nil means owned before any
	// settlement year in question.
	EnteredAt *time.Time
}

// =============================================================================
// COST ACCOUNT & BOOKING
// =============================================================================

// Category classifies accounts and bookings.
type Category string

const (
	CategoryAllocatable    Category = "allocatable"     // umlagefähig
	CategoryNonAllocatable Category = "non_allocatable" // nicht umlagefähig
	CategoryReserve        Category = "reserve"         // Zuführung Erhaltungsrücklage
	CategoryAdvancePayment Category = "advance_payment" // Hausgeld-Vorauszahlung
)

// CostCategories are the buckets a unit's costs are split into.
var CostCategories = []Category{CategoryAllocatable, CategoryNonAllocatable, CategoryReserve}

func (c Category) IsCost() bool {
	return c == CategoryAllocatable || c == CategoryNonAllocatable || c == CategoryReserve
}

// CostAccount is a configured cost type (Kostenkonto).
type CostAccount struct {
	CommunityID   CommunityID
	Number        string
	Label         string
	KeyCode       string
	Category      Category
	Active        bool
	TaxDeductible bool

	// FixedAmount is the per-unit charge for key 04*. nil means the
	// postings themselves are unit-specific.
	FixedAmount *decimal.Decimal
}

// Booking is a signed posting (Zahlung). Costs are negative, income positive.
type Booking struct {
	ID            BookingID
	CommunityID   CommunityID
	Date          time.Time
	Amount        decimal.Decimal
	Category      Category
	AccountNumber string
	UnitID        UnitID
	Vendor        string
	Description   string

	// SettlementYear tags a booking to a fiscal year other than its date's.
	SettlementYear *int
}

// EffectiveYear returns the settlement year the booking counts towards.
func (b Booking) EffectiveYear() int {
	if b.SettlementYear != nil {
		return *b.SettlementYear
	}
	return b.Date.Year()
}

// =============================================================================
// EXTERNAL COSTS - Apportioned upstream (metering service)
// =============================================================================

// ExternalCostRecord carries one unit's pre-apportioned heating and water
// shares. A nil share means the data was never delivered; zero is a real value.
type ExternalCostRecord struct {
	UnitID       UnitID
	Year         int
	HeatingShare *decimal.Decimal
	WaterShare   *decimal.Decimal
	Provider     string
}

// =============================================================================
// BANK BALANCES & FEEDBACK
// =============================================================================

// BankBalance is the opening and closing balance of one community account.
type BankBalance struct {
	CommunityID CommunityID
	Year        int
	Account     string
	Opening     decimal.Decimal
	Closing     decimal.Decimal
}

// Feedback is a user report that a plausibility check missed a problem.
type Feedback struct {
	ID        string
	UnitID    UnitID
	Year      int
	Message   string
	CreatedAt time.Time
}

// DecimalPtr is a convenience for optional amounts.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

// IntPtr is a convenience for optional years.
func IntPtr(i int) *int { return &i }
