package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// PAYMENT RECONCILIATION - Soll (expected) vs Ist (actual) advances
// =============================================================================

type PaymentStatus string

const (
	PaymentOverpaid  PaymentStatus = "overpaid"
	PaymentUnderpaid PaymentStatus = "underpaid"
	PaymentBalanced  PaymentStatus = "balanced"
)

func statusOf(diff decimal.Decimal) PaymentStatus {
	switch diff.Sign() {
	case 1:
		return PaymentOverpaid
	case -1:
		return PaymentUnderpaid
	}
	return PaymentBalanced
}

// PaymentItem is one advance-payment booking, for display.
type PaymentItem struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// PaymentReconciliation is a unit's advance payments for one year.
type PaymentReconciliation struct {
	MonthlyAdvance decimal.Decimal
	Months         int

	Soll      decimal.Decimal
	Ist       decimal.Decimal
	Differenz decimal.Decimal // Ist - Soll
	Status    PaymentStatus

	Items []PaymentItem
}

// CommunityPayments sums Soll/Ist/Differenz over all units.
type CommunityPayments struct {
	Soll      decimal.Decimal
	Ist       decimal.Decimal
	Differenz decimal.Decimal
	Units     int
}

// PaymentReconciler computes Soll and Ist per unit.
type PaymentReconciler struct {
	Repo     weg.Repository
	Advances weg.AdvancePaymentSource
}

func NewPaymentReconciler(repo weg.Repository, advances weg.AdvancePaymentSource) *PaymentReconciler {
	return &PaymentReconciler{Repo: repo, Advances: advances}
}

// Reconcile computes the unit's Soll, Ist and their difference.
//
// Soll = monthly advance * months owned in the year. A unit without a
// configured plan has Soll zero.
func (r *PaymentReconciler) Reconcile(ctx context.Context, unit weg.Unit, year int) (PaymentReconciliation, error) {
	monthly, err := r.Advances.MonthlyAdvance(ctx, unit.ID, year)
	if err != nil {
		return PaymentReconciliation{}, fmt.Errorf("monthly advance of %s/%d: %w", unit.ID, year, err)
	}

	result := PaymentReconciliation{
		MonthlyAdvance: decimal.Zero,
		Months:         weg.MonthsOwned(year, unit.EnteredAt),
		Ist:            decimal.Zero,
	}
	if monthly != nil {
		result.MonthlyAdvance = *monthly
	}
	result.Soll = result.MonthlyAdvance.Mul(decimal.NewFromInt(int64(result.Months)))

	bookings, err := r.Repo.ListBookings(ctx, weg.BookingFilter{
		CommunityID: unit.CommunityID,
		Year:        year,
		UnitID:      unit.ID,
		Category:    weg.CategoryAdvancePayment,
	})
	if err != nil {
		return PaymentReconciliation{}, fmt.Errorf("payments of %s/%d: %w", unit.ID, year, err)
	}
	for _, b := range bookings {
		result.Ist = result.Ist.Add(b.Amount)
		result.Items = append(result.Items, PaymentItem{
			Date:        b.Date,
			Description: b.Description,
			Amount:      b.Amount,
		})
	}

	result.Differenz = result.Ist.Sub(result.Soll)
	result.Status = statusOf(result.Differenz)
	return result, nil
}

// CommunityPayments reconciles every unit and sums the figures.
func (r *PaymentReconciler) CommunityPayments(ctx context.Context, communityID weg.CommunityID, year int) (CommunityPayments, error) {
	units, err := r.Repo.ListUnits(ctx, communityID)
	if err != nil {
		return CommunityPayments{}, fmt.Errorf("units of %s: %w", communityID, err)
	}

	totals := CommunityPayments{Soll: decimal.Zero, Ist: decimal.Zero, Units: len(units)}
	for _, u := range units {
		p, err := r.Reconcile(ctx, u, year)
		if err != nil {
			return CommunityPayments{}, err
		}
		totals.Soll = totals.Soll.Add(p.Soll)
		totals.Ist = totals.Ist.Add(p.Ist)
	}
	totals.Differenz = totals.Ist.Sub(totals.Soll)
	return totals, nil
}
