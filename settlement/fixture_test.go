package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
	"github.com/warp/weg-settlement/weg/store"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

const (
	testCommunity weg.CommunityID = "weg-linden"
	unitA         weg.UnitID      = "unit-a"
	unitB         weg.UnitID      = "unit-b"
	testYear                      = 2024
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fraction(s string) *weg.Fraction {
	f := weg.MustParseFraction(s)
	return &f
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// newCommunity seeds a two-unit community:
//
//	unit-a  MEA 290/1000, special share 2/6
//	unit-b  MEA 710/1000
//
// with one tax-deductible MEA account (4000) booked at 1000.00 in 2024,
// complete heating/water data and 25.00 monthly advances paid in full.
func newCommunity(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()

	m.AddCommunity(weg.Community{ID: testCommunity, Name: "WEG Lindenstraße 12", Address: "Lindenstraße 12, 10115 Berlin"})
	m.AddUnit(weg.Unit{ID: unitA, CommunityID: testCommunity, Label: "WE 1", MEA: fraction("290/1000"), SpecialShare: fraction("2/6"), OwnerName: "Petra Albers"})
	m.AddUnit(weg.Unit{ID: unitB, CommunityID: testCommunity, Label: "WE 2", MEA: fraction("710/1000"), OwnerName: "Jonas Brandt"})

	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4000", Label: "Hausmeister", KeyCode: "05*", Category: weg.CategoryAllocatable, Active: true, TaxDeductible: true})
	m.AddBooking(weg.Booking{ID: "b-4000-1", CommunityID: testCommunity, Date: date(testYear, time.March, 31), Amount: dec("-600.00"), Category: weg.CategoryAllocatable, AccountNumber: "4000", Vendor: "Hausservice Kühn"})
	m.AddBooking(weg.Booking{ID: "b-4000-2", CommunityID: testCommunity, Date: date(testYear, time.September, 30), Amount: dec("-400.00"), Category: weg.CategoryAllocatable, AccountNumber: "4000", Vendor: "Hausservice Kühn"})

	m.SetExternalCosts(weg.ExternalCostRecord{UnitID: unitA, Year: testYear, HeatingShare: weg.DecimalPtr(dec("450.00")), WaterShare: weg.DecimalPtr(dec("120.00"))})
	m.SetExternalCosts(weg.ExternalCostRecord{UnitID: unitB, Year: testYear, HeatingShare: weg.DecimalPtr(dec("900.00")), WaterShare: weg.DecimalPtr(dec("300.00"))})

	for _, u := range []weg.UnitID{unitA, unitB} {
		m.SetMonthlyAdvance(u, testYear, dec("25.00"))
		for month := time.January; month <= time.December; month++ {
			m.AddBooking(weg.Booking{
				ID:          weg.BookingID(string(u) + "-adv-" + month.String()),
				CommunityID: testCommunity,
				Date:        date(testYear, month, 3),
				Amount:      dec("25.00"),
				Category:    weg.CategoryAdvancePayment,
				UnitID:      u,
				Description: "Hausgeld " + month.String(),
			})
		}
	}
	return m
}

func newAssembler(t *testing.T, m *store.Memory) *settlement.Assembler {
	t.Helper()
	a, err := settlement.NewAssembler(settlement.Sources{
		Repo:     m,
		External: m,
		Advances: m,
		Balances: m,
	}, settlement.DefaultConfig(), nil)
	require.NoError(t, err)
	a.Now = func() time.Time { return time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC) }
	return a
}

func mustUnit(t *testing.T, m *store.Memory, id weg.UnitID) weg.Unit {
	t.Helper()
	u, err := m.FindUnit(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return *u
}
