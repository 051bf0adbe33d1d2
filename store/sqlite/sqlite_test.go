package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
)

var (
	_ weg.Repository           = (*Store)(nil)
	_ weg.ExternalCostSource   = (*Store)(nil)
	_ weg.AdvancePaymentSource = (*Store)(nil)
	_ weg.BankBalanceSource    = (*Store)(nil)
	_ weg.FeedbackStore        = (*Store)(nil)
	_ weg.RecordWriter         = (*Store)(nil)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seed writes the two-unit community used across these tests.
func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	mea := weg.MustParseFraction("290/1000")
	other := weg.MustParseFraction("710/1000")
	special := weg.MustParseFraction("2/6")
	entered := day(2024, time.July, 15)

	require.NoError(t, s.SaveCommunity(ctx, weg.Community{ID: "weg-linden", Name: "WEG Lindenstraße 12", Address: "Lindenstraße 12"}))
	require.NoError(t, s.SaveUnit(ctx, weg.Unit{ID: "unit-a", CommunityID: "weg-linden", Label: "WE 1", MEA: &mea, SpecialShare: &special, OwnerName: "Petra Albers"}))
	require.NoError(t, s.SaveUnit(ctx, weg.Unit{ID: "unit-b", CommunityID: "weg-linden", Label: "WE 2", MEA: &other, EnteredAt: &entered}))
	require.NoError(t, s.SaveAccount(ctx, weg.CostAccount{CommunityID: "weg-linden", Number: "4000", Label: "Hausmeister", KeyCode: "05*", Category: weg.CategoryAllocatable, Active: true, TaxDeductible: true}))
	require.NoError(t, s.SaveAccount(ctx, weg.CostAccount{CommunityID: "weg-linden", Number: "4600", Label: "Kabel", KeyCode: "04*", Category: weg.CategoryAllocatable, Active: true, FixedAmount: weg.DecimalPtr(dec("96.00"))}))
	require.NoError(t, s.SaveBooking(ctx, weg.Booking{ID: "b2", CommunityID: "weg-linden", Date: day(2024, time.September, 30), Amount: dec("-400.00"), Category: weg.CategoryAllocatable, AccountNumber: "4000", Vendor: "Hausservice Kühn"}))
	require.NoError(t, s.SaveBooking(ctx, weg.Booking{ID: "b1", CommunityID: "weg-linden", Date: day(2024, time.March, 31), Amount: dec("-600.00"), Category: weg.CategoryAllocatable, AccountNumber: "4000"}))
	require.NoError(t, s.SaveBooking(ctx, weg.Booking{ID: "late", CommunityID: "weg-linden", Date: day(2025, time.January, 10), Amount: dec("-50.00"), Category: weg.CategoryAllocatable, AccountNumber: "4000", SettlementYear: weg.IntPtr(2024)}))
	require.NoError(t, s.SaveBooking(ctx, weg.Booking{ID: "adv-a", CommunityID: "weg-linden", Date: day(2024, time.December, 1), Amount: dec("300.00"), Category: weg.CategoryAdvancePayment, UnitID: "unit-a", Description: "Hausgeld 2024"}))
	require.NoError(t, s.SaveExternalCosts(ctx, weg.ExternalCostRecord{UnitID: "unit-a", Year: 2024, HeatingShare: weg.DecimalPtr(dec("450.00")), WaterShare: weg.DecimalPtr(dec("0")), Provider: "Techem"}))
	require.NoError(t, s.SaveExternalCosts(ctx, weg.ExternalCostRecord{UnitID: "unit-b", Year: 2024, WaterShare: weg.DecimalPtr(dec("300.00"))}))
	require.NoError(t, s.SaveMonthlyAdvance(ctx, "unit-a", 2024, dec("25.00")))
	require.NoError(t, s.SaveBankBalance(ctx, weg.BankBalance{CommunityID: "weg-linden", Year: 2024, Account: "Girokonto", Opening: dec("4200.00"), Closing: dec("3900.50")}))
}

func TestStore_Units_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	u, err := s.FindUnit(ctx, "unit-a")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, weg.Fraction{Num: 290, Den: 1000}, *u.MEA)
	assert.Equal(t, weg.Fraction{Num: 2, Den: 6}, *u.SpecialShare)
	assert.Nil(t, u.EnteredAt)
	assert.Equal(t, "Petra Albers", u.OwnerName)

	b, err := s.FindUnit(ctx, "unit-b")
	require.NoError(t, err)
	assert.Nil(t, b.SpecialShare)
	require.NotNil(t, b.EnteredAt)
	assert.True(t, day(2024, time.July, 15).Equal(*b.EnteredAt))

	missing, err := s.FindUnit(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	units, err := s.ListUnits(ctx, "weg-linden")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, weg.UnitID("unit-a"), units[0].ID)

	n, err := s.CountUnits(ctx, "weg-linden")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c, err := s.FindCommunity(ctx, "weg-linden")
	require.NoError(t, err)
	assert.Equal(t, "WEG Lindenstraße 12", c.Name)
}

func TestStore_SaveUnit_Upserts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.SaveUnit(ctx, weg.Unit{ID: "unit-a", CommunityID: "weg-linden", Label: "WE 1a"}))

	u, err := s.FindUnit(ctx, "unit-a")
	require.NoError(t, err)
	assert.Equal(t, "WE 1a", u.Label)
	assert.Nil(t, u.MEA)
}

func TestStore_Accounts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	accounts, err := s.ListAccounts(context.Background(), "weg-linden")
	require.NoError(t, err)

	require.Len(t, accounts, 2)
	assert.Equal(t, "4000", accounts[0].Number)
	assert.True(t, accounts[0].Active)
	assert.True(t, accounts[0].TaxDeductible)
	assert.Nil(t, accounts[0].FixedAmount)
	require.NotNil(t, accounts[1].FixedAmount)
	assert.True(t, dec("96.00").Equal(*accounts[1].FixedAmount))
}

func TestStore_Bookings_FilteredByEffectiveYear(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	all, err := s.ListBookings(ctx, weg.BookingFilter{CommunityID: "weg-linden", Year: 2024})
	require.NoError(t, err)
	ids := make([]weg.BookingID, len(all))
	for i, b := range all {
		ids[i] = b.ID
	}
	assert.Equal(t, []weg.BookingID{"b1", "b2", "adv-a", "late"}, ids)
	assert.Equal(t, 2024, *all[3].SettlementYear)
	assert.True(t, dec("-600.00").Equal(all[0].Amount))
	assert.Equal(t, "Hausservice Kühn", all[1].Vendor)

	adv, err := s.ListBookings(ctx, weg.BookingFilter{CommunityID: "weg-linden", Year: 2024, UnitID: "unit-a", Category: weg.CategoryAdvancePayment})
	require.NoError(t, err)
	require.Len(t, adv, 1)
	assert.Equal(t, "Hausgeld 2024", adv[0].Description)

	next, err := s.ListBookings(ctx, weg.BookingFilter{CommunityID: "weg-linden", Year: 2025})
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestStore_SaveBooking_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	err := s.SaveBooking(context.Background(), weg.Booking{ID: "b1", CommunityID: "weg-linden", Date: day(2024, time.May, 1), Amount: dec("-1"), Category: weg.CategoryAllocatable})

	assert.ErrorIs(t, err, weg.ErrInvalidInput)
}

func TestStore_ExternalCosts_NullIsAbsentZeroIsValue(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	water, err := s.WaterShare(ctx, "unit-a", 2024)
	require.NoError(t, err)
	require.NotNil(t, water)
	assert.True(t, water.IsZero())

	heating, err := s.HeatingShare(ctx, "unit-b", 2024)
	require.NoError(t, err)
	assert.Nil(t, heating)

	none, err := s.HeatingShare(ctx, "unit-a", 2023)
	require.NoError(t, err)
	assert.Nil(t, none)

	records, err := s.CommunityRecords(ctx, "weg-linden", 2024)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Techem", records[0].Provider)
	assert.Nil(t, records[1].HeatingShare)
}

func TestStore_AdvancesAndBalances(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	adv, err := s.MonthlyAdvance(ctx, "unit-a", 2024)
	require.NoError(t, err)
	require.NotNil(t, adv)
	assert.True(t, dec("25.00").Equal(*adv))

	noPlan, err := s.MonthlyAdvance(ctx, "unit-b", 2024)
	require.NoError(t, err)
	assert.Nil(t, noPlan)

	balances, err := s.BankBalances(ctx, "weg-linden", 2024)
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, dec("3900.50").Equal(balances[0].Closing))
}

func TestStore_Feedback_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveFeedback(ctx, weg.Feedback{UnitID: "unit-a", Year: 2024, Message: "first", CreatedAt: base}))
	require.NoError(t, s.SaveFeedback(ctx, weg.Feedback{Message: "second", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.SaveFeedback(ctx, weg.Feedback{Message: "third", CreatedAt: base.Add(2 * time.Minute)}))

	recent, err := s.RecentFeedback(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Message)
	assert.Equal(t, "second", recent[1].Message)
	assert.NotEmpty(t, recent[0].ID)

	all, err := s.RecentFeedback(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, weg.UnitID("unit-a"), all[2].UnitID)
	assert.True(t, base.Equal(all[2].CreatedAt))
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.Reset(ctx))

	units, err := s.ListUnits(ctx, "weg-linden")
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestStore_DrivesSettlement(t *testing.T) {
	// GIVEN: the seeded community with unit-b's heating share missing
	// THEN: generation fails validation; after delivering it, unit-a settles

	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	a, err := settlement.NewAssembler(settlement.Sources{Repo: s, External: s, Advances: s, Balances: s}, settlement.DefaultConfig(), nil)
	require.NoError(t, err)
	a.Now = func() time.Time { return day(2025, time.March, 1) }

	_, err = a.GenerateStatement(ctx, "unit-a", 2024)
	assert.ErrorIs(t, err, weg.ErrMissingExternalData)

	require.NoError(t, s.SaveExternalCosts(ctx, weg.ExternalCostRecord{UnitID: "unit-b", Year: 2024, HeatingShare: weg.DecimalPtr(dec("900.00")), WaterShare: weg.DecimalPtr(dec("300.00"))}))

	stmt, err := a.GenerateStatement(ctx, "unit-a", 2024)
	require.NoError(t, err)

	// 1050.00 x 290/1000 = 304.50, plus the 96.00 fixed charge
	assert.True(t, dec("400.50").Equal(stmt.Costs.UnitTotal), "got %s", stmt.Costs.UnitTotal)
	assert.True(t, dec("300.00").Equal(stmt.Payments.Soll))
	assert.True(t, stmt.Payments.Differenz.IsZero())
	assert.True(t, dec("-299.50").Equal(stmt.Balances.TotalChange))
}
