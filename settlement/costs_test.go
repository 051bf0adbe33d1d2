package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
	"github.com/warp/weg-settlement/weg/store"
)

func newAggregator(m *store.Memory) *settlement.CostAggregator {
	return settlement.NewCostAggregator(m, settlement.NewEngine(m), settlement.DefaultConfig())
}

func addCost(m *store.Memory, id, account string, category weg.Category, amount string) {
	m.AddBooking(weg.Booking{
		ID:            weg.BookingID(id),
		CommunityID:   testCommunity,
		Date:          date(testYear, time.June, 15),
		Amount:        dec(amount),
		Category:      category,
		AccountNumber: account,
	})
}

// =============================================================================
// BUCKETS
// =============================================================================

func TestUnitCosts_SplitsIntoThreeBuckets(t *testing.T) {
	// GIVEN: allocatable 1000, non-allocatable 200, reserve 1000, all 05*
	// WHEN: aggregating unit-a (MEA 290/1000)
	// THEN: 290 / 58 / 290, grand unit total 638 of 2200

	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "5000", Label: "Verwaltung", KeyCode: "05*", Category: weg.CategoryNonAllocatable, Active: true})
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "6000", Label: "Erhaltungsrücklage", KeyCode: "05*", Category: weg.CategoryReserve, Active: true})
	addCost(m, "b-5000", "5000", weg.CategoryNonAllocatable, "-200.00")
	addCost(m, "b-6000", "6000", weg.CategoryReserve, "-1000.00")

	costs, err := newAggregator(m).UnitCosts(context.Background(), mustUnit(t, m, unitA), testYear)
	require.NoError(t, err)

	assert.True(t, dec("290.00").Equal(costs.Allocatable.UnitShare), "allocatable %s", costs.Allocatable.UnitShare)
	assert.True(t, dec("58.00").Equal(costs.NonAllocatable.UnitShare), "non-allocatable %s", costs.NonAllocatable.UnitShare)
	assert.True(t, dec("290.00").Equal(costs.Reserve.UnitShare), "reserve %s", costs.Reserve.UnitShare)
	assert.True(t, dec("638.00").Equal(costs.UnitTotal), "unit total %s", costs.UnitTotal)
	assert.True(t, dec("2200.00").Equal(costs.Total), "total %s", costs.Total)

	require.Len(t, costs.Allocatable.Lines, 1)
	line := costs.Allocatable.Lines[0]
	assert.Equal(t, "4000", line.Account)
	assert.Equal(t, "05*", line.KeyCode)
	assert.True(t, line.TaxDeductible)
	assert.True(t, dec("1000.00").Equal(line.Total))
}

func TestUnitCosts_ExternalKeyAccounts_NeverInBuckets(t *testing.T) {
	// GIVEN: a heating account keyed 01* with 5000 booked
	// THEN: it appears in no bucket; heating is carried by the merger only

	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4300", Label: "Heizung", KeyCode: "01*", Category: weg.CategoryAllocatable, Active: true})
	addCost(m, "b-4300", "4300", weg.CategoryAllocatable, "-5000.00")

	costs, err := newAggregator(m).UnitCosts(context.Background(), mustUnit(t, m, unitA), testYear)
	require.NoError(t, err)

	for _, l := range costs.Allocatable.Lines {
		assert.NotEqual(t, "4300", l.Account)
	}
	assert.True(t, dec("1000.00").Equal(costs.Total))
	assert.False(t, costs.UsesKey(settlement.KeyExternalHeating))
}

func TestUnitCosts_InactiveAccount_Excluded(t *testing.T) {
	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4900", Label: "Altkonto", KeyCode: "05*", Category: weg.CategoryAllocatable, Active: false})
	addCost(m, "b-4900", "4900", weg.CategoryAllocatable, "-300.00")

	costs, err := newAggregator(m).UnitCosts(context.Background(), mustUnit(t, m, unitA), testYear)
	require.NoError(t, err)

	assert.Len(t, costs.Allocatable.Lines, 1)
	assert.True(t, dec("1000.00").Equal(costs.Total))
}

func TestUnitCosts_SettlementYearTag_Wins(t *testing.T) {
	// GIVEN: an invoice dated Jan 2025 tagged to 2024, and one dated 2024 tagged to 2023
	// THEN: only the first counts for 2024

	m := newCommunity(t)
	m.AddBooking(weg.Booking{ID: "late", CommunityID: testCommunity, Date: date(2025, time.January, 10), Amount: dec("-100.00"), Category: weg.CategoryAllocatable, AccountNumber: "4000", SettlementYear: weg.IntPtr(2024)})
	m.AddBooking(weg.Booking{ID: "early", CommunityID: testCommunity, Date: date(2024, time.January, 5), Amount: dec("-700.00"), Category: weg.CategoryAllocatable, AccountNumber: "4000", SettlementYear: weg.IntPtr(2023)})

	costs, err := newAggregator(m).UnitCosts(context.Background(), mustUnit(t, m, unitA), testYear)
	require.NoError(t, err)

	assert.True(t, dec("1100.00").Equal(costs.Allocatable.Total), "got %s", costs.Allocatable.Total)
	assert.True(t, dec("319.00").Equal(costs.Allocatable.UnitShare), "got %s", costs.Allocatable.UnitShare)
}

func TestUnitCosts_SpecialKey_OnlyUnitsWithShare(t *testing.T) {
	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4200", Label: "Aufzug", KeyCode: "06*", Category: weg.CategoryAllocatable, Active: true})
	addCost(m, "b-4200", "4200", weg.CategoryAllocatable, "-900.00")

	agg := newAggregator(m)
	a, err := agg.UnitCosts(context.Background(), mustUnit(t, m, unitA), testYear)
	require.NoError(t, err)
	b, err := agg.UnitCosts(context.Background(), mustUnit(t, m, unitB), testYear)
	require.NoError(t, err)

	assert.True(t, dec("590.00").Equal(a.Allocatable.UnitShare), "unit-a %s", a.Allocatable.UnitShare) // 290 + 300
	assert.True(t, dec("710.00").Equal(b.Allocatable.UnitShare), "unit-b %s", b.Allocatable.UnitShare)
	assert.True(t, a.UsesKey(settlement.KeySpecial))
	assert.False(t, b.UsesKey(settlement.KeySpecial))
}

// =============================================================================
// FIXED KEY (04*)
// =============================================================================

func TestUnitCosts_Fixed_UnitSpecificPostings(t *testing.T) {
	// GIVEN: 04* postings of 25 for unit-a and 40 for unit-b
	// THEN: each unit is charged its own posting, never the 65 total

	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4500", Label: "Mahngebühr", KeyCode: "04*", Category: weg.CategoryNonAllocatable, Active: true})
	m.AddBooking(weg.Booking{ID: "fee-a", CommunityID: testCommunity, Date: date(testYear, time.May, 2), Amount: dec("-25.00"), Category: weg.CategoryNonAllocatable, AccountNumber: "4500", UnitID: unitA})
	m.AddBooking(weg.Booking{ID: "fee-b", CommunityID: testCommunity, Date: date(testYear, time.May, 2), Amount: dec("-40.00"), Category: weg.CategoryNonAllocatable, AccountNumber: "4500", UnitID: unitB})

	costs, err := newAggregator(m).UnitCosts(context.Background(), mustUnit(t, m, unitA), testYear)
	require.NoError(t, err)

	require.Len(t, costs.NonAllocatable.Lines, 1)
	assert.True(t, dec("65.00").Equal(costs.NonAllocatable.Lines[0].Total))
	assert.True(t, dec("25.00").Equal(costs.NonAllocatable.UnitShare), "got %s", costs.NonAllocatable.UnitShare)
}

func TestUnitCosts_Fixed_ConfiguredAmount(t *testing.T) {
	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4600", Label: "Kabelanschluss", KeyCode: "04*", Category: weg.CategoryAllocatable, Active: true, FixedAmount: weg.DecimalPtr(dec("96.00"))})
	addCost(m, "b-4600", "4600", weg.CategoryAllocatable, "-192.00")

	agg := newAggregator(m)
	for _, id := range []weg.UnitID{unitA, unitB} {
		costs, err := agg.UnitCosts(context.Background(), mustUnit(t, m, id), testYear)
		require.NoError(t, err)
		var line settlement.CostLine
		for _, l := range costs.Allocatable.Lines {
			if l.Account == "4600" {
				line = l
			}
		}
		assert.True(t, dec("96.00").Equal(line.UnitShare), "unit %s got %s", id, line.UnitShare)
	}
}

// =============================================================================
// COMMUNITY VARIANT & ERRORS
// =============================================================================

func TestCommunityCosts_SumsUnitShares(t *testing.T) {
	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4100", Label: "Müllabfuhr", KeyCode: "03*", Category: weg.CategoryAllocatable, Active: true})
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "6000", Label: "Erhaltungsrücklage", KeyCode: "05*", Category: weg.CategoryReserve, Active: true})
	addCost(m, "b-4100", "4100", weg.CategoryAllocatable, "-301.00")
	addCost(m, "b-6000", "6000", weg.CategoryReserve, "-500.00")

	community, err := newAggregator(m).CommunityCosts(context.Background(), testCommunity, testYear)
	require.NoError(t, err)

	assert.Equal(t, 2, community.Units)
	assert.True(t, dec("1301.00").Equal(community.Allocatable), "allocatable %s", community.Allocatable)
	assert.True(t, dec("500.00").Equal(community.Reserve))
	assert.True(t, dec("1801.00").Equal(community.Total))
	assert.True(t, dec("1801.00").Equal(community.Distributed), "distributed %s", community.Distributed)
}

func TestCommunityCosts_FixedAmount_WithoutPostings_MatchesUnitShares(t *testing.T) {
	// GIVEN: a 04* account charging 500.00 per unit and no postings in 2024
	// THEN: the community total counts 500.00 per unit, so the unit shares
	//       add up to it and the cost share stays with the charges

	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4500", Label: "Stellplatzmiete", KeyCode: "04*", Category: weg.CategoryAllocatable, Active: true, FixedAmount: weg.DecimalPtr(dec("500.00"))})
	agg := newAggregator(m)

	community, err := agg.CommunityCosts(context.Background(), testCommunity, testYear)
	require.NoError(t, err)
	assert.True(t, dec("2000.00").Equal(community.Allocatable), "allocatable %s", community.Allocatable)
	assert.True(t, community.Total.Equal(community.Distributed), "total %s, distributed %s", community.Total, community.Distributed)

	costs, err := agg.UnitCosts(context.Background(), mustUnit(t, m, unitA), testYear)
	require.NoError(t, err)
	assert.True(t, dec("790.00").Equal(costs.UnitTotal), "unit total %s", costs.UnitTotal)
	assert.True(t, dec("2000.00").Equal(costs.Total), "total %s", costs.Total)
}

func TestCommunityCosts_Fixed_UnlinkedPostingNotInTotal(t *testing.T) {
	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4500", Label: "Mahngebühr", KeyCode: "04*", Category: weg.CategoryNonAllocatable, Active: true})
	m.AddBooking(weg.Booking{ID: "fee-a", CommunityID: testCommunity, Date: date(testYear, time.May, 2), Amount: dec("-25.00"), Category: weg.CategoryNonAllocatable, AccountNumber: "4500", UnitID: unitA})
	addCost(m, "fee-unlinked", "4500", weg.CategoryNonAllocatable, "-80.00")

	community, err := newAggregator(m).CommunityCosts(context.Background(), testCommunity, testYear)
	require.NoError(t, err)

	assert.True(t, dec("25.00").Equal(community.NonAllocatable), "non-allocatable %s", community.NonAllocatable)
	assert.True(t, community.Total.Equal(community.Distributed), "total %s, distributed %s", community.Total, community.Distributed)
}

func TestUnitCosts_InvalidAccountKey_Errors(t *testing.T) {
	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4700", Label: "Kaputt", KeyCode: "7", Category: weg.CategoryAllocatable, Active: true})

	_, err := newAggregator(m).UnitCosts(context.Background(), mustUnit(t, m, unitA), testYear)

	assert.ErrorIs(t, err, weg.ErrInvalidKey)
}
