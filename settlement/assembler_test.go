package settlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// END-TO-END
// =============================================================================

func TestGenerateStatement_EndToEnd(t *testing.T) {
	// GIVEN: unit-a, MEA 290/1000, community allocatable 1000.00 under 05*
	//        Soll 300.00, Ist 300.00
	// THEN: share 290.00, Differenz 0.00, tax base 290.00 -> reduction 58.00,
	//       cost share 29 % == MEA 29 %

	m := newCommunity(t)
	m.AddBankBalance(weg.BankBalance{CommunityID: testCommunity, Year: testYear, Account: "Girokonto", Opening: dec("4200.00"), Closing: dec("3900.00")})
	a := newAssembler(t, m)

	stmt, err := a.GenerateStatement(context.Background(), unitA, testYear)
	require.NoError(t, err)

	assert.Equal(t, settlement.StatementID(unitA, testYear), stmt.ID)
	assert.Equal(t, "Petra Albers", stmt.Unit.OwnerName)
	assert.Equal(t, "WEG Lindenstraße 12", stmt.Community.Name)
	assert.Equal(t, 2, stmt.Community.Units)

	assert.True(t, dec("290.00").Equal(stmt.Costs.Allocatable.UnitShare))
	assert.True(t, dec("1000.00").Equal(stmt.CommunityCosts.Total))

	assert.True(t, dec("300.00").Equal(stmt.Payments.Soll))
	assert.True(t, dec("300.00").Equal(stmt.Payments.Ist))
	assert.True(t, stmt.Payments.Differenz.IsZero())
	assert.True(t, dec("600.00").Equal(stmt.CommunityPayments.Ist))

	assert.True(t, dec("290.00").Equal(stmt.Tax.EligibleBase))
	assert.True(t, dec("58.00").Equal(stmt.Tax.Reduction))

	assert.True(t, dec("29").Equal(stmt.CostSharePercent()), "cost share %s", stmt.CostSharePercent())
	assert.True(t, dec("29").Equal(stmt.Unit.MEAPercent), "mea %s", stmt.Unit.MEAPercent)

	assert.True(t, dec("570.00").Equal(stmt.External.Total))
	assert.True(t, dec("1770.00").Equal(stmt.ExternalTotals.Total))

	// 290 costs + 570 external - 300 paid = 560 to pay
	assert.True(t, dec("860.00").Equal(stmt.Outcome.Charges))
	assert.True(t, dec("-560.00").Equal(stmt.Outcome.Balance))
	assert.Equal(t, settlement.OutcomeAdditionalPayment, stmt.Outcome.Kind)

	require.Len(t, stmt.Balances.Accounts, 1)
	assert.True(t, dec("-300.00").Equal(stmt.Balances.TotalChange))

	assert.Equal(t, time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC), stmt.GeneratedAt)
}

func TestGenerateStatement_Idempotent(t *testing.T) {
	m := newCommunity(t)
	a := newAssembler(t, m)

	first, err := a.GenerateStatement(context.Background(), unitA, testYear)
	require.NoError(t, err)

	tick := 0
	a.Now = func() time.Time {
		tick++
		return time.Date(2025, time.March, 1, 9, 0, tick, 0, time.UTC)
	}
	second, err := a.GenerateStatement(context.Background(), unitA, testYear)
	require.NoError(t, err)

	assert.NotEqual(t, first.GeneratedAt, second.GeneratedAt)
	second.GeneratedAt = first.GeneratedAt
	assert.Equal(t, first, second)
}

func TestGenerateStatement_DoesNotAliasUnitRecord(t *testing.T) {
	// GIVEN: a statement for unit-a with special share 2/6
	// WHEN: a caller changes the statement's special share
	// THEN: the stored unit and later statements are unaffected

	m := newCommunity(t)
	a := newAssembler(t, m)
	ctx := context.Background()

	first, err := a.GenerateStatement(ctx, unitA, testYear)
	require.NoError(t, err)
	require.NotNil(t, first.Unit.SpecialShare)
	first.Unit.SpecialShare.Num = 5

	assert.Equal(t, "2/6", mustUnit(t, m, unitA).SpecialShare.String())

	second, err := a.GenerateStatement(ctx, unitA, testYear)
	require.NoError(t, err)
	assert.Equal(t, "2/6", second.Unit.SpecialShare.String())
}

func TestGenerateStatement_ConcurrentCalls_Independent(t *testing.T) {
	m := newCommunity(t)
	a := newAssembler(t, m)

	var wg sync.WaitGroup
	results := make([]*settlement.Statement, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit := unitA
			if i%2 == 1 {
				unit = unitB
			}
			results[i], errs[i] = a.GenerateStatement(context.Background(), unit, testYear)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
	}
	assert.True(t, dec("290.00").Equal(results[0].Costs.UnitTotal))
	assert.True(t, dec("710.00").Equal(results[1].Costs.UnitTotal))
	assert.Equal(t, results[0].Costs, results[2].Costs)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestGenerateStatement_ExternalDataAbsent_AbortsBeforeAggregating(t *testing.T) {
	// GIVEN: no heating and no water record for unit-a
	// THEN: ValidateInputs reports both, GenerateStatement returns no statement

	m := newCommunity(t)
	m.SetExternalCosts(weg.ExternalCostRecord{UnitID: unitA, Year: testYear})
	a := newAssembler(t, m)

	errs, err := a.ValidateInputs(context.Background(), unitA, testYear)
	require.NoError(t, err)
	require.Len(t, errs, 2)

	stmt, err := a.GenerateStatement(context.Background(), unitA, testYear)
	assert.Nil(t, stmt)
	assert.ErrorIs(t, err, weg.ErrMissingExternalData)
	assert.True(t, weg.IsClientError(err))
	assert.False(t, errors.Is(err, weg.ErrGenerationFailed))
}

func TestValidateInputs_MissingMEA(t *testing.T) {
	m := newCommunity(t)
	m.AddUnit(weg.Unit{ID: unitA, CommunityID: testCommunity, Label: "WE 1"})
	a := newAssembler(t, m)

	errs, err := a.ValidateInputs(context.Background(), unitA, testYear)
	require.NoError(t, err)

	require.Len(t, errs, 1)
	assert.Equal(t, "mea", errs[0].Field)
	assert.Equal(t, unitA, errs[0].UnitID)
}

func TestValidateInputs_OtherUnitWithoutMEA_BlocksStatement(t *testing.T) {
	// GIVEN: unit-c has complete metering data but no MEA, and 4000 is a 05* account
	// WHEN: unit-a is validated and generated
	// THEN: validation names unit-c and generation stops before aggregating

	m := newCommunity(t)
	m.AddUnit(weg.Unit{ID: "unit-c", CommunityID: testCommunity, Label: "WE 3"})
	m.SetExternalCosts(weg.ExternalCostRecord{UnitID: "unit-c", Year: testYear, HeatingShare: weg.DecimalPtr(dec("300.00")), WaterShare: weg.DecimalPtr(dec("80.00"))})
	a := newAssembler(t, m)

	errs, err := a.ValidateInputs(context.Background(), unitA, testYear)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, weg.UnitID("unit-c"), errs[0].UnitID)
	assert.Equal(t, "mea", errs[0].Field)

	stmt, err := a.GenerateStatement(context.Background(), unitA, testYear)
	assert.Nil(t, stmt)
	assert.ErrorIs(t, err, weg.ErrInvalidInput)
	assert.False(t, errors.Is(err, weg.ErrGenerationFailed))
}

func TestValidateInputs_OtherUnitWithoutMEA_NoMEAAccount(t *testing.T) {
	m := newCommunity(t)
	require.NoError(t, m.SaveAccount(context.Background(), weg.CostAccount{CommunityID: testCommunity, Number: "4000", Label: "Hausmeister", KeyCode: "03*", Category: weg.CategoryAllocatable, Active: true}))
	m.AddUnit(weg.Unit{ID: "unit-c", CommunityID: testCommunity, Label: "WE 3"})
	m.SetExternalCosts(weg.ExternalCostRecord{UnitID: "unit-c", Year: testYear, HeatingShare: weg.DecimalPtr(dec("300.00")), WaterShare: weg.DecimalPtr(dec("80.00"))})
	a := newAssembler(t, m)

	errs, err := a.ValidateInputs(context.Background(), unitA, testYear)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateInputs_YearBounds(t *testing.T) {
	m := newCommunity(t)
	a := newAssembler(t, m) // now = 2025

	for _, year := range []int{1999, 2027} {
		errs, err := a.ValidateInputs(context.Background(), unitA, year)
		require.NoError(t, err)
		fields := make([]string, len(errs))
		for i, e := range errs {
			fields[i] = e.Field
		}
		assert.Contains(t, fields, "year", "year %d", year)
	}

	// 2026 = current year + 1 is allowed; only external data is missing
	errs, err := a.ValidateInputs(context.Background(), unitA, 2026)
	require.NoError(t, err)
	for _, e := range errs {
		assert.NotEqual(t, "year", e.Field)
	}
}

func TestValidateInputs_UnknownUnitAndCommunity(t *testing.T) {
	m := newCommunity(t)
	m.AddUnit(weg.Unit{ID: "orphan", CommunityID: "weg-gone", MEA: fraction("1/10")})
	a := newAssembler(t, m)

	_, err := a.GenerateStatement(context.Background(), "nobody", testYear)
	assert.True(t, weg.IsNotFound(err))
	assert.ErrorIs(t, err, weg.ErrUnitNotFound)

	_, err = a.GenerateStatement(context.Background(), "orphan", testYear)
	assert.ErrorIs(t, err, weg.ErrCommunityNotFound)
}

func TestGenerateStatement_DownstreamFailure_WrappedWithContext(t *testing.T) {
	m := newCommunity(t)
	m.AddAccount(weg.CostAccount{CommunityID: testCommunity, Number: "4700", Label: "Kaputt", KeyCode: "5*", Category: weg.CategoryAllocatable, Active: true})
	a := newAssembler(t, m)

	stmt, err := a.GenerateStatement(context.Background(), unitA, testYear)

	assert.Nil(t, stmt)
	var genErr *weg.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, unitA, genErr.UnitID)
	assert.Equal(t, testYear, genErr.Year)
	assert.Equal(t, string(settlement.StageAggregating), genErr.Stage)
	assert.ErrorIs(t, err, weg.ErrGenerationFailed)
	assert.ErrorIs(t, err, weg.ErrInvalidKey)
}

func TestNewAssembler_RequiresSources(t *testing.T) {
	_, err := settlement.NewAssembler(settlement.Sources{}, settlement.DefaultConfig(), nil)
	assert.Error(t, err)
}
