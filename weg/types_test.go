package weg_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/weg-settlement/weg"
)

func TestParseFraction(t *testing.T) {
	tests := []struct {
		in      string
		want    weg.Fraction
		wantErr bool
	}{
		{in: "290/1000", want: weg.Fraction{Num: 290, Den: 1000}},
		{in: " 2 / 6 ", want: weg.Fraction{Num: 2, Den: 6}},
		{in: "0/1000", want: weg.Fraction{Num: 0, Den: 1000}},
		{in: "1/1", want: weg.Fraction{Num: 1, Den: 1}},
		{in: "290", wantErr: true},
		{in: "1/0", wantErr: true},
		{in: "-1/10", wantErr: true},
		{in: "11/10", wantErr: true},
		{in: "a/b", wantErr: true},
		{in: "1/2/3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := weg.ParseFraction(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFraction_Apply_NoIntermediateRounding(t *testing.T) {
	f := weg.MustParseFraction("1/3")

	got := f.Apply(decimal.RequireFromString("100.00"))

	assert.Equal(t, "33.33", got.RoundBank(2).StringFixed(2))
	assert.True(t, weg.MustParseFraction("290/1000").Percent().Equal(decimal.NewFromInt(29)))
	assert.Equal(t, "290/1000", weg.MustParseFraction("290/1000").String())
}

func TestBooking_EffectiveYear(t *testing.T) {
	b := weg.Booking{Date: time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 2025, b.EffectiveYear())

	b.SettlementYear = weg.IntPtr(2024)
	assert.Equal(t, 2024, b.EffectiveYear())
}

func TestBookingFilter_Matches(t *testing.T) {
	b := weg.Booking{
		CommunityID: "weg-1",
		Date:        time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		Category:    weg.CategoryAdvancePayment,
		UnitID:      "unit-1",
	}

	assert.True(t, weg.BookingFilter{CommunityID: "weg-1", Year: 2024}.Matches(b))
	assert.True(t, weg.BookingFilter{CommunityID: "weg-1", Year: 2024, UnitID: "unit-1", Category: weg.CategoryAdvancePayment}.Matches(b))
	assert.False(t, weg.BookingFilter{CommunityID: "weg-2", Year: 2024}.Matches(b))
	assert.False(t, weg.BookingFilter{CommunityID: "weg-1", Year: 2023}.Matches(b))
	assert.False(t, weg.BookingFilter{CommunityID: "weg-1", Year: 2024, UnitID: "unit-2"}.Matches(b))
	assert.False(t, weg.BookingFilter{CommunityID: "weg-1", Year: 2024, Category: weg.CategoryReserve}.Matches(b))
}

func TestCategory_IsCost(t *testing.T) {
	for _, c := range weg.CostCategories {
		assert.True(t, c.IsCost(), c)
	}
	assert.False(t, weg.CategoryAdvancePayment.IsCost())
}

// =============================================================================
// PERIOD
// =============================================================================

func TestMonthsOwned(t *testing.T) {
	at := func(y int, m time.Month, d int) *time.Time {
		ts := time.Date(y, m, d, 14, 30, 0, 0, time.UTC)
		return &ts
	}
	tests := []struct {
		name    string
		entered *time.Time
		want    int
	}{
		{"always owned", nil, 12},
		{"entered before the year", at(2019, time.June, 1), 12},
		{"entered 1 January", at(2024, time.January, 1), 12},
		{"entered mid July", at(2024, time.July, 15), 6},
		{"entered in December", at(2024, time.December, 31), 1},
		{"entered after the year", at(2025, time.February, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, weg.MonthsOwned(2024, tt.entered))
		})
	}
}

func TestPeriod_Contains(t *testing.T) {
	p := weg.Year(2024)

	assert.True(t, p.Contains(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.Contains(time.Date(2024, time.December, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "[2024-01-01, 2024-12-31]", p.String())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorHelpers(t *testing.T) {
	missing := &weg.ValidationError{UnitID: "unit-1", Year: 2024, Field: "heating_share", Message: "not delivered", Kind: weg.ErrMissingExternalData}
	plain := &weg.ValidationError{Field: "year", Year: 1990, Message: "out of range"}
	notFound := &weg.ValidationError{UnitID: "x", Field: "unit", Kind: weg.ErrUnitNotFound}

	assert.True(t, weg.IsClientError(missing))
	assert.True(t, weg.IsClientError(plain))
	assert.ErrorIs(t, plain, weg.ErrInvalidInput)
	assert.True(t, weg.IsClientError(&weg.InvalidKeyError{Code: "7"}))
	assert.True(t, weg.IsNotFound(notFound))
	assert.False(t, weg.IsClientError(notFound))

	all := weg.ValidationErrors{plain, missing}
	wrapped := fmt.Errorf("validate: %w", all)
	assert.ErrorIs(t, wrapped, weg.ErrMissingExternalData)
	assert.Contains(t, all.Error(), "2 validation error(s)")
	assert.Contains(t, all.Error(), "unit unit-1, year 2024, heating_share")
}

func TestValidationError_YearIndependent_OmitsYear(t *testing.T) {
	unitLevel := &weg.ValidationError{UnitID: "unit-c", Field: "mea", Message: "ownership fraction required for key 05*"}
	communityLevel := &weg.ValidationError{Field: "community.units", Message: "no units"}

	assert.Equal(t, "unit unit-c, mea: ownership fraction required for key 05*", unitLevel.Error())
	assert.Equal(t, "community.units: no units", communityLevel.Error())

	err := error(&weg.GenerationError{UnitID: "unit-a", Year: 2024, Stage: "aggregating", Err: unitLevel})
	assert.NotContains(t, err.Error(), "year 0")
	assert.Contains(t, err.Error(), "year 2024")
}

func TestGenerationError_UnwrapsBoth(t *testing.T) {
	cause := errors.New("disk on fire")
	err := error(&weg.GenerationError{UnitID: "unit-1", Year: 2024, Stage: "aggregating", Err: cause})

	assert.ErrorIs(t, err, weg.ErrGenerationFailed)
	assert.ErrorIs(t, err, cause)
	assert.False(t, weg.IsClientError(err))
	assert.Contains(t, err.Error(), "unit unit-1, year 2024 (aggregating)")
}
