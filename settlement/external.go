package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// EXTERNAL COSTS - Heating (01*) and water (02*) apportioned upstream
// =============================================================================

// ExternalCosts is one unit's share of the externally apportioned costs.
type ExternalCosts struct {
	Heating decimal.Decimal
	Water   decimal.Decimal
	Total   decimal.Decimal
}

// ExternalTotals are the community-wide sums over all delivered records.
type ExternalTotals struct {
	Heating decimal.Decimal
	Water   decimal.Decimal
	Total   decimal.Decimal
	Units   int
}

// ExternalCostMerger ingests pre-apportioned costs. It never recomputes a
// share; it only checks presence and sign and sums.
type ExternalCostMerger struct {
	Source weg.ExternalCostSource
	Units  interface {
		ListUnits(ctx context.Context, communityID weg.CommunityID) ([]weg.Unit, error)
	}
}

func NewExternalCostMerger(source weg.ExternalCostSource, repo weg.Repository) *ExternalCostMerger {
	return &ExternalCostMerger{Source: source, Units: repo}
}

// AllExternalCosts returns the unit's heating and water shares. Absent
// data is an error, not zero.
func (m *ExternalCostMerger) AllExternalCosts(ctx context.Context, unit weg.Unit, year int) (ExternalCosts, error) {
	heating, err := m.Source.HeatingShare(ctx, unit.ID, year)
	if err != nil {
		return ExternalCosts{}, fmt.Errorf("heating share of %s/%d: %w", unit.ID, year, err)
	}
	water, err := m.Source.WaterShare(ctx, unit.ID, year)
	if err != nil {
		return ExternalCosts{}, fmt.Errorf("water share of %s/%d: %w", unit.ID, year, err)
	}

	if errs := checkShares(unit.ID, year, heating, water); len(errs) > 0 {
		return ExternalCosts{}, errs
	}

	return ExternalCosts{
		Heating: *heating,
		Water:   *water,
		Total:   heating.Add(*water),
	}, nil
}

// TotalExternalCostsForCommunity sums every delivered record. Absent
// shares contribute nothing; ValidateExternalCostData reports them.
func (m *ExternalCostMerger) TotalExternalCostsForCommunity(ctx context.Context, communityID weg.CommunityID, year int) (ExternalTotals, error) {
	records, err := m.Source.CommunityRecords(ctx, communityID, year)
	if err != nil {
		return ExternalTotals{}, fmt.Errorf("external records of %s/%d: %w", communityID, year, err)
	}

	totals := ExternalTotals{Heating: decimal.Zero, Water: decimal.Zero}
	for _, r := range records {
		if r.HeatingShare != nil {
			totals.Heating = totals.Heating.Add(*r.HeatingShare)
		}
		if r.WaterShare != nil {
			totals.Water = totals.Water.Add(*r.WaterShare)
		}
		totals.Units++
	}
	totals.Total = totals.Heating.Add(totals.Water)
	return totals, nil
}

// ValidateExternalCostData checks every unit of the community. Community
// totals are sums over all units, so one missing unit blocks all.
func (m *ExternalCostMerger) ValidateExternalCostData(ctx context.Context, communityID weg.CommunityID, year int) (weg.ValidationErrors, error) {
	units, err := m.Units.ListUnits(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("units of %s: %w", communityID, err)
	}

	var errs weg.ValidationErrors
	for _, u := range units {
		heating, err := m.Source.HeatingShare(ctx, u.ID, year)
		if err != nil {
			return nil, fmt.Errorf("heating share of %s/%d: %w", u.ID, year, err)
		}
		water, err := m.Source.WaterShare(ctx, u.ID, year)
		if err != nil {
			return nil, fmt.Errorf("water share of %s/%d: %w", u.ID, year, err)
		}
		errs = append(errs, checkShares(u.ID, year, heating, water)...)
	}
	return errs, nil
}

func checkShares(unitID weg.UnitID, year int, heating, water *decimal.Decimal) weg.ValidationErrors {
	var errs weg.ValidationErrors
	check := func(field string, v *decimal.Decimal) {
		switch {
		case v == nil:
			errs = append(errs, &weg.ValidationError{
				UnitID: unitID, Year: year, Field: field,
				Message: "no apportioned amount delivered", Kind: weg.ErrMissingExternalData,
			})
		case v.IsNegative():
			errs = append(errs, &weg.ValidationError{
				UnitID: unitID, Year: year, Field: field,
				Message: fmt.Sprintf("negative apportioned amount %s", v.StringFixed(2)), Kind: weg.ErrInvalidInput,
			})
		}
	}
	check("heating_share", heating)
	check("water_share", water)
	return errs
}
