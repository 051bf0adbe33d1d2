package settlement

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// TAX DEDUCTION - Capped reduction on labor costs (§35a EStG)
// =============================================================================

// TaxLine is one eligible cost line.
type TaxLine struct {
	Account   string
	Label     string
	UnitShare decimal.Decimal
}

// TaxDeduction is the unit's eligible base and the capped reduction.
type TaxDeduction struct {
	Lines        []TaxLine
	EligibleBase decimal.Decimal
	Rate         decimal.Decimal
	Cap          decimal.Decimal

	// Reduction is min(base * rate, cap), never negative.
	Reduction decimal.Decimal
	Capped    bool
}

// TaxCalculator derives the reduction from the allocatable bucket.
type TaxCalculator struct {
	Config Config
}

func NewTaxCalculator(cfg Config) *TaxCalculator {
	return &TaxCalculator{Config: cfg}
}

// Calculate sums the unit's share of tax-deductible allocatable lines.
func (c *TaxCalculator) Calculate(costs CostBreakdown) TaxDeduction {
	base := decimal.Zero
	var lines []TaxLine
	for _, l := range costs.Allocatable.Lines {
		if !l.TaxDeductible && !c.Config.isTaxDeductible(l.Account) {
			continue
		}
		lines = append(lines, TaxLine{Account: l.Account, Label: l.Label, UnitShare: l.UnitShare})
		base = base.Add(l.UnitShare)
	}

	result := c.Reduce(base)
	result.Lines = lines
	return result
}

// Reduce applies rate and cap to an eligible base.
func (c *TaxCalculator) Reduce(base decimal.Decimal) TaxDeduction {
	result := TaxDeduction{
		EligibleBase: base,
		Rate:         c.Config.TaxRate,
		Cap:          c.Config.TaxCap,
		Reduction:    decimal.Zero,
	}
	if !base.IsPositive() {
		return result
	}

	raw := round2(base.Mul(c.Config.TaxRate))
	if raw.GreaterThan(c.Config.TaxCap) {
		result.Reduction = c.Config.TaxCap
		result.Capped = true
	} else {
		result.Reduction = raw
	}
	return result
}
