package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config is the engine configuration, passed in at construction.
// Nothing in this package reads process-wide state.
type Config struct {
	// TaxRate is the statutory reduction rate on eligible labor costs (0.20).
	TaxRate decimal.Decimal

	// TaxCap is the annual ceiling of the reduction (1200.00).
	TaxCap decimal.Decimal

	// TaxDeductibleAccounts lists account numbers that are eligible in
	// addition to accounts flagged TaxDeductible.
	TaxDeductibleAccounts []string

	// MinYear is the earliest settlement year accepted.
	MinYear int

	// Concurrency bounds per-unit work in community-wide aggregation.
	Concurrency int
}

// DefaultConfig returns the statutory defaults.
func DefaultConfig() Config {
	return Config{
		TaxRate:     decimal.RequireFromString("0.20"),
		TaxCap:      decimal.RequireFromString("1200.00"),
		MinYear:     2000,
		Concurrency: 8,
	}
}

func (c Config) Validate() error {
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax rate %s out of range [0, 1]", c.TaxRate)
	}
	if c.TaxCap.IsNegative() {
		return fmt.Errorf("tax cap %s must not be negative", c.TaxCap)
	}
	if c.MinYear <= 0 {
		return fmt.Errorf("min year %d must be positive", c.MinYear)
	}
	return nil
}

func (c Config) isTaxDeductible(account string) bool {
	for _, a := range c.TaxDeductibleAccounts {
		if a == account {
			return true
		}
	}
	return false
}

func (c Config) concurrency() int {
	if c.Concurrency <= 0 {
		return 1
	}
	return c.Concurrency
}

// round2 is the single rounding rule: half-even to cents.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}
