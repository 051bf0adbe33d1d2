package plausibility

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/settlement"
)

// =============================================================================
// RULE CHECKS
// =============================================================================

const (
	RuleExternalData    = "external_data_present"
	RuleAdvancePayments = "advance_payments_received"
	RuleCostShare       = "cost_share_matches_mea"
	RuleTaxCap          = "tax_reduction_within_cap"
	RuleHeatingLevel    = "heating_cost_level"
	RuleTaxRatio        = "tax_reduction_ratio"
)

func (c *Checker) rules(stmt *settlement.Statement) []CheckResult {
	return []CheckResult{
		checkExternalData(stmt),
		checkAdvancePayments(stmt),
		c.checkCostShare(stmt),
		checkTaxCap(stmt),
		c.checkHeating(stmt),
		c.checkTaxRatio(stmt),
	}
}

func pass(rule string, cat Category, sev Severity, msg string) CheckResult {
	return CheckResult{Rule: rule, Category: cat, Severity: sev, Status: CheckPass, Message: msg}
}

// -----------------------------------------------------------------------------
// Data completeness
// -----------------------------------------------------------------------------

func checkExternalData(stmt *settlement.Statement) CheckResult {
	if stmt.External.Heating.IsZero() && stmt.External.Water.IsZero() {
		return CheckResult{
			Rule:     RuleExternalData,
			Category: CategoryCompleteness,
			Severity: SeverityHigh,
			Status:   CheckFail,
			Message:  "neither heating nor water costs are charged to the unit",
		}
	}
	return pass(RuleExternalData, CategoryCompleteness, SeverityHigh, "heating and water costs present")
}

func checkAdvancePayments(stmt *settlement.Statement) CheckResult {
	if stmt.Payments.Ist.IsZero() {
		return CheckResult{
			Rule:     RuleAdvancePayments,
			Category: CategoryCompleteness,
			Severity: SeverityCritical,
			Status:   CheckFail,
			Message:  "no advance payments received for the year",
			Details:  map[string]any{"soll": stmt.Payments.Soll.StringFixed(2)},
		}
	}
	return pass(RuleAdvancePayments, CategoryCompleteness, SeverityCritical, "advance payments received")
}

// -----------------------------------------------------------------------------
// Calculation
// -----------------------------------------------------------------------------

// checkCostShare compares the unit's share of allocated costs with its
// MEA share. Units on 04* or 06* keys deviate legitimately; they are still
// reported, with the keys listed for review.
func (c *Checker) checkCostShare(stmt *settlement.Statement) CheckResult {
	if stmt.CommunityCosts.Total.IsZero() {
		return pass(RuleCostShare, CategoryCalculation, SeverityHigh, "no allocated community costs")
	}

	share := stmt.CostSharePercent()
	mea := stmt.Unit.MEAPercent
	deviation := share.Sub(mea).Abs()
	details := map[string]any{
		"cost_share_percent": share.StringFixed(2),
		"mea_percent":        mea.StringFixed(2),
		"deviation_pp":       deviation.StringFixed(2),
		"tolerance_pp":       c.Thresholds.CostShareTolerance.StringFixed(2),
	}

	if deviation.LessThanOrEqual(c.Thresholds.CostShareTolerance) {
		r := pass(RuleCostShare, CategoryCalculation, SeverityHigh, "cost share consistent with MEA")
		r.Details = details
		return r
	}

	var explained []string
	for _, kind := range []settlement.KeyKind{settlement.KeyFixed, settlement.KeySpecial} {
		if stmt.Costs.UsesKey(kind) {
			explained = append(explained, settlement.Key{Kind: kind}.Label())
		}
	}
	msg := fmt.Sprintf("cost share %s%% deviates %s pp from MEA %s%%", share.StringFixed(2), deviation.StringFixed(2), mea.StringFixed(2))
	if len(explained) > 0 {
		details["review_keys"] = explained
		msg += "; unit uses non-MEA keys, review manually"
	}
	return CheckResult{
		Rule:     RuleCostShare,
		Category: CategoryCalculation,
		Severity: SeverityHigh,
		Status:   CheckFail,
		Message:  msg,
		Details:  details,
	}
}

// checkTaxCap guards against a calculator that returned the uncapped value.
func checkTaxCap(stmt *settlement.Statement) CheckResult {
	if stmt.Tax.Reduction.GreaterThan(stmt.Tax.Cap) {
		return CheckResult{
			Rule:     RuleTaxCap,
			Category: CategoryCalculation,
			Severity: SeverityCritical,
			Status:   CheckFail,
			Message:  fmt.Sprintf("tax reduction %s exceeds statutory cap %s", stmt.Tax.Reduction.StringFixed(2), stmt.Tax.Cap.StringFixed(2)),
			Details: map[string]any{
				"reduction": stmt.Tax.Reduction.StringFixed(2),
				"cap":       stmt.Tax.Cap.StringFixed(2),
			},
		}
	}
	return pass(RuleTaxCap, CategoryCalculation, SeverityCritical, "tax reduction within cap")
}

func (c *Checker) checkHeating(stmt *settlement.Statement) CheckResult {
	if stmt.External.Heating.GreaterThan(c.Thresholds.HeatingWarning) {
		return CheckResult{
			Rule:     RuleHeatingLevel,
			Category: CategoryCalculation,
			Severity: SeverityMedium,
			Status:   CheckWarning,
			Message:  fmt.Sprintf("heating share %s above %s", stmt.External.Heating.StringFixed(2), c.Thresholds.HeatingWarning.StringFixed(2)),
			Details:  map[string]any{"heating": stmt.External.Heating.StringFixed(2)},
		}
	}
	return pass(RuleHeatingLevel, CategoryCalculation, SeverityMedium, "heating share within expected range")
}

// -----------------------------------------------------------------------------
// Compliance
// -----------------------------------------------------------------------------

func (c *Checker) checkTaxRatio(stmt *settlement.Statement) CheckResult {
	base := stmt.Tax.EligibleBase
	if !base.IsPositive() {
		return pass(RuleTaxRatio, CategoryCompliance, SeverityMedium, "no eligible tax base")
	}
	ratio := stmt.Tax.Reduction.Div(base)
	if ratio.GreaterThan(c.Thresholds.TaxRatioWarning) {
		return CheckResult{
			Rule:     RuleTaxRatio,
			Category: CategoryCompliance,
			Severity: SeverityMedium,
			Status:   CheckWarning,
			Message:  fmt.Sprintf("tax reduction is %s%% of the eligible base", percent(ratio)),
			Details: map[string]any{
				"ratio":         ratio.StringFixed(4),
				"eligible_base": base.StringFixed(2),
			},
		}
	}
	return pass(RuleTaxRatio, CategoryCompliance, SeverityMedium, "tax reduction ratio as expected")
}

func percent(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).StringFixed(1)
}
