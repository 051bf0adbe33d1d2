package plausibility

import (
	"fmt"
	"strings"

	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
)

// BuildPrompt summarises the statement, the failed rules and recent user
// reports in plain text for the provider.
func BuildPrompt(stmt *settlement.Statement, failed []CheckResult, feedback []weg.Feedback) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Settlement %d for unit %s (%s) of %s.\n", stmt.Year, stmt.Unit.Label, stmt.Unit.ID, stmt.Community.Name)
	fmt.Fprintf(&b, "MEA %s (%s%%), %d units in the community, %d months billed.\n",
		stmt.Unit.MEA, stmt.Unit.MEAPercent.StringFixed(2), stmt.Community.Units, stmt.Unit.Months)

	b.WriteString("\nCosts (community total / unit share):\n")
	for _, bucket := range []settlement.CostBucket{stmt.Costs.Allocatable, stmt.Costs.NonAllocatable, stmt.Costs.Reserve} {
		fmt.Fprintf(&b, "- %s: %s / %s\n", bucket.Category, bucket.Total.StringFixed(2), bucket.UnitShare.StringFixed(2))
		for _, l := range bucket.Lines {
			fmt.Fprintf(&b, "  - %s %s [%s]: %s / %s\n", l.Account, l.Label, l.KeyCode, l.Total.StringFixed(2), l.UnitShare.StringFixed(2))
		}
	}
	fmt.Fprintf(&b, "Unit cost share: %s%% of allocated community costs.\n", stmt.CostSharePercent().StringFixed(2))

	fmt.Fprintf(&b, "\nHeating %s, water %s (community %s / %s).\n",
		stmt.External.Heating.StringFixed(2), stmt.External.Water.StringFixed(2),
		stmt.ExternalTotals.Heating.StringFixed(2), stmt.ExternalTotals.Water.StringFixed(2))
	fmt.Fprintf(&b, "Advance payments: Soll %s, Ist %s, Differenz %s (%s).\n",
		stmt.Payments.Soll.StringFixed(2), stmt.Payments.Ist.StringFixed(2), stmt.Payments.Differenz.StringFixed(2), stmt.Payments.Status)
	fmt.Fprintf(&b, "Tax: eligible base %s, rate %s, cap %s, reduction %s.\n",
		stmt.Tax.EligibleBase.StringFixed(2), stmt.Tax.Rate.String(), stmt.Tax.Cap.StringFixed(2), stmt.Tax.Reduction.StringFixed(2))
	fmt.Fprintf(&b, "Result: %s %s.\n", stmt.Outcome.Kind, stmt.Outcome.Balance.Abs().StringFixed(2))

	if len(failed) > 0 {
		b.WriteString("\nRule findings:\n")
		for _, r := range failed {
			fmt.Fprintf(&b, "- [%s/%s] %s: %s\n", r.Category, r.Severity, r.Rule, r.Message)
		}
	} else {
		b.WriteString("\nAll rule checks passed.\n")
	}

	if len(feedback) > 0 {
		b.WriteString("\nProblems users reported that earlier checks missed:\n")
		for _, fb := range feedback {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(fb.Message))
		}
	}
	return b.String()
}
