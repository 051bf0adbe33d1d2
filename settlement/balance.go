package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// BALANCE REPORT - Development of the community's bank accounts
// =============================================================================

// AccountDevelopment is one bank account's movement over the year.
type AccountDevelopment struct {
	Account string
	Opening decimal.Decimal
	Closing decimal.Decimal
	Change  decimal.Decimal
}

// BalanceReport is the community's balance development for the year.
type BalanceReport struct {
	Accounts []AccountDevelopment

	TotalOpening decimal.Decimal
	TotalClosing decimal.Decimal
	TotalChange  decimal.Decimal

	// ReserveContributions is what the community booked to the reserve.
	ReserveContributions decimal.Decimal
}

// BalanceReporter reads bank balances. No balances yields an empty report.
type BalanceReporter struct {
	Source weg.BankBalanceSource
}

func NewBalanceReporter(source weg.BankBalanceSource) *BalanceReporter {
	return &BalanceReporter{Source: source}
}

func (r *BalanceReporter) Report(ctx context.Context, communityID weg.CommunityID, year int, community CommunityCosts) (BalanceReport, error) {
	report := BalanceReport{
		TotalOpening:         decimal.Zero,
		TotalClosing:         decimal.Zero,
		TotalChange:          decimal.Zero,
		ReserveContributions: community.Reserve,
	}
	if r.Source == nil {
		return report, nil
	}

	balances, err := r.Source.BankBalances(ctx, communityID, year)
	if err != nil {
		return BalanceReport{}, fmt.Errorf("bank balances of %s/%d: %w", communityID, year, err)
	}
	for _, b := range balances {
		change := b.Closing.Sub(b.Opening)
		report.Accounts = append(report.Accounts, AccountDevelopment{
			Account: b.Account,
			Opening: b.Opening,
			Closing: b.Closing,
			Change:  change,
		})
		report.TotalOpening = report.TotalOpening.Add(b.Opening)
		report.TotalClosing = report.TotalClosing.Add(b.Closing)
		report.TotalChange = report.TotalChange.Add(change)
	}
	return report, nil
}
