package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// COST BREAKDOWN - A unit's costs per category, itemized by account
// =============================================================================

// CostLine is one account's community total and the unit's share of it.
// Amounts are costs: positive means the community paid.
type CostLine struct {
	Account       string
	Label         string
	KeyCode       string
	KeyLabel      string
	TaxDeductible bool
	Total         decimal.Decimal
	UnitShare     decimal.Decimal
}

// CostBucket groups the lines of one category.
type CostBucket struct {
	Category  weg.Category
	Lines     []CostLine
	Total     decimal.Decimal
	UnitShare decimal.Decimal
}

// CostBreakdown is the three-bucket result for one unit and year.
type CostBreakdown struct {
	Allocatable    CostBucket
	NonAllocatable CostBucket
	Reserve        CostBucket

	Total     decimal.Decimal
	UnitTotal decimal.Decimal
}

// Bucket returns the bucket for a cost category.
func (b *CostBreakdown) Bucket(c weg.Category) *CostBucket {
	switch c {
	case weg.CategoryAllocatable:
		return &b.Allocatable
	case weg.CategoryNonAllocatable:
		return &b.NonAllocatable
	case weg.CategoryReserve:
		return &b.Reserve
	}
	return nil
}

// UsesKey reports whether any line with a unit share uses the key kind.
func (b CostBreakdown) UsesKey(kind KeyKind) bool {
	for _, bucket := range []CostBucket{b.Allocatable, b.NonAllocatable, b.Reserve} {
		for _, l := range bucket.Lines {
			if l.UnitShare.IsZero() {
				continue
			}
			if k, err := ParseKey(l.KeyCode); err == nil && k.Kind == kind {
				return true
			}
		}
	}
	return false
}

// CommunityCosts is the community-wide variant: the booked totals per
// bucket plus the sum of all unit shares for cross-checking.
type CommunityCosts struct {
	Allocatable    decimal.Decimal
	NonAllocatable decimal.Decimal
	Reserve        decimal.Decimal
	Total          decimal.Decimal

	// Distributed is the sum of every unit's share. It differs from
	// Total by rounding and by 04* postings not linked to a unit.
	Distributed decimal.Decimal
	Units       int
}

// =============================================================================
// COST AGGREGATOR
// =============================================================================

// CostAggregator sums bookings per account and applies the account's key.
type CostAggregator struct {
	Repo   weg.Repository
	Engine *Engine
	Config Config
}

func NewCostAggregator(repo weg.Repository, engine *Engine, cfg Config) *CostAggregator {
	return &CostAggregator{Repo: repo, Engine: engine, Config: cfg}
}

// accountTotals is the per-account booking sum shared by unit and
// community computations.
type accountTotals struct {
	account weg.CostAccount
	key     Key
	total   decimal.Decimal
	perUnit map[weg.UnitID]decimal.Decimal
}

// UnitCosts computes the unit's cost breakdown for the year.
func (a *CostAggregator) UnitCosts(ctx context.Context, unit weg.Unit, year int) (CostBreakdown, error) {
	totals, err := a.loadTotals(ctx, unit.CommunityID, year)
	if err != nil {
		return CostBreakdown{}, err
	}
	return a.breakdown(ctx, unit, totals)
}

// CommunityCosts aggregates the same buckets across all units.
func (a *CostAggregator) CommunityCosts(ctx context.Context, communityID weg.CommunityID, year int) (CommunityCosts, error) {
	totals, err := a.loadTotals(ctx, communityID, year)
	if err != nil {
		return CommunityCosts{}, err
	}
	units, err := a.Repo.ListUnits(ctx, communityID)
	if err != nil {
		return CommunityCosts{}, fmt.Errorf("units of %s: %w", communityID, err)
	}

	result := CommunityCosts{
		Allocatable:    decimal.Zero,
		NonAllocatable: decimal.Zero,
		Reserve:        decimal.Zero,
		Distributed:    decimal.Zero,
		Units:          len(units),
	}
	for _, t := range totals {
		switch t.account.Category {
		case weg.CategoryAllocatable:
			result.Allocatable = result.Allocatable.Add(t.total)
		case weg.CategoryNonAllocatable:
			result.NonAllocatable = result.NonAllocatable.Add(t.total)
		case weg.CategoryReserve:
			result.Reserve = result.Reserve.Add(t.total)
		}
	}
	result.Total = result.Allocatable.Add(result.NonAllocatable).Add(result.Reserve)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Config.concurrency())
	for _, u := range units {
		g.Go(func() error {
			b, err := a.breakdown(gctx, u, totals)
			if err != nil {
				return fmt.Errorf("unit %s: %w", u.ID, err)
			}
			mu.Lock()
			result.Distributed = result.Distributed.Add(b.UnitTotal)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CommunityCosts{}, err
	}
	return result, nil
}

// loadTotals sums cost bookings per active, non-external account.
func (a *CostAggregator) loadTotals(ctx context.Context, communityID weg.CommunityID, year int) ([]*accountTotals, error) {
	accounts, err := a.Repo.ListAccounts(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("accounts of %s: %w", communityID, err)
	}

	byNumber := make(map[string]*accountTotals, len(accounts))
	var ordered []*accountTotals
	for _, acc := range accounts {
		if !acc.Active || !acc.Category.IsCost() {
			continue
		}
		key, err := ParseKey(acc.KeyCode)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acc.Number, err)
		}
		if key.External() {
			// Carried by the ExternalCostMerger only.
			continue
		}
		t := &accountTotals{
			account: acc,
			key:     key,
			total:   decimal.Zero,
			perUnit: make(map[weg.UnitID]decimal.Decimal),
		}
		byNumber[acc.Number] = t
		ordered = append(ordered, t)
	}

	bookings, err := a.Repo.ListBookings(ctx, weg.BookingFilter{CommunityID: communityID, Year: year})
	if err != nil {
		return nil, fmt.Errorf("bookings of %s/%d: %w", communityID, year, err)
	}
	for _, b := range bookings {
		if !b.Category.IsCost() {
			continue
		}
		t, ok := byNumber[b.AccountNumber]
		if !ok {
			continue
		}
		cost := b.Amount.Neg()
		t.total = t.total.Add(cost)
		if b.UnitID != "" {
			t.perUnit[b.UnitID] = t.perUnit[b.UnitID].Add(cost)
		}
	}

	if err := a.fixedTotals(ctx, communityID, ordered); err != nil {
		return nil, err
	}

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].account.Number < ordered[j].account.Number })
	return ordered, nil
}

// fixedTotals sets the community total of every 04* account to what its
// units are charged: the configured amount once per unit, or the postings
// linked to a unit. Unlinked postings are charged to nobody and so are not
// part of the total either.
func (a *CostAggregator) fixedTotals(ctx context.Context, communityID weg.CommunityID, totals []*accountTotals) error {
	units := -1
	for _, t := range totals {
		if t.key.Kind != KeyFixed {
			continue
		}
		if t.account.FixedAmount == nil {
			linked := decimal.Zero
			for _, amount := range t.perUnit {
				linked = linked.Add(amount)
			}
			t.total = linked
			continue
		}
		if units < 0 {
			n, err := a.Repo.CountUnits(ctx, communityID)
			if err != nil {
				return fmt.Errorf("count units of %s: %w", communityID, err)
			}
			units = n
		}
		t.total = round2(*t.account.FixedAmount).Mul(decimal.NewFromInt(int64(units)))
	}
	return nil
}

func (a *CostAggregator) breakdown(ctx context.Context, unit weg.Unit, totals []*accountTotals) (CostBreakdown, error) {
	b := CostBreakdown{
		Allocatable:    CostBucket{Category: weg.CategoryAllocatable, Total: decimal.Zero, UnitShare: decimal.Zero},
		NonAllocatable: CostBucket{Category: weg.CategoryNonAllocatable, Total: decimal.Zero, UnitShare: decimal.Zero},
		Reserve:        CostBucket{Category: weg.CategoryReserve, Total: decimal.Zero, UnitShare: decimal.Zero},
		Total:          decimal.Zero,
		UnitTotal:      decimal.Zero,
	}

	for _, t := range totals {
		base := t.total
		if t.key.Kind == KeyFixed {
			// Fixed charges are unit-specific: the configured amount, or
			// whatever was posted against this unit.
			if t.account.FixedAmount != nil {
				base = *t.account.FixedAmount
			} else {
				base = t.perUnit[unit.ID]
			}
		}

		alloc, err := a.Engine.AllocateKey(ctx, base, t.key, unit)
		if err != nil {
			return CostBreakdown{}, fmt.Errorf("account %s: %w", t.account.Number, err)
		}

		bucket := b.Bucket(t.account.Category)
		bucket.Lines = append(bucket.Lines, CostLine{
			Account:       t.account.Number,
			Label:         t.account.Label,
			KeyCode:       t.key.Code,
			KeyLabel:      t.key.Label(),
			TaxDeductible: t.account.TaxDeductible || a.Config.isTaxDeductible(t.account.Number),
			Total:         t.total,
			UnitShare:     alloc.Amount,
		})
		bucket.Total = bucket.Total.Add(t.total)
		bucket.UnitShare = bucket.UnitShare.Add(alloc.Amount)
	}

	b.Total = b.Allocatable.Total.Add(b.NonAllocatable.Total).Add(b.Reserve.Total)
	b.UnitTotal = b.Allocatable.UnitShare.Add(b.NonAllocatable.UnitShare).Add(b.Reserve.UnitShare)
	return b, nil
}
