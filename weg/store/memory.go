// Package store provides in-memory implementations of the weg collaborator interfaces.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every weg collaborator interface and weg.RecordWriter.
type Memory struct {
	mu          sync.RWMutex
	communities map[weg.CommunityID]weg.Community
	units       map[weg.UnitID]weg.Unit
	accounts    map[weg.CommunityID][]weg.CostAccount
	bookings    []weg.Booking
	external    map[externalKey]weg.ExternalCostRecord
	advances    map[externalKey]decimal.Decimal
	balances    []weg.BankBalance
	feedback    []weg.Feedback
}

type externalKey struct {
	UnitID weg.UnitID
	Year   int
}

func NewMemory() *Memory {
	return &Memory{
		communities: make(map[weg.CommunityID]weg.Community),
		units:       make(map[weg.UnitID]weg.Unit),
		accounts:    make(map[weg.CommunityID][]weg.CostAccount),
		external:    make(map[externalKey]weg.ExternalCostRecord),
		advances:    make(map[externalKey]decimal.Decimal),
	}
}

// =============================================================================
// WRITES - Seeding only; the engine never calls these
// =============================================================================

func (m *Memory) AddCommunity(c weg.Community) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.communities[c.ID] = c
}

func (m *Memory) AddUnit(u weg.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[u.ID] = u
}

func (m *Memory) AddAccount(a weg.CostAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.CommunityID] = append(m.accounts[a.CommunityID], a)
}

// AddBooking inserts keeping bookings ordered by date. It does not check
// IDs; imports go through SaveBooking.
func (m *Memory) AddBooking(b weg.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertBooking(b)
}

// insertBooking is called with m.mu held.
func (m *Memory) insertBooking(b weg.Booking) {
	i := sort.Search(len(m.bookings), func(i int) bool {
		return m.bookings[i].Date.After(b.Date)
	})
	m.bookings = append(m.bookings, weg.Booking{})
	copy(m.bookings[i+1:], m.bookings[i:])
	m.bookings[i] = b
}

func (m *Memory) SetExternalCosts(r weg.ExternalCostRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.external[externalKey{UnitID: r.UnitID, Year: r.Year}] = r
}

func (m *Memory) SetMonthlyAdvance(unitID weg.UnitID, year int, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advances[externalKey{UnitID: unitID, Year: year}] = amount
}

func (m *Memory) AddBankBalance(b weg.BankBalance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = append(m.balances, b)
}

// Save* implement weg.RecordWriter over the Add*/Set* seeders.

func (m *Memory) SaveCommunity(_ context.Context, c weg.Community) error {
	m.AddCommunity(c)
	return nil
}

func (m *Memory) SaveUnit(_ context.Context, u weg.Unit) error {
	m.AddUnit(u)
	return nil
}

// SaveAccount replaces an account with the same number.
func (m *Memory) SaveAccount(_ context.Context, a weg.CostAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	accounts := m.accounts[a.CommunityID]
	for i := range accounts {
		if accounts[i].Number == a.Number {
			accounts[i] = a
			return nil
		}
	}
	m.accounts[a.CommunityID] = append(accounts, a)
	return nil
}

// SaveBooking rejects a booking whose ID is already stored.
func (m *Memory) SaveBooking(_ context.Context, b weg.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bookings {
		if existing.ID == b.ID {
			return fmt.Errorf("booking %s: %w: duplicate id", b.ID, weg.ErrInvalidInput)
		}
	}
	m.insertBooking(b)
	return nil
}

func (m *Memory) SaveExternalCosts(_ context.Context, r weg.ExternalCostRecord) error {
	m.SetExternalCosts(r)
	return nil
}

func (m *Memory) SaveMonthlyAdvance(_ context.Context, unitID weg.UnitID, year int, amount decimal.Decimal) error {
	m.SetMonthlyAdvance(unitID, year, amount)
	return nil
}

func (m *Memory) SaveBankBalance(_ context.Context, b weg.BankBalance) error {
	m.AddBankBalance(b)
	return nil
}

// Reset drops every record, feedback included.
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.communities = fresh.communities
	m.units = fresh.units
	m.accounts = fresh.accounts
	m.bookings = nil
	m.external = fresh.external
	m.advances = fresh.advances
	m.balances = nil
	m.feedback = nil
	return nil
}

// =============================================================================
// REPOSITORY
// =============================================================================

func (m *Memory) FindUnit(_ context.Context, id weg.UnitID) (*weg.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) FindCommunity(_ context.Context, id weg.CommunityID) (*weg.Community, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.communities[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// ListUnits returns units ordered by ID for deterministic iteration.
func (m *Memory) ListUnits(_ context.Context, communityID weg.CommunityID) ([]weg.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []weg.Unit
	for _, u := range m.units {
		if u.CommunityID == communityID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) CountUnits(ctx context.Context, communityID weg.CommunityID) (int, error) {
	units, err := m.ListUnits(ctx, communityID)
	return len(units), err
}

func (m *Memory) ListAccounts(_ context.Context, communityID weg.CommunityID) ([]weg.CostAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]weg.CostAccount, len(m.accounts[communityID]))
	copy(result, m.accounts[communityID])
	return result, nil
}

func (m *Memory) ListBookings(_ context.Context, filter weg.BookingFilter) ([]weg.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []weg.Booking
	for _, b := range m.bookings {
		if filter.Matches(b) {
			result = append(result, b)
		}
	}
	return result, nil
}

// =============================================================================
// SOURCES
// =============================================================================

func (m *Memory) HeatingShare(_ context.Context, unitID weg.UnitID, year int) (*decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.external[externalKey{UnitID: unitID, Year: year}]
	if !ok {
		return nil, nil
	}
	return r.HeatingShare, nil
}

func (m *Memory) WaterShare(_ context.Context, unitID weg.UnitID, year int) (*decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.external[externalKey{UnitID: unitID, Year: year}]
	if !ok {
		return nil, nil
	}
	return r.WaterShare, nil
}

func (m *Memory) CommunityRecords(_ context.Context, communityID weg.CommunityID, year int) ([]weg.ExternalCostRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []weg.ExternalCostRecord
	for k, r := range m.external {
		if k.Year != year {
			continue
		}
		if u, ok := m.units[k.UnitID]; ok && u.CommunityID == communityID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UnitID < result[j].UnitID })
	return result, nil
}

func (m *Memory) MonthlyAdvance(_ context.Context, unitID weg.UnitID, year int) (*decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.advances[externalKey{UnitID: unitID, Year: year}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) BankBalances(_ context.Context, communityID weg.CommunityID, year int) ([]weg.BankBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []weg.BankBalance
	for _, b := range m.balances {
		if b.CommunityID == communityID && b.Year == year {
			result = append(result, b)
		}
	}
	return result, nil
}

// =============================================================================
// FEEDBACK
// =============================================================================

func (m *Memory) SaveFeedback(_ context.Context, fb weg.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, fb)
	return nil
}

// RecentFeedback returns the newest entries first.
func (m *Memory) RecentFeedback(_ context.Context, limit int) ([]weg.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]weg.Feedback, 0, len(m.feedback))
	for i := len(m.feedback) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		result = append(result, m.feedback[i])
	}
	return result, nil
}
