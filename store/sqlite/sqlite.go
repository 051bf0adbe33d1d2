/*
Package sqlite provides a SQLite-backed implementation of the record interfaces.

PURPOSE:
  Persists communities, units, cost accounts, bookings and the external
  inputs (metered heating/water shares, advance payment plans, bank
  balances) that settlement reads. Also stores plausibility feedback.

INTERFACES IMPLEMENTED:
  weg.Repository:           Communities, units, accounts, bookings
  weg.ExternalCostSource:   Heating/water shares per unit and year
  weg.AdvancePaymentSource: Monthly Hausgeld per unit and year
  weg.BankBalanceSource:    Opening/closing balances per account
  weg.FeedbackStore:        User-reported plausibility misses
  weg.RecordWriter:         Upserts used by imports and demo data

KEY TABLES:
  communities, units, cost_accounts, bookings, external_costs,
  advance_plans, bank_balances, plausibility_feedback

STORAGE FORMATS:
  - Amounts are TEXT holding the exact decimal string
  - Dates are TEXT "2006-01-02", timestamps RFC3339
  - Fractions are TEXT "num/den"
  - Absent optional values are NULL, never zero

INDEXES:
  - idx_bookings_community_year: Every aggregation filters on it (hot path)
  - idx_bookings_unit: Advance payment reconciliation

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Settlement only reads, so
  concurrent statement generation shares the read lock.

USAGE:
  store, err := sqlite.New("./data/weg.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  assembler, _ := settlement.NewAssembler(settlement.Sources{
      Repo: store, External: store, Advances: store, Balances: store,
  }, cfg, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - weg/store.go: Interface definitions
  - weg/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
)

const dateLayout = "2006-01-02"

// Store implements all record interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection (readiness).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS communities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		community_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		mea TEXT,
		special_share TEXT,
		owner_name TEXT NOT NULL DEFAULT '',
		owner_email TEXT NOT NULL DEFAULT '',
		entered_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_units_community
		ON units(community_id);

	CREATE TABLE IF NOT EXISTS cost_accounts (
		community_id TEXT NOT NULL,
		number TEXT NOT NULL,
		label TEXT NOT NULL,
		key_code TEXT NOT NULL,
		category TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		tax_deductible BOOLEAN NOT NULL DEFAULT FALSE,
		fixed_amount TEXT,
		PRIMARY KEY (community_id, number)
	);

	-- Bookings: signed postings, costs negative
	-- effective_year = settlement_year if tagged, else year of date
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		community_id TEXT NOT NULL,
		date TEXT NOT NULL,
		effective_year INTEGER NOT NULL,
		settlement_year INTEGER,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		account_number TEXT,
		unit_id TEXT,
		vendor TEXT,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_community_year
		ON bookings(community_id, effective_year, date);
	CREATE INDEX IF NOT EXISTS idx_bookings_unit
		ON bookings(unit_id, effective_year) WHERE unit_id IS NOT NULL;

	-- Pre-apportioned metering results; NULL share = not delivered
	CREATE TABLE IF NOT EXISTS external_costs (
		unit_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		heating_share TEXT,
		water_share TEXT,
		provider TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (unit_id, year)
	);

	CREATE TABLE IF NOT EXISTS advance_plans (
		unit_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		monthly_amount TEXT NOT NULL,
		PRIMARY KEY (unit_id, year)
	);

	CREATE TABLE IF NOT EXISTS bank_balances (
		community_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		account TEXT NOT NULL,
		opening TEXT NOT NULL,
		closing TEXT NOT NULL,
		PRIMARY KEY (community_id, year, account)
	);

	CREATE TABLE IF NOT EXISTS plausibility_feedback (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_created
		ON plausibility_feedback(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES (weg.RecordWriter)
// =============================================================================

// SaveCommunity upserts a community.
func (s *Store) SaveCommunity(ctx context.Context, c weg.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO communities (id, name, address, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address
	`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.Name, c.Address, now())
	return err
}

// SaveUnit upserts a unit.
func (s *Store) SaveUnit(ctx context.Context, u weg.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var enteredAt sql.NullString
	if u.EnteredAt != nil {
		enteredAt = sql.NullString{String: u.EnteredAt.Format(dateLayout), Valid: true}
	}

	query := `
		INSERT INTO units (id, community_id, label, mea, special_share, owner_name, owner_email, entered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			community_id = excluded.community_id,
			label = excluded.label,
			mea = excluded.mea,
			special_share = excluded.special_share,
			owner_name = excluded.owner_name,
			owner_email = excluded.owner_email,
			entered_at = excluded.entered_at
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.CommunityID, u.Label,
		nullFraction(u.MEA), nullFraction(u.SpecialShare),
		u.OwnerName, u.OwnerEmail, enteredAt, now(),
	)
	return err
}

// SaveAccount upserts a cost account.
func (s *Store) SaveAccount(ctx context.Context, a weg.CostAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO cost_accounts (community_id, number, label, key_code, category, active, tax_deductible, fixed_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(community_id, number) DO UPDATE SET
			label = excluded.label,
			key_code = excluded.key_code,
			category = excluded.category,
			active = excluded.active,
			tax_deductible = excluded.tax_deductible,
			fixed_amount = excluded.fixed_amount
	`
	_, err := s.db.ExecContext(ctx, query,
		a.CommunityID, a.Number, a.Label, a.KeyCode, a.Category,
		a.Active, a.TaxDeductible, nullDecimal(a.FixedAmount),
	)
	return err
}

// SaveBooking inserts a booking. Booking IDs are unique; re-importing the
// same ID is rejected.
func (s *Store) SaveBooking(ctx context.Context, b weg.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = weg.BookingID(uuid.NewString())
	}
	var settlementYear sql.NullInt64
	if b.SettlementYear != nil {
		settlementYear = sql.NullInt64{Int64: int64(*b.SettlementYear), Valid: true}
	}

	query := `
		INSERT INTO bookings
		(id, community_id, date, effective_year, settlement_year, amount, category,
		 account_number, unit_id, vendor, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.CommunityID, b.Date.Format(dateLayout), b.EffectiveYear(), settlementYear,
		b.Amount.String(), b.Category,
		nullString(b.AccountNumber), nullString(string(b.UnitID)),
		nullString(b.Vendor), nullString(b.Description), now(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("booking %s: %w: duplicate id", b.ID, weg.ErrInvalidInput)
		}
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// SaveExternalCosts upserts a unit's metered shares for a year.
func (s *Store) SaveExternalCosts(ctx context.Context, r weg.ExternalCostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO external_costs (unit_id, year, heating_share, water_share, provider)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unit_id, year) DO UPDATE SET
			heating_share = excluded.heating_share,
			water_share = excluded.water_share,
			provider = excluded.provider
	`
	_, err := s.db.ExecContext(ctx, query,
		r.UnitID, r.Year, nullDecimal(r.HeatingShare), nullDecimal(r.WaterShare), r.Provider,
	)
	return err
}

// SaveMonthlyAdvance upserts a unit's advance payment plan for a year.
func (s *Store) SaveMonthlyAdvance(ctx context.Context, unitID weg.UnitID, year int, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO advance_plans (unit_id, year, monthly_amount)
		VALUES (?, ?, ?)
		ON CONFLICT(unit_id, year) DO UPDATE SET monthly_amount = excluded.monthly_amount
	`
	_, err := s.db.ExecContext(ctx, query, unitID, year, amount.String())
	return err
}

// SaveBankBalance upserts one account's balances for a year.
func (s *Store) SaveBankBalance(ctx context.Context, b weg.BankBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO bank_balances (community_id, year, account, opening, closing)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(community_id, year, account) DO UPDATE SET
			opening = excluded.opening,
			closing = excluded.closing
	`
	_, err := s.db.ExecContext(ctx, query, b.CommunityID, b.Year, b.Account, b.Opening.String(), b.Closing.String())
	return err
}

// =============================================================================
// REPOSITORY (weg.Repository)
// =============================================================================

// FindUnit returns nil, nil if the unit does not exist.
func (s *Store) FindUnit(ctx context.Context, id weg.UnitID) (*weg.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, unitColumns+" WHERE id = ?", id)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load unit %s: %w", id, err)
	}
	return &u, nil
}

// FindCommunity returns nil, nil if the community does not exist.
func (s *Store) FindCommunity(ctx context.Context, id weg.CommunityID) (*weg.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c weg.Community
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, address FROM communities WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load community %s: %w", id, err)
	}
	return &c, nil
}

// ListUnits returns the community's units ordered by ID.
func (s *Store) ListUnits(ctx context.Context, communityID weg.CommunityID) ([]weg.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, unitColumns+" WHERE community_id = ? ORDER BY id", communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var units []weg.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (s *Store) CountUnits(ctx context.Context, communityID weg.CommunityID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM units WHERE community_id = ?", communityID,
	).Scan(&count)
	return count, err
}

// ListAccounts returns the community's cost accounts ordered by number.
func (s *Store) ListAccounts(ctx context.Context, communityID weg.CommunityID) ([]weg.CostAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT community_id, number, label, key_code, category, active, tax_deductible, fixed_amount
		FROM cost_accounts
		WHERE community_id = ?
		ORDER BY number
	`, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []weg.CostAccount
	for rows.Next() {
		var a weg.CostAccount
		var fixed sql.NullString
		if err := rows.Scan(&a.CommunityID, &a.Number, &a.Label, &a.KeyCode, &a.Category, &a.Active, &a.TaxDeductible, &fixed); err != nil {
			return nil, err
		}
		if a.FixedAmount, err = parseNullDecimal(fixed); err != nil {
			return nil, fmt.Errorf("account %s fixed_amount: %w", a.Number, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListBookings returns matching bookings ordered by date.
func (s *Store) ListBookings(ctx context.Context, filter weg.BookingFilter) ([]weg.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, community_id, date, settlement_year, amount, category,
		       account_number, unit_id, vendor, description
		FROM bookings
		WHERE community_id = ? AND effective_year = ?`
	args := []any{filter.CommunityID, filter.Year}
	if filter.UnitID != "" {
		query += " AND unit_id = ?"
		args = append(args, filter.UnitID)
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	query += " ORDER BY date ASC, created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []weg.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// =============================================================================
// SOURCES
// =============================================================================

func (s *Store) HeatingShare(ctx context.Context, unitID weg.UnitID, year int) (*decimal.Decimal, error) {
	return s.externalShare(ctx, "heating_share", unitID, year)
}

func (s *Store) WaterShare(ctx context.Context, unitID weg.UnitID, year int) (*decimal.Decimal, error) {
	return s.externalShare(ctx, "water_share", unitID, year)
}

func (s *Store) externalShare(ctx context.Context, column string, unitID weg.UnitID, year int) (*decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT "+column+" FROM external_costs WHERE unit_id = ? AND year = ?", unitID, year,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", column, err)
	}
	return parseNullDecimal(value)
}

// CommunityRecords returns delivered records of the community's units.
func (s *Store) CommunityRecords(ctx context.Context, communityID weg.CommunityID, year int) ([]weg.ExternalCostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.unit_id, e.year, e.heating_share, e.water_share, e.provider
		FROM external_costs e
		JOIN units u ON u.id = e.unit_id
		WHERE u.community_id = ? AND e.year = ?
		ORDER BY e.unit_id
	`, communityID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query external costs: %w", err)
	}
	defer rows.Close()

	var records []weg.ExternalCostRecord
	for rows.Next() {
		var r weg.ExternalCostRecord
		var heating, water sql.NullString
		if err := rows.Scan(&r.UnitID, &r.Year, &heating, &water, &r.Provider); err != nil {
			return nil, err
		}
		if r.HeatingShare, err = parseNullDecimal(heating); err != nil {
			return nil, fmt.Errorf("unit %s heating_share: %w", r.UnitID, err)
		}
		if r.WaterShare, err = parseNullDecimal(water); err != nil {
			return nil, fmt.Errorf("unit %s water_share: %w", r.UnitID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) MonthlyAdvance(ctx context.Context, unitID weg.UnitID, year int) (*decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT monthly_amount FROM advance_plans WHERE unit_id = ? AND year = ?", unitID, year,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load advance plan: %w", err)
	}
	return parseNullDecimal(value)
}

func (s *Store) BankBalances(ctx context.Context, communityID weg.CommunityID, year int) ([]weg.BankBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT community_id, year, account, opening, closing
		FROM bank_balances
		WHERE community_id = ? AND year = ?
		ORDER BY account
	`, communityID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank balances: %w", err)
	}
	defer rows.Close()

	var balances []weg.BankBalance
	for rows.Next() {
		var b weg.BankBalance
		var opening, closing string
		if err := rows.Scan(&b.CommunityID, &b.Year, &b.Account, &opening, &closing); err != nil {
			return nil, err
		}
		if b.Opening, err = decimal.NewFromString(opening); err != nil {
			return nil, fmt.Errorf("balance %s opening: %w", b.Account, err)
		}
		if b.Closing, err = decimal.NewFromString(closing); err != nil {
			return nil, fmt.Errorf("balance %s closing: %w", b.Account, err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// =============================================================================
// FEEDBACK (weg.FeedbackStore)
// =============================================================================

// SaveFeedback stores a report; ID and CreatedAt are filled if empty.
func (s *Store) SaveFeedback(ctx context.Context, fb weg.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO plausibility_feedback (id, unit_id, year, message, created_at) VALUES (?, ?, ?, ?, ?)",
		fb.ID, fb.UnitID, fb.Year, fb.Message, fb.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecentFeedback returns up to limit reports, newest first. limit <= 0
// returns all.
func (s *Store) RecentFeedback(ctx context.Context, limit int) ([]weg.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unit_id, year, message, created_at
		FROM plausibility_feedback
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var result []weg.Feedback
	for rows.Next() {
		var fb weg.Feedback
		var createdAt string
		if err := rows.Scan(&fb.ID, &fb.UnitID, &fb.Year, &fb.Message, &createdAt); err != nil {
			return nil, err
		}
		fb.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		result = append(result, fb)
	}
	return result, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"bookings", "cost_accounts", "external_costs", "advance_plans", "bank_balances", "units", "communities", "plausibility_feedback"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

const unitColumns = `
	SELECT id, community_id, label, mea, special_share, owner_name, owner_email, entered_at
	FROM units`

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(row scanner) (weg.Unit, error) {
	var u weg.Unit
	var mea, special, enteredAt sql.NullString
	if err := row.Scan(&u.ID, &u.CommunityID, &u.Label, &mea, &special, &u.OwnerName, &u.OwnerEmail, &enteredAt); err != nil {
		return weg.Unit{}, err
	}

	var err error
	if u.MEA, err = parseNullFraction(mea); err != nil {
		return weg.Unit{}, fmt.Errorf("unit %s mea: %w", u.ID, err)
	}
	if u.SpecialShare, err = parseNullFraction(special); err != nil {
		return weg.Unit{}, fmt.Errorf("unit %s special_share: %w", u.ID, err)
	}
	if enteredAt.Valid {
		t, err := time.Parse(dateLayout, enteredAt.String)
		if err != nil {
			return weg.Unit{}, fmt.Errorf("unit %s entered_at: %w", u.ID, err)
		}
		u.EnteredAt = &t
	}
	return u, nil
}

func scanBooking(rows *sql.Rows) (weg.Booking, error) {
	var b weg.Booking
	var date, amount string
	var settlementYear sql.NullInt64
	var account, unitID, vendor, description sql.NullString

	if err := rows.Scan(&b.ID, &b.CommunityID, &date, &settlementYear, &amount, &b.Category,
		&account, &unitID, &vendor, &description); err != nil {
		return weg.Booking{}, err
	}

	var err error
	if b.Date, err = time.Parse(dateLayout, date); err != nil {
		return weg.Booking{}, fmt.Errorf("booking %s date: %w", b.ID, err)
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return weg.Booking{}, fmt.Errorf("booking %s amount: %w", b.ID, err)
	}
	if settlementYear.Valid {
		b.SettlementYear = weg.IntPtr(int(settlementYear.Int64))
	}
	b.AccountNumber = account.String
	b.UnitID = weg.UnitID(unitID.String)
	b.Vendor = vendor.String
	b.Description = description.String
	return b, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullFraction(f *weg.Fraction) sql.NullString {
	if f == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: f.String(), Valid: true}
}

func parseNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseNullFraction does not validate; an invalid stored MEA must reach
// the assembler's validation, not fail the lookup.
func parseNullFraction(v sql.NullString) (*weg.Fraction, error) {
	if !v.Valid {
		return nil, nil
	}
	parts := strings.Split(v.String, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("fraction %q: expected num/den", v.String)
	}
	var f weg.Fraction
	if _, err := fmt.Sscanf(v.String, "%d/%d", &f.Num, &f.Den); err != nil {
		return nil, fmt.Errorf("fraction %q: %w", v.String, err)
	}
	return &f, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
