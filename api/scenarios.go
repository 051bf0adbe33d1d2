/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the record store with
	realistic data for demos and end-to-end checks. Each scenario creates a
	community, its units, cost accounts, a year of bookings, the metering
	service's heating/water shares, advance plans and bank balances.

AVAILABLE SCENARIOS:

	complete-year:      Four units, every input present, statements generate
	missing-heating:    One unit lacks its heating share; validation blocks all units
	owner-change:       Unit sold mid-year; Soll covers the months owned
	tax-cap:            High labor costs; the tax reduction hits the annual cap

HOW SCENARIOS WORK:
 1. Reset the store (clear all data) when it supports it
 2. Write community, units and accounts
 3. Write the year's cost and advance-payment bookings
 4. Write external cost records, advance plans and bank balances

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "complete-year"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Write a loader func(ctx, weg.RecordWriter) error
 3. Register it in 'loaders'

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - weg/store.go: RecordWriter
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const scenarioYear = 2024

var scenarios = []ScenarioDTO{
	{
		ID:          "complete-year",
		Name:        "Complete Year",
		Description: "Four units, all bookings, metering results and advance plans present",
		CommunityID: "weg-linden",
		Year:        scenarioYear,
		Units:       []string{"we-01", "we-02", "we-03", "we-04"},
	},
	{
		ID:          "missing-heating",
		Name:        "Missing Heating Data",
		Description: "The metering service has not delivered the heating share of we-04",
		CommunityID: "weg-linden",
		Year:        scenarioYear,
		Units:       []string{"we-01", "we-02", "we-03", "we-04"},
	},
	{
		ID:          "owner-change",
		Name:        "Owner Change",
		Description: "we-02 was sold on 1 July; the new owner pays advances from July",
		CommunityID: "weg-linden",
		Year:        scenarioYear,
		Units:       []string{"we-01", "we-02", "we-03", "we-04"},
	},
	{
		ID:          "tax-cap",
		Name:        "Tax Cap",
		Description: "Large caretaker and garden contracts; the §35a reduction is capped",
		CommunityID: "weg-parkallee",
		Year:        scenarioYear,
		Units:       []string{"pa-01", "pa-02"},
	},
}

type scenarioLoader func(ctx context.Context, w weg.RecordWriter) error

var loaders = map[string]scenarioLoader{
	"complete-year":   func(ctx context.Context, w weg.RecordWriter) error { return loadLinden(ctx, w, lindenOptions{}) },
	"missing-heating": func(ctx context.Context, w weg.RecordWriter) error { return loadLinden(ctx, w, lindenOptions{withoutHeating: "we-04"}) },
	"owner-change":    func(ctx context.Context, w weg.RecordWriter) error { return loadLinden(ctx, w, lindenOptions{ownerChange: true}) },
	"tax-cap":         loadParkallee,
}

// Resetter is implemented by stores that can drop all records.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and writes the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		status := http.StatusInternalServerError
		if weg.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// loadScenario is called with h.mu held.
func (h *Handler) loadScenario(ctx context.Context, id string) error {
	load, ok := loaders[id]
	if !ok {
		return fmt.Errorf("%w: unknown scenario %q", weg.ErrInvalidInput, id)
	}
	if h.Records == nil {
		return fmt.Errorf("store does not accept writes")
	}
	if rs, ok := h.Records.(Resetter); ok {
		if err := rs.Reset(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
	}
	if err := load(ctx, h.Records); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}
	h.Logger.WithField("scenario", id).Info("scenario loaded")
	return nil
}

// LoadScenarioByID is the startup path for the -scenario flag.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.loadScenario(ctx, id); err != nil {
		return err
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// WEG LINDENSTRASSE 12
// =============================================================================

type lindenOptions struct {
	withoutHeating weg.UnitID
	ownerChange    bool
}

type demoUnit struct {
	id       weg.UnitID
	label    string
	mea      string
	special  string
	owner    string
	monthly  string
	heating  string
	water    string
	entered  *time.Time
	firstPay time.Month
}

func loadLinden(ctx context.Context, w weg.RecordWriter, opts lindenOptions) error {
	const community = weg.CommunityID("weg-linden")

	if err := w.SaveCommunity(ctx, weg.Community{ID: community, Name: "WEG Lindenstraße 12", Address: "Lindenstraße 12, 10969 Berlin"}); err != nil {
		return err
	}

	units := []demoUnit{
		{id: "we-01", label: "WE 1 (EG links)", mea: "290/1000", special: "1/3", owner: "Petra Albers", monthly: "480.00", heating: "1320.40", water: "410.20"},
		{id: "we-02", label: "WE 2 (EG rechts)", mea: "250/1000", special: "1/3", owner: "Jonas Brandt", monthly: "410.00", heating: "1105.75", water: "360.00"},
		{id: "we-03", label: "WE 3 (1. OG)", mea: "240/1000", special: "1/3", owner: "Aylin Demir", monthly: "395.00", heating: "1050.10", water: "330.55"},
		{id: "we-04", label: "WE 4 (Gewerbe)", mea: "220/1000", owner: "Bäckerei Ernst GmbH", monthly: "360.00", heating: "980.00", water: "290.30"},
	}
	if opts.ownerChange {
		entered := time.Date(scenarioYear, time.July, 1, 0, 0, 0, 0, time.UTC)
		units[1].owner = "Mara Fischer"
		units[1].entered = &entered
		units[1].firstPay = time.July
	}

	accounts := []weg.CostAccount{
		{Number: "1000", Label: "Heizkosten", KeyCode: "01*", Category: weg.CategoryAllocatable},
		{Number: "1100", Label: "Wasser/Abwasser", KeyCode: "02*", Category: weg.CategoryAllocatable},
		{Number: "4000", Label: "Hausmeister", KeyCode: "05*", Category: weg.CategoryAllocatable, TaxDeductible: true},
		{Number: "4100", Label: "Treppenhausreinigung", KeyCode: "03*", Category: weg.CategoryAllocatable, TaxDeductible: true},
		{Number: "4200", Label: "Gebäudeversicherung", KeyCode: "05*", Category: weg.CategoryAllocatable},
		{Number: "4600", Label: "Kabelanschluss", KeyCode: "04*", Category: weg.CategoryAllocatable, FixedAmount: weg.DecimalPtr(decimal.RequireFromString("96.00"))},
		{Number: "4700", Label: "Aufzugswartung", KeyCode: "06*", Category: weg.CategoryAllocatable, TaxDeductible: true},
		{Number: "5000", Label: "Verwaltervergütung", KeyCode: "03*", Category: weg.CategoryNonAllocatable},
		{Number: "5100", Label: "Kontoführung", KeyCode: "05*", Category: weg.CategoryNonAllocatable},
		{Number: "6000", Label: "Zuführung Erhaltungsrücklage", KeyCode: "05*", Category: weg.CategoryReserve},
	}

	costs := []demoCost{
		{account: "4000", vendor: "Hausservice Kühn", amount: "900.00", months: quarterly},
		{account: "4100", vendor: "Glanz & Co. Reinigung", amount: "150.00", months: monthly},
		{account: "4200", vendor: "Allianz Versicherungs-AG", amount: "2400.00", months: []time.Month{time.January}},
		{account: "4600", vendor: "Vodafone Kabel Deutschland", amount: "384.00", months: []time.Month{time.March}},
		{account: "4700", vendor: "Schindler Aufzüge", amount: "600.00", months: []time.Month{time.April, time.October}},
		{account: "5000", vendor: "Hausverwaltung Nord", amount: "100.00", months: monthly},
		{account: "5100", vendor: "Berliner Sparkasse", amount: "15.00", months: monthly},
		{account: "6000", vendor: "", amount: "1000.00", months: quarterly},
	}

	balances := []weg.BankBalance{
		{Account: "Girokonto", Opening: decimal.RequireFromString("18250.00"), Closing: decimal.RequireFromString("17940.35")},
		{Account: "Rücklagenkonto", Opening: decimal.RequireFromString("42000.00"), Closing: decimal.RequireFromString("46000.00")},
	}

	return writeCommunity(ctx, w, community, units, accounts, costs, balances, opts.withoutHeating)
}

// =============================================================================
// WEG PARKALLEE 3
// =============================================================================

func loadParkallee(ctx context.Context, w weg.RecordWriter) error {
	const community = weg.CommunityID("weg-parkallee")

	if err := w.SaveCommunity(ctx, weg.Community{ID: community, Name: "WEG Parkallee 3", Address: "Parkallee 3, 20144 Hamburg"}); err != nil {
		return err
	}

	units := []demoUnit{
		{id: "pa-01", label: "Villa Nord", mea: "600/1000", owner: "Dr. Henrik Lange", monthly: "2100.00", heating: "3480.00", water: "720.00"},
		{id: "pa-02", label: "Villa Süd", mea: "400/1000", owner: "Sabine Okafor", monthly: "1450.00", heating: "2310.00", water: "515.00"},
	}

	accounts := []weg.CostAccount{
		{Number: "1000", Label: "Heizkosten", KeyCode: "01*", Category: weg.CategoryAllocatable},
		{Number: "1100", Label: "Wasser/Abwasser", KeyCode: "02*", Category: weg.CategoryAllocatable},
		{Number: "4000", Label: "Hausmeister", KeyCode: "05*", Category: weg.CategoryAllocatable, TaxDeductible: true},
		{Number: "4300", Label: "Gartenpflege", KeyCode: "05*", Category: weg.CategoryAllocatable, TaxDeductible: true},
		{Number: "5000", Label: "Verwaltervergütung", KeyCode: "03*", Category: weg.CategoryNonAllocatable},
		{Number: "6000", Label: "Zuführung Erhaltungsrücklage", KeyCode: "05*", Category: weg.CategoryReserve},
	}

	costs := []demoCost{
		{account: "4000", vendor: "Facility Partner Hamburg", amount: "1250.00", months: monthly},
		{account: "4300", vendor: "Grünwerk Gartenbau", amount: "1500.00", months: quarterly},
		{account: "5000", vendor: "Hausverwaltung Alster", amount: "90.00", months: monthly},
		{account: "6000", vendor: "", amount: "2500.00", months: quarterly},
	}

	balances := []weg.BankBalance{
		{Account: "Girokonto", Opening: decimal.RequireFromString("9800.00"), Closing: decimal.RequireFromString("11215.40")},
		{Account: "Rücklagenkonto", Opening: decimal.RequireFromString("60000.00"), Closing: decimal.RequireFromString("70000.00")},
	}

	return writeCommunity(ctx, w, community, units, accounts, costs, balances, "")
}

// =============================================================================
// HELPERS
// =============================================================================

var (
	monthly   = []time.Month{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	quarterly = []time.Month{time.March, time.June, time.September, time.December}
)

// demoCost is a recurring cost posting: amount is booked in each month.
type demoCost struct {
	account string
	vendor  string
	amount  string
	months  []time.Month
}

func writeCommunity(ctx context.Context, w weg.RecordWriter, community weg.CommunityID,
	units []demoUnit, accounts []weg.CostAccount, costs []demoCost, balances []weg.BankBalance,
	withoutHeating weg.UnitID) error {

	for _, u := range units {
		mea := weg.MustParseFraction(u.mea)
		unit := weg.Unit{ID: u.id, CommunityID: community, Label: u.label, MEA: &mea, OwnerName: u.owner, EnteredAt: u.entered}
		if u.special != "" {
			special := weg.MustParseFraction(u.special)
			unit.SpecialShare = &special
		}
		if err := w.SaveUnit(ctx, unit); err != nil {
			return err
		}
	}

	for _, a := range accounts {
		a.CommunityID = community
		a.Active = true
		if err := w.SaveAccount(ctx, a); err != nil {
			return err
		}
	}

	for _, c := range costs {
		for _, m := range c.months {
			b := weg.Booking{
				ID:            weg.BookingID(fmt.Sprintf("%s-%s-%d-%02d", community, c.account, scenarioYear, m)),
				CommunityID:   community,
				Date:          time.Date(scenarioYear, m, 28, 0, 0, 0, 0, time.UTC),
				Amount:        decimal.RequireFromString(c.amount).Neg(),
				Category:      categoryOf(accounts, c.account),
				AccountNumber: c.account,
				Vendor:        c.vendor,
			}
			if err := w.SaveBooking(ctx, b); err != nil {
				return err
			}
		}
	}

	for _, u := range units {
		amount := decimal.RequireFromString(u.monthly)
		if err := w.SaveMonthlyAdvance(ctx, u.id, scenarioYear, amount); err != nil {
			return err
		}
		first := u.firstPay
		if first == 0 {
			first = time.January
		}
		for m := first; m <= time.December; m++ {
			b := weg.Booking{
				ID:          weg.BookingID(fmt.Sprintf("%s-hg-%d-%02d", u.id, scenarioYear, m)),
				CommunityID: community,
				Date:        time.Date(scenarioYear, m, 3, 0, 0, 0, 0, time.UTC),
				Amount:      amount,
				Category:    weg.CategoryAdvancePayment,
				UnitID:      u.id,
				Description: fmt.Sprintf("Hausgeld %02d/%d", m, scenarioYear),
			}
			if err := w.SaveBooking(ctx, b); err != nil {
				return err
			}
		}

		record := weg.ExternalCostRecord{UnitID: u.id, Year: scenarioYear, Provider: "Techem", WaterShare: weg.DecimalPtr(decimal.RequireFromString(u.water))}
		if u.id != withoutHeating {
			record.HeatingShare = weg.DecimalPtr(decimal.RequireFromString(u.heating))
		}
		if err := w.SaveExternalCosts(ctx, record); err != nil {
			return err
		}
	}

	for _, b := range balances {
		b.CommunityID = community
		b.Year = scenarioYear
		if err := w.SaveBankBalance(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func categoryOf(accounts []weg.CostAccount, number string) weg.Category {
	for _, a := range accounts {
		if a.Number == number {
			return a.Category
		}
	}
	return weg.CategoryAllocatable
}
