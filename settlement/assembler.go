/*
assembler.go - Orchestrates one settlement run (HgaService)

PURPOSE:
  Validates the inputs for a (unit, year) pair, runs every calculator
  and merges their results into one immutable Statement.

STAGES (per invocation, not persisted):
  validating -> aggregating -> assembled
  validating -> failed

FAILURE SEMANTICS:
  - Invalid input or missing external data: all problems are collected
    and returned together as weg.ValidationErrors. Nothing is computed.
  - Any error after validation is wrapped in weg.GenerationError with
    unit, year and stage. No partial Statement is ever returned.

CONCURRENCY:
  The Assembler holds no mutable state. Concurrent calls for the same or
  different (unit, year) pairs are independent and need no locking.

SEE ALSO:
  - statement.go: The result type
  - plausibility/checker.go: Audits a Statement after assembly
*/
package settlement

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/weg-settlement/metrics"
	"github.com/warp/weg-settlement/weg"
)

type Stage string

const (
	StageValidating  Stage = "validating"
	StageAggregating Stage = "aggregating"
	StageAssembled   Stage = "assembled"
	StageFailed      Stage = "failed"
)

// Sources bundles the collaborators the assembler reads from.
type Sources struct {
	Repo     weg.Repository
	External weg.ExternalCostSource
	Advances weg.AdvancePaymentSource
	Balances weg.BankBalanceSource
}

// Assembler builds Statements.
type Assembler struct {
	Repo     weg.Repository
	Engine   *Engine
	Costs    *CostAggregator
	External *ExternalCostMerger
	Payments *PaymentReconciler
	Tax      *TaxCalculator
	Balances *BalanceReporter

	Config Config
	Logger logrus.FieldLogger

	// Now is the clock for the year bound and the timestamp.
	Now func() time.Time
}

// NewAssembler wires every calculator from the given sources.
func NewAssembler(src Sources, cfg Config, logger logrus.FieldLogger) (*Assembler, error) {
	if src.Repo == nil || src.External == nil || src.Advances == nil {
		return nil, fmt.Errorf("assembler: repository, external cost and advance payment sources are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("assembler: %w", err)
	}
	if logger == nil {
		logger = DiscardLogger()
	}

	engine := NewEngine(src.Repo)
	return &Assembler{
		Repo:     src.Repo,
		Engine:   engine,
		Costs:    NewCostAggregator(src.Repo, engine, cfg),
		External: NewExternalCostMerger(src.External, src.Repo),
		Payments: NewPaymentReconciler(src.Repo, src.Advances),
		Tax:      NewTaxCalculator(cfg),
		Balances: NewBalanceReporter(src.Balances),
		Config:   cfg,
		Logger:   logger,
		Now:      time.Now,
	}, nil
}

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateInputs returns every problem that would abort generation.
// The error return is reserved for collaborator failures.
func (a *Assembler) ValidateInputs(ctx context.Context, unitID weg.UnitID, year int) (weg.ValidationErrors, error) {
	_, _, errs, err := a.validate(ctx, unitID, year)
	return errs, err
}

func (a *Assembler) validate(ctx context.Context, unitID weg.UnitID, year int) (*weg.Unit, *weg.Community, weg.ValidationErrors, error) {
	var errs weg.ValidationErrors
	invalid := func(field, msg string, kind error) {
		errs = append(errs, &weg.ValidationError{UnitID: unitID, Year: year, Field: field, Message: msg, Kind: kind})
	}

	maxYear := a.Now().Year() + 1
	if year < a.Config.MinYear || year > maxYear {
		invalid("year", fmt.Sprintf("must be between %d and %d", a.Config.MinYear, maxYear), weg.ErrInvalidInput)
	}

	unit, err := a.Repo.FindUnit(ctx, unitID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("find unit %s: %w", unitID, err)
	}
	if unit == nil {
		invalid("unit", "unknown unit", weg.ErrUnitNotFound)
		return nil, nil, errs, nil
	}

	switch {
	case unit.MEA == nil:
		invalid("mea", "ownership fraction (MEA) not recorded", weg.ErrInvalidInput)
	case unit.MEA.Validate() != nil:
		invalid("mea", unit.MEA.Validate().Error(), weg.ErrInvalidInput)
	}
	if unit.SpecialShare != nil {
		if err := unit.SpecialShare.Validate(); err != nil {
			invalid("special_share", err.Error(), weg.ErrInvalidInput)
		}
	}

	if unit.CommunityID == "" {
		invalid("community", "unit belongs to no community", weg.ErrInvalidInput)
		return unit, nil, errs, nil
	}
	community, err := a.Repo.FindCommunity(ctx, unit.CommunityID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("find community %s: %w", unit.CommunityID, err)
	}
	if community == nil {
		invalid("community", fmt.Sprintf("unknown community %s", unit.CommunityID), weg.ErrCommunityNotFound)
		return unit, nil, errs, nil
	}

	meaErrs, err := a.validateCommunityMEA(ctx, community.ID, unit.ID, year)
	if err != nil {
		return nil, nil, nil, err
	}
	errs = append(errs, meaErrs...)

	externalErrs, err := a.External.ValidateExternalCostData(ctx, community.ID, year)
	if err != nil {
		return nil, nil, nil, err
	}
	errs = append(errs, externalErrs...)

	return unit, community, errs, nil
}

// validateCommunityMEA checks the other units of the community when an
// active account is allocated by 05*: the community view charges every
// unit, so one unknown MEA fails every statement.
func (a *Assembler) validateCommunityMEA(ctx context.Context, communityID weg.CommunityID, self weg.UnitID, year int) (weg.ValidationErrors, error) {
	accounts, err := a.Repo.ListAccounts(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("accounts of %s: %w", communityID, err)
	}
	usesMEA := false
	for _, acc := range accounts {
		if !acc.Active || !acc.Category.IsCost() {
			continue
		}
		if key, err := ParseKey(acc.KeyCode); err == nil && key.Kind == KeyMEA {
			usesMEA = true
			break
		}
	}
	if !usesMEA {
		return nil, nil
	}

	units, err := a.Repo.ListUnits(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("units of %s: %w", communityID, err)
	}
	var errs weg.ValidationErrors
	for _, u := range units {
		if u.ID == self {
			continue
		}
		msg := ""
		switch {
		case u.MEA == nil:
			msg = "ownership fraction (MEA) not recorded"
		case u.MEA.Validate() != nil:
			msg = u.MEA.Validate().Error()
		default:
			continue
		}
		errs = append(errs, &weg.ValidationError{UnitID: u.ID, Year: year, Field: "mea", Message: msg, Kind: weg.ErrInvalidInput})
	}
	return errs, nil
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateStatement validates and assembles the statement for unit/year.
// Repeated calls over unchanged records return identical statements
// except for GeneratedAt.
func (a *Assembler) GenerateStatement(ctx context.Context, unitID weg.UnitID, year int) (*Statement, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStatementGenerate(result, time.Since(start))
	}()

	log := a.Logger.WithFields(logrus.Fields{"unit_id": unitID, "year": year})
	fail := func(stage Stage, err error) (*Statement, error) {
		result = metrics.ResultError
		log.WithFields(logrus.Fields{"stage": StageFailed, "failed_in": stage}).WithError(err).Error("statement generation failed")
		return nil, &weg.GenerationError{UnitID: unitID, Year: year, Stage: string(stage), Err: err}
	}

	log.WithField("stage", StageValidating).Debug("validating inputs")
	unit, community, errs, err := a.validate(ctx, unitID, year)
	if err != nil {
		return fail(StageValidating, err)
	}
	if len(errs) > 0 {
		result = metrics.ResultInvalid
		log.WithFields(logrus.Fields{"stage": StageFailed, "errors": len(errs)}).Warn("statement inputs invalid")
		return nil, errs
	}

	log.WithField("stage", StageAggregating).Debug("aggregating")

	costs, err := a.Costs.UnitCosts(ctx, *unit, year)
	if err != nil {
		return fail(StageAggregating, err)
	}
	communityCosts, err := a.Costs.CommunityCosts(ctx, community.ID, year)
	if err != nil {
		return fail(StageAggregating, err)
	}
	external, err := a.External.AllExternalCosts(ctx, *unit, year)
	if err != nil {
		return fail(StageAggregating, err)
	}
	externalTotals, err := a.External.TotalExternalCostsForCommunity(ctx, community.ID, year)
	if err != nil {
		return fail(StageAggregating, err)
	}
	payments, err := a.Payments.Reconcile(ctx, *unit, year)
	if err != nil {
		return fail(StageAggregating, err)
	}
	communityPayments, err := a.Payments.CommunityPayments(ctx, community.ID, year)
	if err != nil {
		return fail(StageAggregating, err)
	}
	balances, err := a.Balances.Report(ctx, community.ID, year, communityCosts)
	if err != nil {
		return fail(StageAggregating, err)
	}
	tax := a.Tax.Calculate(costs)

	stmt := &Statement{
		ID:   StatementID(unit.ID, year),
		Year: year,
		Unit: UnitInfo{
			ID:           unit.ID,
			Label:        unit.Label,
			OwnerName:    unit.OwnerName,
			OwnerEmail:   unit.OwnerEmail,
			MEA:          *unit.MEA,
			MEAPercent:   unit.MEA.Percent().Round(2),
			SpecialShare: copyFraction(unit.SpecialShare),
			Months:       payments.Months,
		},
		Community: CommunityInfo{
			ID:      community.ID,
			Name:    community.Name,
			Address: community.Address,
			Units:   communityCosts.Units,
		},
		Costs:             costs,
		CommunityCosts:    communityCosts,
		External:          external,
		ExternalTotals:    externalTotals,
		Payments:          payments,
		CommunityPayments: communityPayments,
		Tax:               tax,
		Balances:          balances,
		Outcome:           newOutcome(costs, external, payments),
		GeneratedAt:       a.Now().UTC(),
	}

	log.WithFields(logrus.Fields{
		"stage":      StageAssembled,
		"unit_total": costs.UnitTotal.StringFixed(2),
		"outcome":    stmt.Outcome.Kind,
	}).Info("statement assembled")
	return stmt, nil
}

func copyFraction(f *weg.Fraction) *weg.Fraction {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
