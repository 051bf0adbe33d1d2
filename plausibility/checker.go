/*
Package plausibility audits an assembled settlement Statement.

PURPOSE:
  Runs deterministic rule checks over a Statement and, optionally, an
  AI-assisted heuristic pass. Returns a Verdict with the overall status
  and every individual finding. The Statement itself is never touched.

KEY CONCEPTS:
  - CheckResult: One rule's finding (category, severity, status, message)
  - Verdict: Overall status plus all results and the optional AI payload
  - Provider: External assessor; advisory only

OVERALL STATUS:
  any critical failure            -> critical
  any other failure or a warning  -> warning
  otherwise                       -> pass

  The AI assessment may raise the status (pass -> warning, any -> critical)
  but never lower it.

FAILURE SEMANTICS:
  The AI call runs under its own deadline (Thresholds.AITimeout). A
  timeout, transport error or malformed answer is logged and recorded in
  Verdict.AIError; the rule-based verdict is returned regardless.

SEE ALSO:
  - rules.go: The rule checks
  - prompt.go: What the AI provider is told
  - provider.go: Provider interface and HTTP adapter
*/
package plausibility

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/weg-settlement/metrics"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// VERDICT TYPES
// =============================================================================

// Status is the overall outcome of a plausibility run.
type Status string

const (
	StatusPass     Status = "pass"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

func (s Status) rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	}
	return 0
}

// CheckStatus is the outcome of a single rule.
type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckWarning CheckStatus = "warning"
	CheckFail    CheckStatus = "fail"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Category string

const (
	CategoryCompleteness Category = "data_completeness"
	CategoryCalculation  Category = "calculation"
	CategoryCompliance   Category = "compliance"
)

// CheckResult is one rule's finding.
type CheckResult struct {
	Rule     string         `json:"rule"`
	Category Category       `json:"category"`
	Severity Severity       `json:"severity"`
	Status   CheckStatus    `json:"status"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Failed reports whether the result is a failure or a warning.
func (r CheckResult) Failed() bool { return r.Status != CheckPass }

// Verdict is the result of Checker.Run.
type Verdict struct {
	Status  Status        `json:"status"`
	Results []CheckResult `json:"results"`

	// AI is nil when no provider is configured or the call failed.
	AI      *Assessment `json:"ai,omitempty"`
	AIError string      `json:"ai_error,omitempty"`

	// FeedbackCount is how many user reports went into the AI prompt.
	FeedbackCount int `json:"feedback_count"`
}

// =============================================================================
// THRESHOLDS
// =============================================================================

// Thresholds are the heuristic limits of the rule checks.
type Thresholds struct {
	// CostShareTolerance is the allowed gap, in percentage points, between
	// a unit's cost share and its MEA share.
	CostShareTolerance decimal.Decimal

	// TaxRatioWarning is the reduction/base ratio above which the tax
	// reduction is reported (expected 0.20).
	TaxRatioWarning decimal.Decimal

	// HeatingWarning is the unit heating share considered implausibly high.
	HeatingWarning decimal.Decimal

	AITimeout     time.Duration
	FeedbackLimit int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		CostShareTolerance: decimal.NewFromInt(10),
		TaxRatioWarning:    decimal.RequireFromString("0.25"),
		HeatingWarning:     decimal.RequireFromString("5000.00"),
		AITimeout:          30 * time.Second,
		FeedbackLimit:      10,
	}
}

// =============================================================================
// CHECKER
// =============================================================================

// Checker runs the rules and the optional AI pass. Provider and Feedback
// may be nil.
type Checker struct {
	Thresholds Thresholds
	Provider   Provider
	Feedback   weg.FeedbackStore
	Logger     logrus.FieldLogger
}

func NewChecker(th Thresholds, provider Provider, feedback weg.FeedbackStore, logger logrus.FieldLogger) *Checker {
	if logger == nil {
		logger = settlement.DiscardLogger()
	}
	return &Checker{Thresholds: th, Provider: provider, Feedback: feedback, Logger: logger}
}

// Run checks stmt. It never fails: provider problems degrade the AI
// portion only.
func (c *Checker) Run(ctx context.Context, stmt *settlement.Statement, includeUserFeedback bool) Verdict {
	start := time.Now()
	log := c.Logger.WithFields(logrus.Fields{"unit_id": stmt.Unit.ID, "year": stmt.Year})

	results := c.rules(stmt)
	v := Verdict{Status: Overall(results), Results: results}

	if c.Provider != nil {
		c.runAI(ctx, log, stmt, includeUserFeedback, &v)
	}

	metrics.ObservePlausibility(string(v.Status), time.Since(start))
	log.WithFields(logrus.Fields{"status": v.Status, "ai": v.AI != nil}).Info("plausibility checked")
	return v
}

func (c *Checker) runAI(ctx context.Context, log logrus.FieldLogger, stmt *settlement.Statement, includeUserFeedback bool, v *Verdict) {
	var feedback []weg.Feedback
	if includeUserFeedback && c.Feedback != nil {
		fb, err := c.Feedback.RecentFeedback(ctx, c.Thresholds.FeedbackLimit)
		if err != nil {
			log.WithError(err).Warn("loading user feedback failed, continuing without")
		} else {
			feedback = fb
		}
	}
	v.FeedbackCount = len(feedback)

	prompt := BuildPrompt(stmt, failedResults(v.Results), feedback)

	aiCtx, cancel := context.WithTimeout(ctx, c.Thresholds.AITimeout)
	defer cancel()
	assessment, err := c.Provider.Analyze(aiCtx, prompt)
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(aiCtx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.IncAIFailure(reason)
		log.WithError(err).WithField("reason", reason).Warn("AI plausibility pass failed, keeping rule verdict")
		v.AIError = err.Error()
		return
	}

	v.AI = &assessment
	v.Status = Escalate(v.Status, assessment)
}

// Overall folds rule results into a status.
func Overall(results []CheckResult) Status {
	status := StatusPass
	for _, r := range results {
		switch {
		case r.Status == CheckFail && r.Severity == SeverityCritical:
			return StatusCritical
		case r.Failed():
			status = StatusWarning
		}
	}
	return status
}

// Escalate merges an AI assessment into a rule status. It only raises.
func Escalate(current Status, a Assessment) Status {
	var proposed Status
	switch a.OverallAssessment {
	case StatusCritical:
		proposed = StatusCritical
	case StatusWarning:
		proposed = StatusWarning
	default:
		return current
	}
	if proposed.rank() > current.rank() {
		return proposed
	}
	return current
}

func failedResults(results []CheckResult) []CheckResult {
	var failed []CheckResult
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}
