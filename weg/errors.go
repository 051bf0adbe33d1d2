/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Engine packages wrap these errors with unit and year context.

ERROR CATEGORIES:
  1. Invalid input   - missing MEA, unknown unit, bad year, bad key code
  2. Missing data    - absent external cost records
  3. Generation      - downstream failure while assembling a statement
  4. Collaborator    - AI provider unreachable or malformed answer

  Computation inconsistencies (tax cap, share deviation) are NOT errors;
  they surface as plausibility findings.

USAGE:
  if weg.IsClientError(err) {
      // 4xx, do not retry
  }

SEE ALSO:
  - settlement/assembler.go: Aggregates validation errors, wraps failures
  - api/handlers.go: Maps errors to HTTP status codes
*/
package weg

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed or out-of-range input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidKey is returned for allocation key codes outside 01*-06*.
	ErrInvalidKey = errors.New("invalid allocation key")

	// ErrMissingExternalData is returned when heating/water shares are absent.
	ErrMissingExternalData = errors.New("missing external cost data")

	// ErrUnitNotFound is returned when a referenced unit doesn't exist.
	ErrUnitNotFound = errors.New("unit not found")

	// ErrCommunityNotFound is returned when a referenced community doesn't exist.
	ErrCommunityNotFound = errors.New("community not found")

	// ErrGenerationFailed is returned when a statement could not be assembled.
	ErrGenerationFailed = errors.New("statement generation failed")

	// ErrProviderUnavailable is returned when the AI provider call fails.
	ErrProviderUnavailable = errors.New("plausibility provider unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidKeyError reports a key code that does not match 0[1-6]*.
type InvalidKeyError struct {
	Code string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid allocation key %q: expected 01* to 06*", e.Code)
}

func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }

// ValidationError is one actionable input problem.
type ValidationError struct {
	UnitID  UnitID
	Year    int
	Field   string
	Message string

	// Kind is ErrInvalidInput or ErrMissingExternalData.
	Kind error
}

// Year is zero for year-independent problems, such as a unit record
// lacking its MEA; the GenerationError around it names the year.
func (e *ValidationError) Error() string {
	switch {
	case e.UnitID == "" && e.Year == 0:
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	case e.UnitID == "":
		return fmt.Sprintf("%s (year %d): %s", e.Field, e.Year, e.Message)
	case e.Year == 0:
		return fmt.Sprintf("unit %s, %s: %s", e.UnitID, e.Field, e.Message)
	}
	return fmt.Sprintf("unit %s, year %d, %s: %s", e.UnitID, e.Year, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Kind == nil {
		return ErrInvalidInput
	}
	return e.Kind
}

// ValidationErrors aggregates every problem found before a computation.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(v), strings.Join(msgs, "; "))
}

// Unwrap exposes each entry so errors.Is finds ErrMissingExternalData.
func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, len(v))
	for i, e := range v {
		errs[i] = e
	}
	return errs
}

// GenerationError wraps a downstream failure with unit and year context.
type GenerationError struct {
	UnitID UnitID
	Year   int
	Stage  string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate statement for unit %s, year %d (%s): %v", e.UnitID, e.Year, e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() []error { return []error{ErrGenerationFailed, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrMissingExternalData)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrCommunityNotFound)
}
