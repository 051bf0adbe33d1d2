/*
Package settlement computes the annual cost settlement of a WEG unit.

PURPOSE:
  This package distributes community-wide costs to units, reconciles
  advance payments, derives the capped tax reduction, merges externally
  apportioned utility costs and assembles one Statement per unit/year.

KEY CONCEPTS IN THIS FILE (allocation.go):
  - Key: Tagged variant over the six allocation key codes
  - Engine: Computes one unit's share of a total under a key

KEY SEMANTICS:
  01* heating, 02* water  Externally supplied. Never computed here.
  03* equal per unit      total / number of units
  04* fixed amount        amount charged in full (already unit-specific)
  05* MEA                 total * ownership fraction (default key)
  06* special fraction    total * special share (lift, pump); none = 0

ROUNDING:
  Every share is rounded once, half-even to cents. Shares are never
  derived from a running remainder, so the sum over all units may
  differ from the total by a few cents.

SEE ALSO:
  - costs.go: Applies the engine per account
  - external.go: Carries the 01* and 02* costs
*/
package settlement

import (
	"context"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// KEY - Allocation key variant
// =============================================================================

type KeyKind int

const (
	KeyExternalHeating KeyKind = iota + 1 // 01*
	KeyExternalWater                      // 02*
	KeyEqual                              // 03*
	KeyFixed                              // 04*
	KeyMEA                                // 05*
	KeySpecial                            // 06*
)

var keyLabels = map[KeyKind]string{
	KeyExternalHeating: "Heizkosten (extern)",
	KeyExternalWater:   "Wasserkosten (extern)",
	KeyEqual:           "nach Einheiten",
	KeyFixed:           "Festbetrag",
	KeyMEA:             "nach MEA",
	KeySpecial:         "Sonderschlüssel",
}

var keyPattern = regexp.MustCompile(`^0([1-6])\*$`)

// Key is a parsed allocation key (Umlageschlüssel).
type Key struct {
	Code string
	Kind KeyKind
}

// ParseKey validates a key code. Anything outside 01*-06* is rejected.
func ParseKey(code string) (Key, error) {
	m := keyPattern.FindStringSubmatch(code)
	if m == nil {
		return Key{}, &weg.InvalidKeyError{Code: code}
	}
	return Key{Code: code, Kind: KeyKind(m[1][0] - '0')}, nil
}

// External reports whether the share is apportioned upstream.
func (k Key) External() bool {
	return k.Kind == KeyExternalHeating || k.Kind == KeyExternalWater
}

func (k Key) Label() string { return keyLabels[k.Kind] }

func (k Key) String() string { return k.Code }

// =============================================================================
// ENGINE
// =============================================================================

// UnitCounter is the part of weg.Repository the engine needs.
type UnitCounter interface {
	CountUnits(ctx context.Context, communityID weg.CommunityID) (int, error)
}

// Allocation is one unit's share of a total.
type Allocation struct {
	Key    Key
	Amount decimal.Decimal

	// External is set for 01*/02*. Amount is zero; the real share comes
	// from the ExternalCostMerger.
	External bool
}

// Engine distributes totals to units (DistributionService).
type Engine struct {
	Units UnitCounter
}

func NewEngine(units UnitCounter) *Engine {
	return &Engine{Units: units}
}

// Allocate parses code and allocates total to unit.
func (e *Engine) Allocate(ctx context.Context, total decimal.Decimal, code string, unit weg.Unit) (Allocation, error) {
	key, err := ParseKey(code)
	if err != nil {
		return Allocation{}, err
	}
	return e.AllocateKey(ctx, total, key, unit)
}

// AllocateKey allocates total to unit under an already parsed key.
// Negative totals (credits) keep their sign.
func (e *Engine) AllocateKey(ctx context.Context, total decimal.Decimal, key Key, unit weg.Unit) (Allocation, error) {
	result := Allocation{Key: key, Amount: decimal.Zero}

	switch key.Kind {
	case KeyExternalHeating, KeyExternalWater:
		result.External = true

	case KeyEqual:
		n, err := e.Units.CountUnits(ctx, unit.CommunityID)
		if err != nil {
			return Allocation{}, fmt.Errorf("count units of %s: %w", unit.CommunityID, err)
		}
		if n <= 0 {
			return Allocation{}, &weg.ValidationError{
				UnitID: unit.ID, Field: "community.units",
				Message: fmt.Sprintf("community %s has no units for key %s", unit.CommunityID, key),
			}
		}
		result.Amount = round2(total.Div(decimal.NewFromInt(int64(n))))

	case KeyFixed:
		result.Amount = round2(total)

	case KeyMEA:
		if unit.MEA == nil {
			return Allocation{}, &weg.ValidationError{
				UnitID: unit.ID, Field: "mea",
				Message: fmt.Sprintf("ownership fraction required for key %s", key),
			}
		}
		result.Amount = round2(unit.MEA.Apply(total))

	case KeySpecial:
		if unit.SpecialShare != nil {
			result.Amount = round2(unit.SpecialShare.Apply(total))
		}

	default:
		return Allocation{}, &weg.InvalidKeyError{Code: key.Code}
	}

	return result, nil
}
