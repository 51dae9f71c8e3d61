// Package breach computes ATR-denominated breach multiples for short option
// positions. Evaluation is pure: a position plus one market snapshot in, a
// trigger decision out, no side effects.
package breach

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// atrPlaces bounds the division so repeating quotients cannot drift.
const atrPlaces = 8

// Result is a single breach reading. Multiple is how many ATR(5) units the
// underlying has moved against the position; Triggered reports whether it
// reached the tier's roll-trigger multiple.
type Result struct {
	Symbol          string          `json:"symbol"`
	Multiple        decimal.Decimal `json:"multiple"`
	TriggerMultiple decimal.Decimal `json:"trigger_multiple"`
	Triggered       bool            `json:"triggered"`
}

// Evaluate computes the breach multiple for pos against snap and compares it
// to triggerMultiple (1.0x for Generation sleeves, 1.5x for Revenue).
//
// For a short put the adverse move is the underlying falling toward the
// strike, so the multiple is (strike - spot) / ATR5; for a short call it is
// (spot - strike) / ATR5. A non-positive ATR is InsufficientData, never
// "no breach".
func Evaluate(pos domain.Position, snap domain.MarketSnapshot, triggerMultiple decimal.Decimal) (Result, error) {
	if !snap.ATR5.IsPositive() {
		return Result{}, &domain.InsufficientDataError{
			Source: "market_snapshot",
			Reason: fmt.Sprintf("ATR5 must be positive, got %s", snap.ATR5),
		}
	}
	if !snap.Price.IsPositive() {
		return Result{}, &domain.InsufficientDataError{
			Source: "market_snapshot",
			Reason: fmt.Sprintf("underlying price must be positive, got %s", snap.Price),
		}
	}
	if triggerMultiple.IsNegative() {
		return Result{}, &domain.ContractViolationError{
			Field:  "trigger_multiple",
			Reason: fmt.Sprintf("must be non-negative, got %s", triggerMultiple),
		}
	}

	var adverse decimal.Decimal
	switch pos.Right {
	case domain.RightPut:
		adverse = pos.Strike.Sub(snap.Price)
	case domain.RightCall:
		adverse = snap.Price.Sub(pos.Strike)
	default:
		return Result{}, &domain.ContractViolationError{
			Field:  "right",
			Reason: fmt.Sprintf("unknown option right %q", pos.Right),
		}
	}

	multiple := adverse.DivRound(snap.ATR5, atrPlaces)
	return Result{
		Symbol:          pos.Symbol,
		Multiple:        multiple,
		TriggerMultiple: triggerMultiple,
		Triggered:       multiple.GreaterThanOrEqual(triggerMultiple),
	}, nil
}
