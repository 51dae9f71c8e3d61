// Package rollcost enforces the hard ceiling on roll economics: a roll whose
// debit exceeds 50% of the original credit is never approved and always
// produces an overriding L3 escalation signal.
package rollcost

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// Recommendation is the validator's verdict on a proposed roll.
type Recommendation string

const (
	RollApproved        Recommendation = "ROLL_APPROVED"
	DoNotRollEscalateL3 Recommendation = "DO_NOT_ROLL_ESCALATE_L3"
)

// costPctPlaces bounds the reported ratio. The ceiling decision never divides,
// so rounding cannot mask an excess.
const costPctPlaces = 10

var two = decimal.NewFromInt(2)

// Analysis is the pure result of one roll cost evaluation.
type Analysis struct {
	OriginalCredit    decimal.Decimal `json:"original_credit"`
	RollDebit         decimal.Decimal `json:"roll_debit"`
	CostPct           decimal.Decimal `json:"cost_pct"`
	ThresholdExceeded bool            `json:"threshold_exceeded"`
	Recommendation    Recommendation  `json:"recommendation"`
}

// Analyze computes roll_debit / original_credit and compares it against the
// 50% ceiling. Exactly 0.50 does not exceed; anything above does. A
// non-positive original credit is an input-contract violation, not a default.
//
// A threshold breach is an independent, overriding escalation path: the caller
// must force the sleeve's protocol machine to L3 regardless of ATR or loss
// metrics.
func Analyze(originalCredit, rollDebit decimal.Decimal) (Analysis, error) {
	if !originalCredit.IsPositive() {
		return Analysis{}, &domain.ContractViolationError{
			Field:  "original_credit",
			Reason: fmt.Sprintf("must be positive, got %s", originalCredit),
		}
	}
	if rollDebit.IsNegative() {
		return Analysis{}, &domain.ContractViolationError{
			Field:  "roll_debit",
			Reason: fmt.Sprintf("must be non-negative, got %s", rollDebit),
		}
	}

	// 2*debit > credit is the exact form of debit/credit > 0.50.
	exceeded := rollDebit.Mul(two).GreaterThan(originalCredit)
	costPct := rollDebit.DivRound(originalCredit, costPctPlaces)

	rec := RollApproved
	if exceeded {
		rec = DoNotRollEscalateL3
	}

	return Analysis{
		OriginalCredit:    originalCredit,
		RollDebit:         rollDebit,
		CostPct:           costPct,
		ThresholdExceeded: exceeded,
		Recommendation:    rec,
	}, nil
}
