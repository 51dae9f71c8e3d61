package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// ForkEvent records the creation of a new, higher-tier account instance.
// Forking is irreversible: tiers never merge back down.
type ForkEvent struct {
	SourceAccountID string          `json:"source_account_id"`
	NewAccountID    string          `json:"new_account_id"`
	NewTier         Tier            `json:"new_tier"`
	AccountValue    decimal.Decimal `json:"account_value"`
	Timestamp       time.Time       `json:"timestamp"`
}

// ConstraintReport is the outcome of validating an account against its tier.
// Errors are hard violations; Warnings are informational (fork eligibility).
type ConstraintReport struct {
	Errors   domain.ViolationSet `json:"errors"`
	Warnings domain.ViolationSet `json:"warnings"`
}

// OK reports whether the account satisfies every hard constraint.
func (r ConstraintReport) OK() bool { return len(r.Errors) == 0 }

// Engine makes tier fork decisions against the immutable tier table.
type Engine struct {
	table TierTable
	now   func() time.Time
}

// NewEngine builds a fork engine over a validated tier table.
func NewEngine(table TierTable) *Engine {
	return &Engine{table: table, now: time.Now}
}

// CanFork reports fork eligibility: the tier must have auto-fork enabled and
// the account value must have reached the fork threshold. Eligibility is
// monotonic in value.
func (e *Engine) CanFork(tier Tier, value decimal.Decimal) bool {
	cfg, ok := e.table[tier]
	if !ok {
		return false
	}
	return cfg.AutoForkEnabled && value.GreaterThanOrEqual(cfg.ForkThreshold)
}

// Fork creates the next-tier account instance for an eligible account.
// The source account keeps operating at its tier; the event carries the new
// account's identity for the ledger collaborator to provision.
func (e *Engine) Fork(sourceAccountID string, tier Tier, value decimal.Decimal) (*ForkEvent, error) {
	if !tier.Valid() {
		return nil, &domain.ContractViolationError{
			Field:  "tier",
			Reason: fmt.Sprintf("unknown tier %q", tier),
		}
	}
	next, ok := tier.Next()
	if !ok {
		return nil, &domain.ContractViolationError{
			Field:  "tier",
			Reason: fmt.Sprintf("%s accounts never fork", tier),
		}
	}
	if !e.CanFork(tier, value) {
		cfg := e.table[tier]
		return nil, &domain.ContractViolationError{
			Field:  "account_value",
			Reason: fmt.Sprintf("value %s below fork threshold %s for %s", value, cfg.ForkThreshold, tier),
		}
	}

	ev := &ForkEvent{
		SourceAccountID: sourceAccountID,
		NewAccountID:    uuid.NewString(),
		NewTier:         next,
		AccountValue:    value,
		Timestamp:       e.now(),
	}
	log.Info().
		Str("source_account", sourceAccountID).
		Str("new_account", ev.NewAccountID).
		Str("new_tier", string(next)).
		Str("account_value", value.String()).
		Msg("account forked to next tier")
	return ev, nil
}

// ValidateConstraints checks an account's realized state against its tier:
// capital floor, position count cap, and largest-position concentration cap
// are hard errors; crossing the fork threshold is a non-blocking warning.
// largestPositionPct is in percentage points.
func (e *Engine) ValidateConstraints(tier Tier, value decimal.Decimal, positionCount int, largestPositionPct decimal.Decimal) (ConstraintReport, error) {
	cfg, ok := e.table[tier]
	if !ok {
		return ConstraintReport{}, &domain.ContractViolationError{
			Field:  "tier",
			Reason: fmt.Sprintf("unknown tier %q", tier),
		}
	}

	var report ConstraintReport
	if value.LessThan(cfg.MinCapital) {
		report.Errors = append(report.Errors, domain.Violation{
			Code:        "capital_below_minimum",
			Measured:    value.String(),
			Threshold:   cfg.MinCapital.String(),
			Description: fmt.Sprintf("account value %s below %s minimum %s", value, tier, cfg.MinCapital),
		})
	}
	if positionCount > cfg.MaxPositions {
		report.Errors = append(report.Errors, domain.Violation{
			Code:        "position_count_exceeded",
			Measured:    fmt.Sprintf("%d", positionCount),
			Threshold:   fmt.Sprintf("%d", cfg.MaxPositions),
			Description: fmt.Sprintf("%d open positions exceed %s cap of %d", positionCount, tier, cfg.MaxPositions),
		})
	}
	if largestPositionPct.GreaterThan(cfg.MaxPositionPct) {
		report.Errors = append(report.Errors, domain.Violation{
			Code:        "position_size_exceeded",
			Measured:    largestPositionPct.String(),
			Threshold:   cfg.MaxPositionPct.String(),
			Description: fmt.Sprintf("largest position %s%% exceeds %s cap of %s%%", largestPositionPct, tier, cfg.MaxPositionPct),
		})
	}
	if e.CanFork(tier, value) {
		report.Warnings = append(report.Warnings, domain.Violation{
			Code:        "fork_eligible",
			Measured:    value.String(),
			Threshold:   cfg.ForkThreshold.String(),
			Description: fmt.Sprintf("account value %s reached fork threshold %s", value, cfg.ForkThreshold),
		})
	}
	return report, nil
}
