// Package account implements the tiered capital lifecycle: immutable tier
// configuration, fork eligibility, and account constraint validation.
package account

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// Tier is the account's capital tier. Forking is one-directional:
// Generation -> Revenue -> Commercial, never back down.
type Tier string

const (
	TierGeneration Tier = "GENERATION"
	TierRevenue    Tier = "REVENUE"
	TierCommercial Tier = "COMMERCIAL"
)

// Valid reports whether t is a defined tier.
func (t Tier) Valid() bool {
	switch t {
	case TierGeneration, TierRevenue, TierCommercial:
		return true
	}
	return false
}

// Next returns the tier a fork promotes into, and false for Commercial,
// which never forks further.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierGeneration:
		return TierRevenue, true
	case TierRevenue:
		return TierCommercial, true
	}
	return "", false
}

// TierConfig is the immutable reference configuration of one tier. It is
// loaded once at startup and never mutated at runtime.
type TierConfig struct {
	MinCapital      decimal.Decimal
	ForkThreshold   decimal.Decimal
	MaxPositions    int
	MaxPositionPct  decimal.Decimal
	RiskMultiplier  decimal.Decimal
	AutoForkEnabled bool

	// RollTriggerATR is the tier's breach roll-trigger multiple consumed by
	// the breach evaluator (1.0x Generation, 1.5x Revenue).
	RollTriggerATR decimal.Decimal
}

// TierTable maps each tier to its configuration.
type TierTable map[Tier]TierConfig

// DefaultTierTable returns the Constitution v1.3 tier table.
func DefaultTierTable() TierTable {
	return TierTable{
		TierGeneration: {
			MinCapital:      decimal.RequireFromString("10000"),
			ForkThreshold:   decimal.RequireFromString("100000"),
			MaxPositions:    10,
			MaxPositionPct:  decimal.RequireFromString("15"),
			RiskMultiplier:  decimal.RequireFromString("1.0"),
			AutoForkEnabled: true,
			RollTriggerATR:  decimal.RequireFromString("1.0"),
		},
		TierRevenue: {
			MinCapital:      decimal.RequireFromString("100000"),
			ForkThreshold:   decimal.RequireFromString("500000"),
			MaxPositions:    20,
			MaxPositionPct:  decimal.RequireFromString("20"),
			RiskMultiplier:  decimal.RequireFromString("0.85"),
			AutoForkEnabled: true,
			RollTriggerATR:  decimal.RequireFromString("1.5"),
		},
		TierCommercial: {
			MinCapital:      decimal.RequireFromString("500000"),
			ForkThreshold:   decimal.Zero,
			MaxPositions:    50,
			MaxPositionPct:  decimal.RequireFromString("25"),
			RiskMultiplier:  decimal.RequireFromString("0.70"),
			AutoForkEnabled: false,
			RollTriggerATR:  decimal.RequireFromString("1.5"),
		},
	}
}

// ValidateTierTable checks the table at startup. Missing tiers, non-positive
// capital floors, or a Commercial tier with forking enabled are fatal.
func ValidateTierTable(t TierTable) error {
	for _, tier := range []Tier{TierGeneration, TierRevenue, TierCommercial} {
		cfg, ok := t[tier]
		if !ok {
			return &domain.ConfigurationError{
				Section: "tiers",
				Reason:  fmt.Sprintf("missing tier %s", tier),
			}
		}
		if !cfg.MinCapital.IsPositive() {
			return &domain.ConfigurationError{
				Section: "tiers",
				Reason:  fmt.Sprintf("%s: min capital must be positive, got %s", tier, cfg.MinCapital),
			}
		}
		if cfg.MaxPositions <= 0 {
			return &domain.ConfigurationError{
				Section: "tiers",
				Reason:  fmt.Sprintf("%s: max positions must be positive, got %d", tier, cfg.MaxPositions),
			}
		}
		if !cfg.MaxPositionPct.IsPositive() || cfg.MaxPositionPct.GreaterThan(decimal.RequireFromString("100")) {
			return &domain.ConfigurationError{
				Section: "tiers",
				Reason:  fmt.Sprintf("%s: max position pct %s out of (0,100]", tier, cfg.MaxPositionPct),
			}
		}
		if cfg.AutoForkEnabled {
			next, ok := tier.Next()
			if !ok {
				return &domain.ConfigurationError{
					Section: "tiers",
					Reason:  fmt.Sprintf("%s: auto-fork enabled but no next tier exists", tier),
				}
			}
			if !cfg.ForkThreshold.IsPositive() {
				return &domain.ConfigurationError{
					Section: "tiers",
					Reason:  fmt.Sprintf("%s: fork threshold must be positive when auto-fork is enabled", tier),
				}
			}
			if cfg.ForkThreshold.LessThan(t[next].MinCapital) {
				return &domain.ConfigurationError{
					Section: "tiers",
					Reason:  fmt.Sprintf("%s: fork threshold %s below %s min capital %s", tier, cfg.ForkThreshold, next, t[next].MinCapital),
				}
			}
		}
	}
	return nil
}
