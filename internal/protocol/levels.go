package protocol

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// Level is the discrete risk-escalation tier of one sleeve. Transitions are
// owned solely by the Machine; nothing else writes a sleeve's level.
type Level int

const (
	L0Normal Level = iota
	L1Enhanced
	L2Recovery
	L3Preservation
)

func (l Level) String() string {
	switch l {
	case L0Normal:
		return "L0_NORMAL"
	case L1Enhanced:
		return "L1_ENHANCED"
	case L2Recovery:
		return "L2_RECOVERY"
	case L3Preservation:
		return "L3_PRESERVATION"
	}
	return fmt.Sprintf("L?(%d)", int(l))
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	return l >= L0Normal && l <= L3Preservation
}

// LevelConfig governs one protocol level: monitoring cadence, breach and loss
// thresholds that pull a sleeve up to this level, permitted auto-actions, and
// the dwell times that rate-limit transitions.
type LevelConfig struct {
	MonitorInterval    time.Duration
	BreachThresholdATR decimal.Decimal
	LossThresholdPct   decimal.Decimal
	StopLossMultiplier decimal.Decimal
	RollTriggerATR     decimal.Decimal
	AutoRollEnabled    bool
	AutoHedgeEnabled   bool
	EscalationDelay    time.Duration
	DeescalationDelay  time.Duration
}

// LevelTable holds the per-level configuration, indexed by Level.
type LevelTable [4]LevelConfig

// Config returns the configuration for the given level.
func (t LevelTable) Config(l Level) LevelConfig {
	return t[l]
}

// DefaultLevelTable returns the Constitution v1.3 level table. Escalation
// thresholds here must stay in lockstep with the table in TargetLevel.
func DefaultLevelTable() LevelTable {
	return LevelTable{
		L0Normal: {
			MonitorInterval:    300 * time.Second,
			BreachThresholdATR: decimal.Zero,
			LossThresholdPct:   decimal.Zero,
			StopLossMultiplier: decimal.RequireFromString("2.0"),
			RollTriggerATR:     decimal.RequireFromString("1.0"),
			AutoRollEnabled:    false,
			AutoHedgeEnabled:   false,
			EscalationDelay:    0,
			DeescalationDelay:  0,
		},
		L1Enhanced: {
			MonitorInterval:    60 * time.Second,
			BreachThresholdATR: decimal.RequireFromString("1.0"),
			LossThresholdPct:   decimal.RequireFromString("2.0"),
			StopLossMultiplier: decimal.RequireFromString("1.5"),
			RollTriggerATR:     decimal.RequireFromString("1.0"),
			AutoRollEnabled:    true,
			AutoHedgeEnabled:   false,
			EscalationDelay:    60 * time.Second,
			DeescalationDelay:  15 * time.Minute,
		},
		L2Recovery: {
			MonitorInterval:    10 * time.Second,
			BreachThresholdATR: decimal.RequireFromString("2.0"),
			LossThresholdPct:   decimal.RequireFromString("3.0"),
			StopLossMultiplier: decimal.RequireFromString("1.25"),
			RollTriggerATR:     decimal.RequireFromString("0.5"),
			AutoRollEnabled:    true,
			AutoHedgeEnabled:   true,
			EscalationDelay:    30 * time.Second,
			DeescalationDelay:  30 * time.Minute,
		},
		L3Preservation: {
			MonitorInterval:    1 * time.Second,
			BreachThresholdATR: decimal.RequireFromString("3.0"),
			LossThresholdPct:   decimal.RequireFromString("5.0"),
			StopLossMultiplier: decimal.RequireFromString("1.0"),
			RollTriggerATR:     decimal.RequireFromString("0.25"),
			AutoRollEnabled:    false,
			AutoHedgeEnabled:   true,
			EscalationDelay:    0,
			DeescalationDelay:  60 * time.Minute,
		},
	}
}

// ValidateLevelTable ensures the table is usable: positive cadences, thresholds
// strictly increasing with level, non-negative dwell times. A bad table is a
// startup-fatal ConfigurationError.
func ValidateLevelTable(t LevelTable) error {
	for l := L0Normal; l <= L3Preservation; l++ {
		cfg := t.Config(l)
		if cfg.MonitorInterval <= 0 {
			return &domain.ConfigurationError{
				Section: "levels",
				Reason:  fmt.Sprintf("%s: monitor interval must be positive, got %v", l, cfg.MonitorInterval),
			}
		}
		if cfg.EscalationDelay < 0 || cfg.DeescalationDelay < 0 {
			return &domain.ConfigurationError{
				Section: "levels",
				Reason:  fmt.Sprintf("%s: dwell times must be non-negative", l),
			}
		}
		if l > L0Normal {
			prev := t.Config(l - 1)
			if !cfg.BreachThresholdATR.GreaterThan(prev.BreachThresholdATR) {
				return &domain.ConfigurationError{
					Section: "levels",
					Reason:  fmt.Sprintf("%s: breach threshold %s not above %s's %s", l, cfg.BreachThresholdATR, l-1, prev.BreachThresholdATR),
				}
			}
			if !cfg.LossThresholdPct.GreaterThan(prev.LossThresholdPct) {
				return &domain.ConfigurationError{
					Section: "levels",
					Reason:  fmt.Sprintf("%s: loss threshold %s not above %s's %s", l, cfg.LossThresholdPct, l-1, prev.LossThresholdPct),
				}
			}
			if cfg.MonitorInterval >= prev.MonitorInterval {
				return &domain.ConfigurationError{
					Section: "levels",
					Reason:  fmt.Sprintf("%s: monitor interval %v must be shorter than %s's %v", l, cfg.MonitorInterval, l-1, prev.MonitorInterval),
				}
			}
		}
	}
	return nil
}
