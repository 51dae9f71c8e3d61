// Package assignment classifies short option positions into assignment risk
// tiers and recommends covered-call pivot actions. Checks are ephemeral,
// recomputed on demand, and never persisted as source of truth.
package assignment

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// RiskTier buckets a position's assignment risk by moneyness.
type RiskTier int

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskTier) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	}
	return fmt.Sprintf("RISK?(%d)", int(r))
}

// PivotAction is the recommended defensive adjustment.
type PivotAction string

const (
	ActionHold             PivotAction = "HOLD"
	ActionRollUp           PivotAction = "ROLL_UP"
	ActionRollOut          PivotAction = "ROLL_OUT"
	ActionCloseCC          PivotAction = "CLOSE_CC"
	ActionAcceptAssignment PivotAction = "ACCEPT_ASSIGNMENT"
)

// Urgency grades how quickly the recommended action should be taken.
type Urgency string

const (
	UrgencyNone      Urgency = "NONE"
	UrgencyMonitor   Urgency = "MONITOR"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyImmediate Urgency = "IMMEDIATE"
)

var (
	moneynessPlaces = int32(6)

	critICMBand = decimal.RequireFromString("3")  // >3% ITM
	lowOTMBand  = decimal.RequireFromString("5")  // >5% OTM
	medOTMBand  = decimal.RequireFromString("1")  // 1-5% OTM

	baseProbability = map[RiskTier]decimal.Decimal{
		RiskLow:      decimal.RequireFromString("5"),
		RiskMedium:   decimal.RequireFromString("20"),
		RiskHigh:     decimal.RequireFromString("60"),
		RiskCritical: decimal.RequireFromString("90"),
	}
	probabilityCap = decimal.RequireFromString("95")

	mulUnder24h = decimal.RequireFromString("1.5")
	mulUnder72h = decimal.RequireFromString("1.2")
)

// Check is the ephemeral risk evaluation of one short position.
type Check struct {
	Symbol       string             `json:"symbol"`
	Strike       decimal.Decimal    `json:"strike"`
	Right        domain.OptionRight `json:"right"`
	MoneynessPct decimal.Decimal    `json:"moneyness_pct"` // positive = ITM, negative = OTM
	Tier         RiskTier           `json:"tier"`
	Probability  decimal.Decimal    `json:"probability_pct"`
	Action       PivotAction        `json:"action"`
	Urgency      Urgency            `json:"urgency"`
	TimeToExpiry time.Duration      `json:"time_to_expiry"`
	Timestamp    time.Time          `json:"timestamp"`
}

// MoneynessPct returns how far the position is in the money, in percentage
// points of the strike. Positive values are ITM, negative OTM.
func MoneynessPct(pos domain.Position, spot decimal.Decimal) (decimal.Decimal, error) {
	if !spot.IsPositive() {
		return decimal.Zero, &domain.InsufficientDataError{
			Source: "market_snapshot",
			Reason: fmt.Sprintf("spot must be positive, got %s", spot),
		}
	}
	if !pos.Strike.IsPositive() {
		return decimal.Zero, &domain.ContractViolationError{
			Field:  "strike",
			Reason: fmt.Sprintf("must be positive, got %s", pos.Strike),
		}
	}

	var itm decimal.Decimal
	switch pos.Right {
	case domain.RightCall:
		itm = spot.Sub(pos.Strike)
	case domain.RightPut:
		itm = pos.Strike.Sub(spot)
	default:
		return decimal.Zero, &domain.ContractViolationError{
			Field:  "right",
			Reason: fmt.Sprintf("unknown option right %q", pos.Right),
		}
	}
	return itm.DivRound(pos.Strike, moneynessPlaces).Mul(decimal.RequireFromString("100")), nil
}

// ClassifyTier maps moneyness to a risk tier. Exactly 1% OTM belongs to the
// MEDIUM band; the unassigned gap strictly inside 1% OTM is graded HIGH, since
// near-the-money uncertainty fails toward the riskier tier.
func ClassifyTier(moneynessPct decimal.Decimal) RiskTier {
	switch {
	case moneynessPct.GreaterThan(critICMBand):
		return RiskCritical
	case moneynessPct.GreaterThan(medOTMBand.Neg()):
		return RiskHigh
	case moneynessPct.GreaterThanOrEqual(lowOTMBand.Neg()):
		return RiskMedium
	default:
		return RiskLow
	}
}

// Probability scales the tier's base assignment probability by time to
// expiration and caps the result at 95%.
func Probability(tier RiskTier, timeToExpiry time.Duration) decimal.Decimal {
	p := baseProbability[tier]
	switch {
	case timeToExpiry < 24*time.Hour:
		p = p.Mul(mulUnder24h)
	case timeToExpiry < 72*time.Hour:
		p = p.Mul(mulUnder72h)
	}
	if p.GreaterThan(probabilityCap) {
		return probabilityCap
	}
	return p
}

// RecommendAction maps tier and time to expiration to a pivot action.
func RecommendAction(tier RiskTier, timeToExpiry time.Duration) PivotAction {
	switch tier {
	case RiskCritical:
		if timeToExpiry < 4*time.Hour {
			return ActionAcceptAssignment
		}
		return ActionCloseCC
	case RiskHigh:
		if timeToExpiry < 24*time.Hour {
			return ActionRollOut
		}
		return ActionRollUp
	case RiskMedium:
		if timeToExpiry < 72*time.Hour {
			return ActionRollOut
		}
		return ActionHold
	default:
		return ActionHold
	}
}

func urgencyFor(tier RiskTier) Urgency {
	switch tier {
	case RiskCritical:
		return UrgencyImmediate
	case RiskHigh:
		return UrgencyHigh
	case RiskMedium:
		return UrgencyMonitor
	}
	return UrgencyNone
}

// Engine evaluates assignment risk. The clock is injectable so the Friday
// window gate is testable.
type Engine struct {
	now func() time.Time
}

// NewEngine returns an engine on the real clock.
func NewEngine() *Engine { return &Engine{now: time.Now} }

// NewEngineWithClock returns an engine on a fixed clock, for tests.
func NewEngineWithClock(now func() time.Time) *Engine { return &Engine{now: now} }

// EvaluatePosition computes the full assignment check for one position.
func (e *Engine) EvaluatePosition(pos domain.Position, snap domain.MarketSnapshot) (Check, error) {
	moneyness, err := MoneynessPct(pos, snap.Price)
	if err != nil {
		return Check{}, err
	}

	now := e.now()
	tte := pos.Expiration.Sub(now)
	tier := ClassifyTier(moneyness)

	return Check{
		Symbol:       pos.Symbol,
		Strike:       pos.Strike,
		Right:        pos.Right,
		MoneynessPct: moneyness,
		Tier:         tier,
		Probability:  Probability(tier, tte),
		Action:       RecommendAction(tier, tte),
		Urgency:      urgencyFor(tier),
		TimeToExpiry: tte,
		Timestamp:    now,
	}, nil
}

// FridayCheck is the scheduled weekly sweep. It is hard-gated: outside Friday
// at or after 15:00 it returns an empty list regardless of position risk,
// never a partial one. Within the window it evaluates positions expiring in
// the current Friday-Monday span and keeps only MEDIUM or higher tiers.
// Snapshots are keyed by symbol; a missing snapshot is InsufficientData for
// that position and aborts the sweep rather than silently skipping it.
func (e *Engine) FridayCheck(positions []domain.Position, snapshots map[string]domain.MarketSnapshot) ([]Check, error) {
	now := e.now()
	if now.Weekday() != time.Friday || now.Hour() < 15 {
		log.Debug().Time("now", now).Msg("outside Friday 15:00 window, assignment sweep skipped")
		return []Check{}, nil
	}

	windowStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	windowEnd := windowStart.AddDate(0, 0, 4) // through end of Monday

	var checks []Check
	for _, pos := range positions {
		if pos.Expiration.Before(windowStart) || !pos.Expiration.Before(windowEnd) {
			continue
		}
		snap, ok := snapshots[pos.Symbol]
		if !ok {
			return nil, &domain.InsufficientDataError{
				Source: "market_snapshot",
				Reason: fmt.Sprintf("no snapshot for %s", pos.Symbol),
			}
		}
		check, err := e.EvaluatePosition(pos, snap)
		if err != nil {
			return nil, err
		}
		if check.Tier >= RiskMedium {
			checks = append(checks, check)
		}
	}

	log.Info().Int("positions", len(positions)).Int("flagged", len(checks)).Msg("Friday assignment sweep completed")
	return checks, nil
}
