package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// Metrics is one sleeve's breach/loss reading for a single evaluation.
// LossPct is in percentage points (4.0 means a 4% drawdown).
type Metrics struct {
	ATRBreachMultiple decimal.Decimal
	LossPct           decimal.Decimal
	TimeInBreach      time.Duration
}

// InvalidTransitionError marks an evaluation that asked for a transition the
// machine refuses: wrong direction, or dwell time not yet elapsed. The state
// is unchanged. Callers on the monitoring path treat it as a normal no-op.
type InvalidTransitionError struct {
	From   Level
	To     Level
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s rejected: %s", e.From, e.To, e.Reason)
}

// TargetLevel maps a metrics reading to the highest level whose thresholds are
// met. Thresholds match the Constitution v1.3 escalation table.
func TargetLevel(m Metrics) Level {
	switch {
	case m.ATRBreachMultiple.GreaterThanOrEqual(decimal.RequireFromString("3.0")) ||
		m.LossPct.GreaterThanOrEqual(decimal.RequireFromString("5.0")):
		return L3Preservation
	case m.ATRBreachMultiple.GreaterThanOrEqual(decimal.RequireFromString("2.0")) ||
		m.LossPct.GreaterThanOrEqual(decimal.RequireFromString("3.0")):
		return L2Recovery
	case m.ATRBreachMultiple.GreaterThanOrEqual(decimal.RequireFromString("1.0")) ||
		m.LossPct.GreaterThanOrEqual(decimal.RequireFromString("2.0")):
		return L1Enhanced
	default:
		return L0Normal
	}
}

// Machine owns one sleeve's ProtocolState. It is not safe for concurrent use:
// the monitor actor is the single writer and serializes all calls.
type Machine struct {
	sleeve domain.SleeveID
	table  LevelTable

	current        Level
	lastTransition time.Time
	improvingSince time.Time
	improving      bool
}

// NewMachine creates a sleeve's machine at L0. initializedAt anchors the first
// dwell window so a freshly created sleeve cannot immediately bounce levels.
func NewMachine(sleeve domain.SleeveID, table LevelTable, initializedAt time.Time) *Machine {
	return &Machine{
		sleeve:         sleeve,
		table:          table,
		current:        L0Normal,
		lastTransition: initializedAt,
	}
}

// Current returns the active level.
func (m *Machine) Current() Level {
	return m.current
}

// LastTransition returns the timestamp of the most recent level change
// (or sleeve initialization, if no change has happened yet).
func (m *Machine) LastTransition() time.Time {
	return m.lastTransition
}

// Config returns the LevelConfig of the active level.
func (m *Machine) Config() LevelConfig {
	return m.table.Config(m.current)
}

// EvaluateEscalation considers an upward transition for the given metrics.
// A nil metrics reading is uninterpretable input and fails closed: the sleeve
// is forced to L3 rather than defaulting to L0.
//
// A transition is granted only when the computed target is above the current
// level, the current level's escalation delay has elapsed since the last
// transition, and the breach itself has persisted at least that long.
// Returns (nil, nil) when no escalation is warranted, and an
// InvalidTransitionError when one is warranted but dwell-blocked.
func (m *Machine) EvaluateEscalation(now time.Time, metrics *Metrics) (*TransitionEvent, error) {
	if metrics == nil || metrics.TimeInBreach < 0 {
		return m.failClosed(now), nil
	}

	target := TargetLevel(*metrics)
	if target <= m.current {
		m.trackImprovement(now, target)
		return nil, nil
	}
	m.improving = false

	delay := m.table.Config(m.current).EscalationDelay
	if since := now.Sub(m.lastTransition); since < delay {
		return nil, &InvalidTransitionError{
			From:   m.current,
			To:     target,
			Reason: fmt.Sprintf("escalation delay not elapsed (%v of %v)", since, delay),
		}
	}
	if metrics.TimeInBreach < delay {
		return nil, &InvalidTransitionError{
			From:   m.current,
			To:     target,
			Reason: fmt.Sprintf("breach persistence %v below required %v", metrics.TimeInBreach, delay),
		}
	}

	return m.transition(now, target, CauseBreachEscalation, *metrics), nil
}

// EvaluateDeescalation considers a downward transition. Conditions must have
// improved (target below current) continuously for at least the current
// level's de-escalation delay, measured from when improvement was first
// observed, and at least that long since the last transition. The step down is
// one level at a time unless breach and loss are fully clear (target L0), in
// which case a direct drop to L0 is permitted.
func (m *Machine) EvaluateDeescalation(now time.Time, metrics *Metrics) (*TransitionEvent, error) {
	if metrics == nil || metrics.TimeInBreach < 0 {
		return m.failClosed(now), nil
	}

	target := TargetLevel(*metrics)
	if target >= m.current {
		m.improving = false
		return nil, nil
	}

	m.trackImprovement(now, target)
	delay := m.table.Config(m.current).DeescalationDelay
	if held := now.Sub(m.improvingSince); held < delay {
		return nil, &InvalidTransitionError{
			From:   m.current,
			To:     target,
			Reason: fmt.Sprintf("improvement held %v of required %v", held, delay),
		}
	}
	if since := now.Sub(m.lastTransition); since < delay {
		return nil, &InvalidTransitionError{
			From:   m.current,
			To:     target,
			Reason: fmt.Sprintf("de-escalation delay not elapsed (%v of %v)", since, delay),
		}
	}

	next := m.current - 1
	if target == L0Normal {
		next = L0Normal
	}
	return m.transition(now, next, CauseRecovery, *metrics), nil
}

// ForceEscalate applies an overriding escalation, bypassing dwell times.
// Used by the roll-cost override path, which always wins over slower
// in-flight evaluations. Downward forcing is rejected.
func (m *Machine) ForceEscalate(now time.Time, to Level, cause TransitionCause) (*TransitionEvent, error) {
	if !to.Valid() {
		return nil, &InvalidTransitionError{From: m.current, To: to, Reason: "unknown target level"}
	}
	if to < m.current {
		return nil, &InvalidTransitionError{From: m.current, To: to, Reason: "forced transitions may only escalate"}
	}
	if to == m.current {
		return nil, nil
	}
	return m.transition(now, to, cause, Metrics{}), nil
}

func (m *Machine) trackImprovement(now time.Time, target Level) {
	if target >= m.current {
		m.improving = false
		return
	}
	if !m.improving {
		m.improving = true
		m.improvingSince = now
	}
}

func (m *Machine) failClosed(now time.Time) *TransitionEvent {
	if m.current == L3Preservation {
		return nil
	}
	log.Warn().
		Str("sleeve", string(m.sleeve)).
		Str("from", m.current.String()).
		Msg("uninterpretable metrics, failing closed to L3")
	return m.transition(now, L3Preservation, CauseFailClosed, Metrics{})
}

func (m *Machine) transition(now time.Time, to Level, cause TransitionCause, metrics Metrics) *TransitionEvent {
	ev := &TransitionEvent{
		ID:             uuid.New(),
		Sleeve:         m.sleeve,
		From:           m.current,
		To:             to,
		Cause:          cause,
		BreachMultiple: metrics.ATRBreachMultiple,
		LossPct:        metrics.LossPct,
		Timestamp:      now,
	}
	log.Info().
		Str("sleeve", string(m.sleeve)).
		Str("from", ev.From.String()).
		Str("to", ev.To.String()).
		Str("cause", string(cause)).
		Str("breach_multiple", metrics.ATRBreachMultiple.String()).
		Str("loss_pct", metrics.LossPct.String()).
		Msg("protocol level transition")

	m.current = to
	m.lastTransition = now
	m.improving = false
	return ev
}
