// Package monitor runs the per-sleeve monitoring actor. Each sleeve has
// exactly one Monitor goroutine, which is the single writer of that sleeve's
// protocol machine: ticks, roll checks, and forced overrides are all
// serialized through the actor's command channel, so no transition is ever
// evaluated against stale state.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/breach"
	"github.com/wealthops/constitution/internal/broker"
	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/hedge"
	"github.com/wealthops/constitution/internal/ledger"
	"github.com/wealthops/constitution/internal/liquidity"
	"github.com/wealthops/constitution/internal/marketdata"
	"github.com/wealthops/constitution/internal/metrics"
	"github.com/wealthops/constitution/internal/persistence"
	"github.com/wealthops/constitution/internal/protocol"
	"github.com/wealthops/constitution/internal/rollcost"
)

// PositionSource supplies a sleeve's open positions. Owned by the execution
// side; the monitor only reads.
type PositionSource interface {
	Positions(ctx context.Context, sleeve domain.SleeveID) ([]domain.Position, error)
}

// RollProposal is an externally proposed roll to be validated by the full
// decision pipeline.
type RollProposal struct {
	Position  domain.Position
	RollDebit decimal.Decimal
	Quote     liquidity.ContractQuote
	OrderSize decimal.Decimal
}

// RollDecision aggregates every stage of the roll pipeline. Approved is true
// only when the breach trigger fired, liquidity admitted the order, and the
// cost ceiling held; all violations from all stages are reported together.
type RollDecision struct {
	Sleeve     domain.SleeveID     `json:"sleeve"`
	Breach     breach.Result       `json:"breach"`
	Liquidity  liquidity.Result    `json:"liquidity"`
	Cost       rollcost.Analysis   `json:"cost"`
	Approved   bool                `json:"approved"`
	Violations domain.ViolationSet `json:"violations,omitempty"`
	Escalated  *protocol.TransitionEvent `json:"escalated,omitempty"`
}

// Status is a point-in-time view of the monitor for the operational surface.
type Status struct {
	Sleeve         domain.SleeveID `json:"sleeve"`
	Level          protocol.Level  `json:"level"`
	LevelName      string          `json:"level_name"`
	Cadence        time.Duration   `json:"cadence"`
	LastTransition time.Time       `json:"last_transition"`
}

// Deps are the monitor's injected collaborators. No hidden globals: every
// monitor is explicitly constructed with what it talks to.
type Deps struct {
	Feed      marketdata.Feed
	Positions PositionSource
	Ledger    ledger.Ledger
	Executor  broker.Executor
	Gate      *liquidity.Gate
	Planner   *hedge.Planner
	Journal   persistence.Journal
	Metrics   *metrics.Collector
}

// Monitor is one sleeve's monitoring actor.
type Monitor struct {
	sleeve  domain.SleeveID
	symbol  string
	tierCfg account.TierConfig
	machine *protocol.Machine
	deps    Deps

	cmds   chan func(now time.Time)
	events chan protocol.TransitionEvent
	now    func() time.Time

	breachActive bool
	breachSince  time.Time
}

// New builds the monitor for one sleeve at L0.
func New(sleeve domain.SleeveID, symbol string, tierCfg account.TierConfig, table protocol.LevelTable, deps Deps) *Monitor {
	now := time.Now()
	m := &Monitor{
		sleeve:  sleeve,
		symbol:  symbol,
		tierCfg: tierCfg,
		machine: protocol.NewMachine(sleeve, table, now),
		deps:    deps,
		cmds:    make(chan func(now time.Time), 16),
		events:  make(chan protocol.TransitionEvent, 16),
		now:     time.Now,
	}
	if deps.Metrics != nil {
		deps.Metrics.SetLevel(sleeve, protocol.L0Normal)
	}
	return m
}

// Events streams transition events to collaborators (journal consumers,
// status surfaces). Closed when Run returns.
func (m *Monitor) Events() <-chan protocol.TransitionEvent {
	return m.events
}

// Run drives the monitoring loop until ctx is cancelled. The tick interval
// always follows the current level, and a transition re-arms the next tick
// at the new cadence immediately.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.events)

	timer := time.NewTimer(m.machine.Config().MonitorInterval)
	defer timer.Stop()

	log.Info().
		Str("sleeve", string(m.sleeve)).
		Str("symbol", m.symbol).
		Dur("cadence", m.machine.Config().MonitorInterval).
		Msg("sleeve monitor started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("sleeve", string(m.sleeve)).Msg("sleeve monitor stopped")
			return
		case cmd := <-m.cmds:
			cmd(m.now())
			m.rearm(timer)
		case <-timer.C:
			m.tick(ctx, m.now())
			m.rearm(timer)
		}
	}
}

func (m *Monitor) rearm(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(m.machine.Config().MonitorInterval)
}

// tick runs one monitoring cycle: snapshot, breach metrics, escalation or
// de-escalation, and hedge deployment when recovery is entered.
func (m *Monitor) tick(ctx context.Context, now time.Time) {
	snap, err := m.deps.Feed.GetSnapshot(ctx, m.symbol)
	if err != nil {
		if _, insufficient := err.(*domain.InsufficientDataError); insufficient {
			// Uninterpretable market state: the machine fails closed.
			if ev, _ := m.machine.EvaluateEscalation(now, nil); ev != nil {
				m.emit(ctx, *ev)
			}
			return
		}
		log.Error().Err(err).Str("sleeve", string(m.sleeve)).Msg("snapshot fetch failed")
		return
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveSnapshotAge(now.Sub(snap.Timestamp).Seconds())
	}

	positions, err := m.deps.Positions.Positions(ctx, m.sleeve)
	if err != nil {
		log.Error().Err(err).Str("sleeve", string(m.sleeve)).Msg("position read failed")
		if ev, _ := m.machine.EvaluateEscalation(now, nil); ev != nil {
			m.emit(ctx, *ev)
		}
		return
	}

	mtr, err := m.breachMetrics(positions, snap, now)
	if err != nil {
		if ev, _ := m.machine.EvaluateEscalation(now, nil); ev != nil {
			m.emit(ctx, *ev)
		}
		return
	}

	prior := m.machine.Current()
	if ev, evalErr := m.machine.EvaluateEscalation(now, mtr); ev != nil {
		m.emit(ctx, *ev)
		if ev.To >= protocol.L2Recovery && ev.To > prior {
			m.deployHedge(ctx, snap)
		}
		return
	} else if evalErr != nil {
		log.Debug().Err(evalErr).Str("sleeve", string(m.sleeve)).Msg("escalation dwell-blocked")
		return
	}

	if ev, evalErr := m.machine.EvaluateDeescalation(now, mtr); ev != nil {
		m.emit(ctx, *ev)
	} else if evalErr != nil {
		log.Debug().Err(evalErr).Str("sleeve", string(m.sleeve)).Msg("de-escalation dwell-blocked")
	}
}

// breachMetrics folds the sleeve's positions into one metrics reading: the
// worst ATR breach multiple and the worst position loss, plus how long the
// breach has persisted.
func (m *Monitor) breachMetrics(positions []domain.Position, snap domain.MarketSnapshot, now time.Time) (*protocol.Metrics, error) {
	worstMultiple := decimal.Zero
	worstLoss := decimal.Zero

	for _, pos := range positions {
		res, err := breach.Evaluate(pos, snap, m.tierCfg.RollTriggerATR)
		if err != nil {
			return nil, err
		}
		if res.Multiple.GreaterThan(worstMultiple) {
			worstMultiple = res.Multiple
		}
		if loss := positionLossPct(pos); loss.GreaterThan(worstLoss) {
			worstLoss = loss
		}
	}

	inBreach := worstMultiple.GreaterThanOrEqual(decimal.RequireFromString("1.0"))
	switch {
	case inBreach && !m.breachActive:
		m.breachActive = true
		m.breachSince = now
	case !inBreach:
		m.breachActive = false
	}

	var timeInBreach time.Duration
	if m.breachActive {
		timeInBreach = now.Sub(m.breachSince)
	}

	return &protocol.Metrics{
		ATRBreachMultiple: worstMultiple,
		LossPct:           worstLoss,
		TimeInBreach:      timeInBreach,
	}, nil
}

// positionLossPct is the unrealized loss of a short option position as a
// percentage of the credit received; zero when the position is profitable.
func positionLossPct(pos domain.Position) decimal.Decimal {
	if !pos.EntryCredit.IsPositive() {
		return decimal.Zero
	}
	loss := pos.CurrentMark.Sub(pos.EntryCredit)
	if !loss.IsPositive() {
		return decimal.Zero
	}
	return loss.DivRound(pos.EntryCredit, 8).Mul(decimal.RequireFromString("100"))
}

// deployHedge computes a deployment plan for the current snapshot and, when
// approved, hands both legs to the broker without awaiting fills.
func (m *Monitor) deployHedge(ctx context.Context, snap domain.MarketSnapshot) {
	equity, err := m.deps.Ledger.SleeveEquity(ctx, m.sleeve)
	if err != nil {
		log.Error().Err(err).Str("sleeve", string(m.sleeve)).Msg("hedge skipped: sleeve equity unavailable")
		return
	}
	gains, err := m.deps.Ledger.QuarterlyGains(ctx, m.sleeve)
	if err != nil {
		log.Error().Err(err).Str("sleeve", string(m.sleeve)).Msg("hedge skipped: quarterly gains unavailable")
		return
	}

	// The ledger exposes equity only, no separate cash figure, so sleeve
	// equity stands in for deployable capital here.
	plan, err := m.deps.Planner.CreateDeploymentPlan(
		m.sleeve, m.machine.Current(), equity, gains, snap.VIX, snap.Price, equity)
	if err != nil {
		log.Error().Err(err).Str("sleeve", string(m.sleeve)).Msg("hedge plan failed")
		return
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveHedgePlan(plan.Approved)
	}
	if !plan.Approved {
		log.Warn().
			Str("sleeve", string(m.sleeve)).
			Strs("violations", plan.Violations.Descriptions()).
			Msg("hedge deployment rejected")
		return
	}

	m.dispatchHedgeLeg(ctx, broker.HedgeOrder{
		OrderID: uuid.NewString(),
		Sleeve:  m.sleeve,
		Leg:     broker.LegSPXPut,
		Strike:  plan.SPXPutStrike,
		Budget:  plan.Allocation.SPXPuts,
	})
	m.dispatchHedgeLeg(ctx, broker.HedgeOrder{
		OrderID: uuid.NewString(),
		Sleeve:  m.sleeve,
		Leg:     broker.LegVIXCall,
		Strike:  plan.VIXCallStrike,
		Budget:  plan.Allocation.VIXCalls,
	})
}

// dispatchHedgeLeg fires one leg and confirms in the background. The monitor
// loop never blocks on broker acknowledgments.
func (m *Monitor) dispatchHedgeLeg(ctx context.Context, order broker.HedgeOrder) {
	acks, err := m.deps.Executor.SubmitHedge(ctx, order)
	if err != nil {
		log.Error().Err(err).Str("order", order.OrderID).Msg("hedge dispatch failed")
		return
	}
	go func() {
		select {
		case ack, ok := <-acks:
			if !ok {
				return
			}
			log.Info().
				Str("order", ack.OrderID).
				Bool("accepted", ack.Accepted).
				Str("reason", ack.Reason).
				Msg("hedge order acknowledged")
		case <-ctx.Done():
		}
	}()
}

// emit publishes a transition to the journal, metrics, and event stream.
func (m *Monitor) emit(ctx context.Context, ev protocol.TransitionEvent) {
	if m.deps.Journal != nil {
		if err := m.deps.Journal.RecordTransition(ctx, ev); err != nil {
			log.Error().Err(err).Str("event", ev.ID.String()).Msg("journal write failed")
		}
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.ObserveTransition(ev)
	}
	select {
	case m.events <- ev:
	default:
		log.Warn().Str("sleeve", string(m.sleeve)).Msg("event stream full, dropping transition event")
	}
}

// CheckRoll runs the full roll decision pipeline inside the actor, so the
// escalation override is applied against the latest committed level. It
// blocks until the actor processes the command or ctx is cancelled.
func (m *Monitor) CheckRoll(ctx context.Context, proposal RollProposal) (RollDecision, error) {
	type reply struct {
		decision RollDecision
		err      error
	}
	done := make(chan reply, 1)

	cmd := func(now time.Time) {
		d, err := m.evaluateRoll(ctx, now, proposal)
		done <- reply{decision: d, err: err}
	}

	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return RollDecision{}, ctx.Err()
	}
	select {
	case r := <-done:
		return r.decision, r.err
	case <-ctx.Done():
		return RollDecision{}, ctx.Err()
	}
}

// evaluateRoll composes breach trigger, liquidity admission, and roll cost.
// A cost ceiling breach forces L3 immediately: the override always wins over
// any slower in-flight evaluation because it runs on the actor itself.
func (m *Monitor) evaluateRoll(ctx context.Context, now time.Time, p RollProposal) (RollDecision, error) {
	snap, err := m.deps.Feed.GetSnapshot(ctx, m.symbol)
	if err != nil {
		return RollDecision{}, err
	}

	breachRes, err := breach.Evaluate(p.Position, snap, m.tierCfg.RollTriggerATR)
	if err != nil {
		return RollDecision{}, err
	}

	liqRes, err := m.deps.Gate.Admit(uuid.NewString(), p.Quote, p.OrderSize)
	if err != nil {
		return RollDecision{}, err
	}

	costRes, err := rollcost.Analyze(p.Position.EntryCredit, p.RollDebit)
	if err != nil {
		return RollDecision{}, err
	}

	decision := RollDecision{
		Sleeve:    m.sleeve,
		Breach:    breachRes,
		Liquidity: liqRes,
		Cost:      costRes,
	}
	decision.Violations = append(decision.Violations, liqRes.Violations...)

	if !breachRes.Triggered {
		decision.Violations = append(decision.Violations, domain.Violation{
			Code:        "roll_trigger_not_met",
			Measured:    breachRes.Multiple.String(),
			Threshold:   breachRes.TriggerMultiple.String(),
			Description: fmt.Sprintf("breach multiple %s below roll trigger %s", breachRes.Multiple, breachRes.TriggerMultiple),
		})
	}

	if costRes.ThresholdExceeded {
		decision.Violations = append(decision.Violations, domain.Violation{
			Code:        "roll_cost_exceeded",
			Measured:    costRes.CostPct.String(),
			Threshold:   "0.50",
			Description: fmt.Sprintf("roll cost %s of original credit exceeds 50%% ceiling", costRes.CostPct),
		})
		if m.deps.Metrics != nil {
			m.deps.Metrics.ObserveGateRejection("roll_cost")
		}
		if ev, forceErr := m.machine.ForceEscalate(now, protocol.L3Preservation, protocol.CauseRollCostOverride); forceErr == nil && ev != nil {
			m.emit(ctx, *ev)
			decision.Escalated = ev
		}
	}

	if !liqRes.Admitted && m.deps.Metrics != nil {
		m.deps.Metrics.ObserveGateRejection("liquidity")
	}

	decision.Approved = len(decision.Violations) == 0
	return decision, nil
}

// CurrentStatus reads the sleeve's status through the actor.
func (m *Monitor) CurrentStatus(ctx context.Context) (Status, error) {
	done := make(chan Status, 1)
	cmd := func(now time.Time) {
		done <- Status{
			Sleeve:         m.sleeve,
			Level:          m.machine.Current(),
			LevelName:      m.machine.Current().String(),
			Cadence:        m.machine.Config().MonitorInterval,
			LastTransition: m.machine.LastTransition(),
		}
	}
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}
