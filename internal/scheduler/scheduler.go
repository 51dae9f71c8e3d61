// Package scheduler runs the engine's time-driven jobs: the Friday
// assignment sweep and the daily account tier check. Jobs are cron-driven
// and idempotent; the assignment engine re-applies its own window gate, so a
// misconfigured schedule degrades to a no-op instead of a weekday sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/assignment"
	"github.com/wealthops/constitution/internal/broker"
	"github.com/wealthops/constitution/internal/domain"
	"github.com/wealthops/constitution/internal/ledger"
	"github.com/wealthops/constitution/internal/marketdata"
	"github.com/wealthops/constitution/internal/metrics"
	"github.com/wealthops/constitution/internal/persistence"
)

// Sleeve identifies one monitored sleeve for the scheduled jobs. The sleeve
// id doubles as the account id: each sleeve is one account instance in the
// tier lifecycle.
type Sleeve struct {
	ID     domain.SleeveID
	Symbol string
	Tier   account.Tier
}

// PositionSource mirrors the monitor's read-only view of open positions.
type PositionSource interface {
	Positions(ctx context.Context, sleeve domain.SleeveID) ([]domain.Position, error)
}

// Deps are the scheduler's collaborators.
type Deps struct {
	Feed       marketdata.Feed
	Positions  PositionSource
	Ledger     ledger.Ledger
	Executor   broker.Executor
	Assignment *assignment.Engine
	Fork       *account.Engine
	Journal    persistence.Journal
	Metrics    *metrics.Collector
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron       *cron.Cron
	sleeves    []Sleeve
	deps       Deps
	jobTimeout time.Duration
}

// New builds a scheduler over the given sleeves.
func New(sleeves []Sleeve, deps Deps) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		sleeves:    sleeves,
		deps:       deps,
		jobTimeout: 2 * time.Minute,
	}
}

// Start registers the jobs and starts the cron runner. Invalid cron
// expressions are returned, not logged away: a sweep that never fires is a
// compliance hole.
func (s *Scheduler) Start(assignmentSpec, tierSpec string) error {
	if _, err := s.cron.AddFunc(assignmentSpec, s.runAssignmentSweep); err != nil {
		return &domain.ConfigurationError{Section: "scheduler", Reason: "invalid assignment sweep schedule: " + err.Error()}
	}
	if tierSpec != "" {
		if _, err := s.cron.AddFunc(tierSpec, s.runTierCheck); err != nil {
			return &domain.ConfigurationError{Section: "scheduler", Reason: "invalid tier check schedule: " + err.Error()}
		}
	}
	s.cron.Start()
	log.Info().
		Str("assignment_sweep", assignmentSpec).
		Str("tier_check", tierSpec).
		Msg("scheduler started")
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// runAssignmentSweep evaluates every sleeve's positions expiring in the
// Friday-Monday span. A sleeve whose data cannot be read fails the whole
// sweep loudly; a silent partial sweep would look like a clean one.
func (s *Scheduler) runAssignmentSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	var positions []domain.Position
	snapshots := make(map[string]domain.MarketSnapshot)
	for _, sleeve := range s.sleeves {
		pos, err := s.deps.Positions.Positions(ctx, sleeve.ID)
		if err != nil {
			log.Error().Err(err).Str("sleeve", string(sleeve.ID)).Msg("assignment sweep aborted: position read failed")
			return
		}
		positions = append(positions, pos...)

		if _, ok := snapshots[sleeve.Symbol]; ok {
			continue
		}
		snap, err := s.deps.Feed.GetSnapshot(ctx, sleeve.Symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", sleeve.Symbol).Msg("assignment sweep aborted: snapshot failed")
			return
		}
		snapshots[sleeve.Symbol] = snap
	}

	checks, err := s.deps.Assignment.FridayCheck(positions, snapshots)
	if err != nil {
		log.Error().Err(err).Msg("assignment sweep failed")
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveAssignmentSweep()
	}

	for _, check := range checks {
		log.Warn().
			Str("symbol", check.Symbol).
			Str("tier", check.Tier.String()).
			Str("action", string(check.Action)).
			Str("urgency", string(check.Urgency)).
			Str("probability_pct", check.Probability.String()).
			Msg("assignment risk flagged")

		if check.Urgency != assignment.UrgencyImmediate {
			continue
		}
		s.dispatchPivot(ctx, check)
	}
}

// dispatchPivot hands an immediate-urgency pivot to the broker. The sweep
// does not wait for the fill.
func (s *Scheduler) dispatchPivot(ctx context.Context, check assignment.Check) {
	sleeve, pos, ok := s.findPosition(ctx, check)
	if !ok {
		log.Error().Str("symbol", check.Symbol).Msg("pivot skipped: position no longer open")
		return
	}
	acks, err := s.deps.Executor.SubmitAssignmentAction(ctx, broker.AssignmentAction{
		OrderID:  uuid.NewString(),
		Sleeve:   sleeve,
		Position: pos,
		Action:   string(check.Action),
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", check.Symbol).Msg("pivot dispatch failed")
		return
	}
	go func() {
		if ack, ok := <-acks; ok {
			log.Info().
				Str("order", ack.OrderID).
				Bool("accepted", ack.Accepted).
				Msg("pivot acknowledged")
		}
	}()
}

func (s *Scheduler) findPosition(ctx context.Context, check assignment.Check) (domain.SleeveID, domain.Position, bool) {
	for _, sleeve := range s.sleeves {
		positions, err := s.deps.Positions.Positions(ctx, sleeve.ID)
		if err != nil {
			continue
		}
		for _, pos := range positions {
			if pos.Symbol == check.Symbol && pos.Strike.Equal(check.Strike) && pos.Right == check.Right {
				return sleeve.ID, pos, true
			}
		}
	}
	return "", domain.Position{}, false
}

// runTierCheck validates each sleeve account against its tier and forks
// eligible accounts. Forking is one-directional; a completed fork is recorded
// in the journal before the event is acted on anywhere else.
func (s *Scheduler) runTierCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	for _, sleeve := range s.sleeves {
		value, err := s.deps.Ledger.AccountValue(ctx, string(sleeve.ID))
		if err != nil {
			log.Error().Err(err).Str("account", string(sleeve.ID)).Msg("tier check skipped: account value unavailable")
			continue
		}

		if !s.deps.Fork.CanFork(sleeve.Tier, value) {
			continue
		}
		ev, err := s.deps.Fork.Fork(string(sleeve.ID), sleeve.Tier, value)
		if err != nil {
			log.Error().Err(err).Str("account", string(sleeve.ID)).Msg("fork failed")
			continue
		}
		if s.deps.Journal != nil {
			if err := s.deps.Journal.RecordFork(ctx, *ev); err != nil {
				log.Error().Err(err).Str("account", string(sleeve.ID)).Msg("fork journal write failed")
			}
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveFork()
		}
	}
}
