// Package postgres persists the audit journal in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/persistence"
	"github.com/wealthops/constitution/internal/protocol"
)

type journalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewJournal creates a PostgreSQL-backed journal.
func NewJournal(db *sqlx.DB, timeout time.Duration) persistence.Journal {
	return &journalRepo{db: db, timeout: timeout}
}

// RecordTransition appends one protocol transition. The event id is the
// uniqueness anchor, so redelivery of the same event is a clean conflict.
func (r *journalRepo) RecordTransition(ctx context.Context, ev protocol.TransitionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO protocol_transitions
			(id, sleeve, from_level, to_level, cause, breach_multiple, loss_pct, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		ev.ID, string(ev.Sleeve), ev.From.String(), ev.To.String(),
		string(ev.Cause), ev.BreachMultiple.String(), ev.LossPct.String(), ev.Timestamp)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate transition event %s: %w", ev.ID, err)
		}
		return fmt.Errorf("record transition %s: %w", ev.ID, err)
	}
	return nil
}

// RecordFork appends one fork event.
func (r *journalRepo) RecordFork(ctx context.Context, ev account.ForkEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO fork_events
			(source_account_id, new_account_id, new_tier, account_value, ts)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		ev.SourceAccountID, ev.NewAccountID, string(ev.NewTier),
		ev.AccountValue.String(), ev.Timestamp)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate fork event for %s: %w", ev.NewAccountID, err)
		}
		return fmt.Errorf("record fork for %s: %w", ev.SourceAccountID, err)
	}
	return nil
}

// Ping verifies connectivity at startup; a dead journal is startup-fatal.
func (r *journalRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("journal ping: %w", err)
	}
	return nil
}
