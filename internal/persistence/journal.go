// Package persistence defines the audit journal contract. Every protocol
// transition and fork event is durable; auditors reconstruct decisions from
// the journal alone.
package persistence

import (
	"context"

	"github.com/wealthops/constitution/internal/account"
	"github.com/wealthops/constitution/internal/protocol"
)

// Journal records auditable engine events.
type Journal interface {
	RecordTransition(ctx context.Context, ev protocol.TransitionEvent) error
	RecordFork(ctx context.Context, ev account.ForkEvent) error
	Ping(ctx context.Context) error
}

// NopJournal discards events. Used by one-shot CLI checks where no journal
// is configured.
type NopJournal struct{}

func (NopJournal) RecordTransition(ctx context.Context, ev protocol.TransitionEvent) error { return nil }
func (NopJournal) RecordFork(ctx context.Context, ev account.ForkEvent) error             { return nil }
func (NopJournal) Ping(ctx context.Context) error                                         { return nil }
