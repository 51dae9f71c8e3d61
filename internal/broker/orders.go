// Package broker defines the execution collaborator contract. The core
// hands orders off asynchronously and never blocks on fills: dispatch is
// fire-and-confirm through an acknowledgment channel.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wealthops/constitution/internal/domain"
)

// RollOrder closes an at-risk short option and opens a replacement.
type RollOrder struct {
	OrderID     string          `json:"order_id"`
	Sleeve      domain.SleeveID `json:"sleeve"`
	Close       domain.Position `json:"close"`
	NewStrike   decimal.Decimal `json:"new_strike"`
	NewExpiry   time.Time       `json:"new_expiry"`
	MaxNetDebit decimal.Decimal `json:"max_net_debit"`
}

// HedgeLeg identifies which hedge instrument a HedgeOrder buys.
type HedgeLeg string

const (
	LegSPXPut  HedgeLeg = "SPX_PUT"
	LegVIXCall HedgeLeg = "VIX_CALL"
)

// HedgeOrder buys one leg of an approved hedge deployment plan.
type HedgeOrder struct {
	OrderID string          `json:"order_id"`
	Sleeve  domain.SleeveID `json:"sleeve"`
	Leg     HedgeLeg        `json:"leg"`
	Strike  decimal.Decimal `json:"strike"`
	Budget  decimal.Decimal `json:"budget"`
}

// AssignmentAction executes a covered-call pivot decision.
type AssignmentAction struct {
	OrderID  string          `json:"order_id"`
	Sleeve   domain.SleeveID `json:"sleeve"`
	Position domain.Position `json:"position"`
	Action   string          `json:"action"`
}

// Ack is the broker's asynchronous confirmation of a dispatched order.
type Ack struct {
	OrderID   string    `json:"order_id"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Executor is implemented by the broker collaborator. Submit calls return
// immediately with an acknowledgment channel; the core never awaits fills
// inline, and in-flight dispatches are not cancelled retroactively.
type Executor interface {
	SubmitRoll(ctx context.Context, order RollOrder) (<-chan Ack, error)
	SubmitHedge(ctx context.Context, order HedgeOrder) (<-chan Ack, error)
	SubmitAssignmentAction(ctx context.Context, action AssignmentAction) (<-chan Ack, error)
}
