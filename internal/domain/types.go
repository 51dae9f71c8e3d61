package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OptionRight identifies the option type of a position.
type OptionRight string

const (
	RightCall OptionRight = "CALL"
	RightPut  OptionRight = "PUT"
)

// SleeveID identifies a capital-allocated trading unit monitored independently.
type SleeveID string

// Greeks carries per-contract sensitivities. Delta is always populated;
// the second-order fields are nil when the feed does not supply them.
type Greeks struct {
	Delta float64  `json:"delta"`
	Gamma *float64 `json:"gamma,omitempty"`
	Theta *float64 `json:"theta,omitempty"`
	Vega  *float64 `json:"vega,omitempty"`
}

// Position is a single short option position owned by one sleeve.
// It is mutated only by execution confirmations from the broker collaborator.
type Position struct {
	Symbol      string          `json:"symbol"`
	Strike      decimal.Decimal `json:"strike"`
	Expiration  time.Time       `json:"expiration"`
	Right       OptionRight     `json:"right"`
	Quantity    int             `json:"quantity"`
	EntryCredit decimal.Decimal `json:"entry_credit"`
	CurrentMark decimal.Decimal `json:"current_mark"`
	Greeks      Greeks          `json:"greeks"`
}

// MarketSnapshot is an immutable read of the market used for one evaluation
// cycle. It is never mutated after construction.
type MarketSnapshot struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	ATR5      decimal.Decimal `json:"atr5"`
	VIX       decimal.Decimal `json:"vix"`
	Timestamp time.Time       `json:"timestamp"`
}

// Violation is a single structured threshold breach. Evaluators collect every
// violation they find rather than stopping at the first, so callers always see
// the complete rejection reason set.
type Violation struct {
	Code        string `json:"code"`
	Measured    string `json:"measured"`
	Threshold   string `json:"threshold"`
	Description string `json:"description"`
}

// ViolationSet is the full set of violations from one evaluation.
type ViolationSet []Violation

// Descriptions flattens the set into human-readable strings for logging.
func (vs ViolationSet) Descriptions() []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Description)
	}
	return out
}
