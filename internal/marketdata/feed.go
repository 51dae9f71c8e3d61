// Package marketdata defines the market-data collaborator contract and the
// guards the engine wraps it in: staleness/monotonicity checks, a circuit
// breaker, request rate limiting, and a last-known-good cache.
package marketdata

import (
	"context"

	"github.com/wealthops/constitution/internal/domain"
)

// Feed supplies fresh market snapshots. Implementations live outside the
// core; the engine only consumes this contract. Timestamps must be
// monotonically increasing per symbol.
type Feed interface {
	GetSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error)
}

// FeedFunc adapts a function to the Feed interface.
type FeedFunc func(ctx context.Context, symbol string) (domain.MarketSnapshot, error)

func (f FeedFunc) GetSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	return f(ctx, symbol)
}
