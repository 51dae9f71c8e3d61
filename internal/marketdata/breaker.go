package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/wealthops/constitution/internal/domain"
)

// BreakerFeed wraps a Feed in a circuit breaker. A tripped breaker surfaces
// as InsufficientData, which the protocol machine treats as a fail-closed
// signal rather than an excuse to keep the last level.
type BreakerFeed struct {
	feed Feed
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerFeed wraps feed with a breaker that opens after consecutive
// failures and probes again after the cool-off interval.
func NewBreakerFeed(feed Feed, name string, maxFailures uint32, coolOff time.Duration) *BreakerFeed {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: coolOff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("market feed breaker state change")
		},
	}
	return &BreakerFeed{feed: feed, cb: gobreaker.NewCircuitBreaker(settings)}
}

// GetSnapshot executes the fetch through the breaker.
func (b *BreakerFeed) GetSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.feed.GetSnapshot(ctx, symbol)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return domain.MarketSnapshot{}, &domain.InsufficientDataError{
			Source: "market_feed",
			Reason: "feed circuit breaker open",
		}
	}
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	return out.(domain.MarketSnapshot), nil
}

// State exposes the breaker state for the status endpoint.
func (b *BreakerFeed) State() gobreaker.State {
	return b.cb.State()
}
