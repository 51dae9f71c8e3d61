package marketdata

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/wealthops/constitution/internal/domain"
)

// RateLimitedFeed bounds how hard the engine polls the upstream provider.
// L3 sleeves tick every second; without this the aggregate cadence across
// sleeves could exceed the provider's request budget.
type RateLimitedFeed struct {
	feed    Feed
	limiter *rate.Limiter
}

// NewRateLimitedFeed wraps feed with a token bucket of rps requests per
// second and the given burst.
func NewRateLimitedFeed(feed Feed, rps float64, burst int) *RateLimitedFeed {
	return &RateLimitedFeed{
		feed:    feed,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// GetSnapshot waits for a token, then fetches. Context cancellation while
// waiting aborts the read cleanly.
func (r *RateLimitedFeed) GetSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.MarketSnapshot{}, err
	}
	return r.feed.GetSnapshot(ctx, symbol)
}

var (
	_ Feed = (*RateLimitedFeed)(nil)
	_ Feed = (*BreakerFeed)(nil)
	_ Feed = (*StalenessGuard)(nil)
)
