package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wealthops/constitution/internal/domain"
)

// StalenessGuard wraps a Feed and converts stale or time-regressing
// snapshots into InsufficientData errors so downstream evaluation fails
// closed instead of acting on old prices.
type StalenessGuard struct {
	feed   Feed
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewStalenessGuard wraps feed with the configured staleness window.
func NewStalenessGuard(feed Feed, maxAge time.Duration) *StalenessGuard {
	return &StalenessGuard{
		feed:     feed,
		maxAge:   maxAge,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

// GetSnapshot fetches a snapshot and rejects it if it is older than the
// staleness window or moves backwards relative to the previous read.
func (g *StalenessGuard) GetSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	snap, err := g.feed.GetSnapshot(ctx, symbol)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	if age := g.now().Sub(snap.Timestamp); age > g.maxAge {
		return domain.MarketSnapshot{}, &domain.InsufficientDataError{
			Source: "market_feed",
			Reason: fmt.Sprintf("snapshot for %s is %v old, window is %v", symbol, age, g.maxAge),
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.lastSeen[symbol]; ok && snap.Timestamp.Before(prev) {
		return domain.MarketSnapshot{}, &domain.InsufficientDataError{
			Source: "market_feed",
			Reason: fmt.Sprintf("snapshot for %s regressed from %v to %v", symbol, prev, snap.Timestamp),
		}
	}
	g.lastSeen[symbol] = snap.Timestamp
	return snap, nil
}
