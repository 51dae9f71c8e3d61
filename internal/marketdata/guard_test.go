package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthops/constitution/internal/domain"
)

func testSnap(symbol string, at time.Time) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Symbol:    symbol,
		Price:     decimal.RequireFromString("500"),
		ATR5:      decimal.RequireFromString("4"),
		VIX:       decimal.RequireFromString("18"),
		Timestamp: at,
	}
}

func TestStalenessGuard_RejectsStaleSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	g := NewStalenessGuard(FeedFunc(func(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
		return testSnap(symbol, now.Add(-2*time.Minute)), nil
	}), time.Minute)
	g.now = func() time.Time { return now }

	_, err := g.GetSnapshot(context.Background(), "SPY")
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
}

func TestStalenessGuard_RejectsTimestampRegression(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stamps := []time.Time{now.Add(-time.Second), now.Add(-10 * time.Second)}
	i := 0

	g := NewStalenessGuard(FeedFunc(func(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
		s := testSnap(symbol, stamps[i])
		i++
		return s, nil
	}), time.Minute)
	g.now = func() time.Time { return now }

	_, err := g.GetSnapshot(context.Background(), "SPY")
	require.NoError(t, err)

	_, err = g.GetSnapshot(context.Background(), "SPY")
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
}

func TestStalenessGuard_PassesFreshSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	g := NewStalenessGuard(FeedFunc(func(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
		return testSnap(symbol, now.Add(-5*time.Second)), nil
	}), time.Minute)
	g.now = func() time.Time { return now }

	snap, err := g.GetSnapshot(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", snap.Symbol)
}

func TestBreakerFeed_OpensAfterConsecutiveFailures(t *testing.T) {
	feedErr := errors.New("provider down")
	b := NewBreakerFeed(FeedFunc(func(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
		return domain.MarketSnapshot{}, feedErr
	}), "test-feed", 3, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := b.GetSnapshot(ctx, "SPY")
		require.ErrorIs(t, err, feedErr)
	}

	// Breaker is now open: the failure becomes InsufficientData so the
	// protocol machine fails closed.
	_, err := b.GetSnapshot(ctx, "SPY")
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
}
