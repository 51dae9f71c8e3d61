package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wealthops/constitution/internal/domain"
)

// SnapshotCache stores the last known good snapshot per symbol in redis with
// a TTL equal to the staleness window. It smooths transient feed failures:
// a cached snapshot that is still inside the window is as good as a fresh
// read, while an expired key falls through to InsufficientData.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache builds the cache on an existing redis client.
func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: ttl}
}

func (c *SnapshotCache) key(symbol string) string {
	return "constitution:snapshot:" + symbol
}

// Put stores a snapshot with the cache TTL.
func (c *SnapshotCache) Put(ctx context.Context, snap domain.MarketSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(snap.Symbol), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache snapshot for %s: %w", snap.Symbol, err)
	}
	return nil
}

// Get returns the cached snapshot, or InsufficientData when the key is
// missing or expired.
func (c *SnapshotCache) Get(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	payload, err := c.rdb.Get(ctx, c.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketSnapshot{}, &domain.InsufficientDataError{
			Source: "snapshot_cache",
			Reason: fmt.Sprintf("no cached snapshot for %s", symbol),
		}
	}
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("read cached snapshot for %s: %w", symbol, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("decode cached snapshot for %s: %w", symbol, err)
	}
	return snap, nil
}

// CachedFeed reads through the primary feed and falls back to the cache when
// the primary fails. Successful reads refresh the cache best-effort.
type CachedFeed struct {
	primary Feed
	cache   *SnapshotCache
}

// NewCachedFeed composes the primary feed with the last-known-good cache.
func NewCachedFeed(primary Feed, cache *SnapshotCache) *CachedFeed {
	return &CachedFeed{primary: primary, cache: cache}
}

// GetSnapshot fetches from the primary, caching on success. On primary
// failure it serves the cached snapshot if one is still live; otherwise the
// primary's error propagates so the caller fails closed.
func (f *CachedFeed) GetSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	snap, err := f.primary.GetSnapshot(ctx, symbol)
	if err == nil {
		if cacheErr := f.cache.Put(ctx, snap); cacheErr != nil {
			log.Warn().Err(cacheErr).Str("symbol", symbol).Msg("snapshot cache write failed")
		}
		return snap, nil
	}

	cached, cacheErr := f.cache.Get(ctx, symbol)
	if cacheErr != nil {
		return domain.MarketSnapshot{}, err
	}
	log.Warn().Err(err).Str("symbol", symbol).Msg("primary feed failed, serving cached snapshot")
	return cached, nil
}

var _ Feed = (*CachedFeed)(nil)
