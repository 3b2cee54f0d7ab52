package catalog

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedSearcher wraps a Searcher with a Redis-backed result cache. The
// dialog re-renders result pages from session state, so the cache mostly
// absorbs users retyping the same query. Entries are JSON-encoded result
// lists keyed by mode and a digest of the normalized query. Cache failures
// only cost a round-trip to the inner searcher.
type CachedSearcher struct {
	inner Searcher
	rdb   resultCache
	ttl   time.Duration
	log   *zap.Logger
}

// resultCache is the slice of the redis API the wrapper uses. *redis.Client
// satisfies it.
type resultCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewCachedSearcher builds the caching wrapper. Callers that could not
// establish a Redis connection should use the inner searcher directly
// instead of passing a nil client here.
func NewCachedSearcher(inner Searcher, rdb resultCache, ttl time.Duration, log *zap.Logger) *CachedSearcher {
	return &CachedSearcher{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(query string, mode Mode) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("catalog:%s:%x", mode, sum)
}

// Search serves from Redis when possible and falls through to the inner
// searcher otherwise, storing the fresh result best-effort.
func (c *CachedSearcher) Search(ctx context.Context, query string, mode Mode) ([]Result, error) {
	key := cacheKey(query, mode)
	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached []Result
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		// Corrupt entry: drop it and fall through.
		_ = c.rdb.Del(ctx, key).Err()
	}

	results, err := c.inner.Search(ctx, query, mode)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(results); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Debug("catalog cache store failed", zap.Error(err))
		}
	}
	return results, nil
}
