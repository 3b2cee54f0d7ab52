package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mapCache is an in-memory stand-in for the redis commands the wrapper uses.
type mapCache struct {
	data map[string]string
	sets int
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string]string)} }

func (c *mapCache) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := c.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.data[key] = string(value.([]byte))
	c.sets++
	return redis.NewStatusResult("OK", nil)
}

func (c *mapCache) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(c.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// countingSearcher counts how often the inner search actually runs.
type countingSearcher struct {
	results []Result
	calls   int
}

func (s *countingSearcher) Search(_ context.Context, _ string, _ Mode) ([]Result, error) {
	s.calls++
	return s.results, nil
}

func TestCachedSearchServesSecondQueryFromCache(t *testing.T) {
	inner := &countingSearcher{results: []Result{{ExternalRef: 98765, Title: "Чайка", Venue: "МХТ"}}}
	cache := newMapCache()
	c := NewCachedSearcher(inner, cache, time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := c.Search(ctx, "Чайка", ModeTitle)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cache.sets)

	second, err := c.Search(ctx, "Чайка", ModeTitle)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "repeat query must not reach the inner searcher")
}

func TestCachedSearchKeyNormalizesQueryButNotMode(t *testing.T) {
	inner := &countingSearcher{results: []Result{}}
	c := NewCachedSearcher(inner, newMapCache(), time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := c.Search(ctx, "  ЧАЙКА ", ModeTitle)
	require.NoError(t, err)
	_, err = c.Search(ctx, "чайка", ModeTitle)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "case and whitespace variants share an entry")

	_, err = c.Search(ctx, "чайка", ModeVenue)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "modes are cached separately")
}

func TestCachedSearchDropsCorruptEntry(t *testing.T) {
	inner := &countingSearcher{results: []Result{{ExternalRef: 1, Title: "Чайка"}}}
	cache := newMapCache()
	cache.data[cacheKey("чайка", ModeTitle)] = "{not json"

	c := NewCachedSearcher(inner, cache, time.Minute, zap.NewNop())

	results, err := c.Search(context.Background(), "чайка", ModeTitle)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, inner.calls, "corrupt entry falls through to the inner searcher")
}
