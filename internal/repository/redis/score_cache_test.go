package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespacefinder/safespace/internal/domain"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
)

func newCache(t *testing.T, cfg BreakerConfig) (*ScoreCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewScoreCache(client, time.Minute, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestScoreCache_SetGet(t *testing.T) {
	cache, mr := newCache(t, DefaultBreakerConfig())
	ctx := context.Background()
	want := domain.Aggregate{SafetyScore: 87, AverageRating: 4.4, TotalReviews: 10}

	require.NoError(t, cache.Set(ctx, "b1", want))
	assert.True(t, mr.Exists("safespace:score:b1"))
	assert.Equal(t, time.Minute, mr.TTL("safespace:score:b1"))

	got, ok, err := cache.Get(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestScoreCache_Miss(t *testing.T) {
	cache, _ := newCache(t, DefaultBreakerConfig())

	_, ok, err := cache.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScoreCache_Expiry(t *testing.T) {
	cache, mr := newCache(t, DefaultBreakerConfig())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "b1", domain.Aggregate{SafetyScore: 10}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScoreCache_Delete(t *testing.T) {
	cache, mr := newCache(t, DefaultBreakerConfig())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "b1", domain.Aggregate{SafetyScore: 10}))
	require.NoError(t, cache.Delete(ctx, "b1"))
	assert.False(t, mr.Exists("safespace:score:b1"))
}

func TestScoreCache_AddKeepsExistingEntry(t *testing.T) {
	cache, mr := newCache(t, DefaultBreakerConfig())
	ctx := context.Background()
	fresh := domain.Aggregate{SafetyScore: 100, AverageRating: 5.0, TotalReviews: 1}

	require.NoError(t, cache.Set(ctx, "b1", fresh))
	require.NoError(t, cache.Add(ctx, "b1", domain.Aggregate{}))

	got, ok, err := cache.Get(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fresh, got)

	require.NoError(t, cache.Add(ctx, "b2", fresh))
	assert.True(t, mr.Exists("safespace:score:b2"))
	assert.Equal(t, time.Minute, mr.TTL("safespace:score:b2"))
}

func TestScoreCache_CorruptEntry(t *testing.T) {
	cache, mr := newCache(t, DefaultBreakerConfig())
	require.NoError(t, mr.Set("safespace:score:b1", "not json"))

	_, ok, err := cache.Get(context.Background(), "b1")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestScoreCache_MissesDoNotTripBreaker(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.Name = "misses"
	cfg.MinRequests = 2
	cache, _ := newCache(t, cfg)

	for range 10 {
		_, _, err := cache.Get(context.Background(), "nothing")
		require.NoError(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, cache.State())
}

func TestScoreCache_BreakerOpensWhenRedisIsDown(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.Name = "down"
	cfg.MinRequests = 2
	cfg.Timeout = time.Hour
	cache, mr := newCache(t, cfg)
	mr.Close()

	ctx := context.Background()
	for range 2 {
		err := cache.Set(ctx, "b1", domain.Aggregate{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, cache.State())

	_, _, err := cache.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrCacheUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Error(t, cache.Ping(ctx))
}
