package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/safespacefinder/safespace/internal/domain"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
)

const scoreKeyPrefix = "safespace:score:"

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safespace_score_cache_lookups_total",
		Help: "Score cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
)

// ErrCacheUnavailable is returned while the breaker is open.
var ErrCacheUnavailable = errors.New("score cache unavailable")

// BreakerConfig tunes the circuit breaker in front of Redis.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig trips after half of at least five calls fail and
// probes again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "redis-score-cache",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ScoreCache keeps the latest aggregate of each business in Redis. Every
// call goes through a circuit breaker so a dead Redis costs one fast error
// instead of a network timeout per request.
type ScoreCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// NewScoreCache creates a cache whose entries expire after ttl.
func NewScoreCache(client redis.Cmdable, ttl time.Duration, cfg BreakerConfig, logger *slog.Logger) *ScoreCache {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &ScoreCache{
		client:  client,
		ttl:     ttl,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  logger,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the breaker state.
func (c *ScoreCache) State() gobreaker.State {
	return c.breaker.State()
}

// Get returns the cached aggregate of businessID. ok is false on a miss.
func (c *ScoreCache) Get(ctx context.Context, businessID string) (agg domain.Aggregate, ok bool, err error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.client.Get(ctx, scoreKeyPrefix+businessID).Bytes()
	})
	switch {
	case errors.Is(err, redis.Nil):
		cacheLookups.WithLabelValues("miss").Inc()
		return domain.Aggregate{}, false, nil
	case err != nil:
		cacheLookups.WithLabelValues("error").Inc()
		return domain.Aggregate{}, false, c.wrap("get", err)
	}

	if err := json.Unmarshal(data, &agg); err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		return domain.Aggregate{}, false, fmt.Errorf("unmarshal cached score: %w", err)
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return agg, true, nil
}

// Set stores agg for businessID with the configured TTL.
func (c *ScoreCache) Set(ctx context.Context, businessID string, agg domain.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, scoreKeyPrefix+businessID, data, c.ttl).Err()
	})
	if err != nil {
		return c.wrap("set", err)
	}
	return nil
}

// Add stores agg only when businessID has no entry yet. Read-through refills
// use it so they never replace a value written by a newer recompute.
func (c *ScoreCache) Add(ctx context.Context, businessID string, agg domain.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.SetNX(ctx, scoreKeyPrefix+businessID, data, c.ttl).Err()
	})
	if err != nil {
		return c.wrap("add", err)
	}
	return nil
}

// Delete drops the entry of businessID.
func (c *ScoreCache) Delete(ctx context.Context, businessID string) error {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Del(ctx, scoreKeyPrefix+businessID).Err()
	})
	if err != nil {
		return c.wrap("del", err)
	}
	return nil
}

// Ping checks Redis directly, bypassing the breaker, for readiness probes.
func (c *ScoreCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ScoreCache) wrap(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Unavailable("score cache", errors.Join(ErrCacheUnavailable, err))
	}
	return fmt.Errorf("redis %s score: %w", op, err)
}
