package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/safespacefinder/safespace/internal/domain"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
)

// ReviewStore reads the reviews of a business.
type ReviewStore interface {
	FindAllByBusinessID(ctx context.Context, businessID string) ([]domain.Review, error)
}

// BusinessStore persists derived fields. UpdateAggregate returns an error
// matching apperrors.ErrNotFound when the business does not exist.
type BusinessStore interface {
	UpdateAggregate(ctx context.Context, businessID string, agg domain.Aggregate) error
}

// ScoreCache receives every aggregate written. When Set fails the entry is
// deleted so readers fall back to the database instead of a stale value.
type ScoreCache interface {
	Set(ctx context.Context, businessID string, agg domain.Aggregate) error
	Delete(ctx context.Context, businessID string) error
}

// ScorePublisher announces every aggregate written.
type ScorePublisher interface {
	PublishScoreUpdated(ctx context.Context, businessID string, agg domain.Aggregate) error
}

// DefaultCountedStatuses is the status policy used when none is configured.
var DefaultCountedStatuses = []domain.ReviewStatus{domain.ReviewStatusApproved}

// Aggregator recomputes business aggregates from their reviews. Recomputes of
// one business are serialized within the process; different businesses run
// in parallel.
type Aggregator struct {
	reviews    ReviewStore
	businesses BusinessStore
	counted    []domain.ReviewStatus
	cache      ScoreCache
	publisher  ScorePublisher
	metrics    *Metrics
	locks      *keyedLocker
	logger     *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCountedStatuses sets which review statuses participate in the score.
// An empty list counts every review regardless of status.
func WithCountedStatuses(statuses ...domain.ReviewStatus) Option {
	return func(a *Aggregator) {
		a.counted = slices.Clone(statuses)
	}
}

// WithCache writes each new aggregate to c.
func WithCache(c ScoreCache) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithPublisher announces each new aggregate through p.
func WithPublisher(p ScorePublisher) Option {
	return func(a *Aggregator) { a.publisher = p }
}

// WithMetrics records recompute outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator creates an Aggregator counting DefaultCountedStatuses.
func NewAggregator(reviews ReviewStore, businesses BusinessStore, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		reviews:    reviews,
		businesses: businesses,
		counted:    slices.Clone(DefaultCountedStatuses),
		locks:      newKeyedLocker(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CountedStatuses returns the active status policy.
func (a *Aggregator) CountedStatuses() []domain.ReviewStatus {
	return slices.Clone(a.counted)
}

// Counts reports whether a review with status s participates in the score.
func (a *Aggregator) Counts(s domain.ReviewStatus) bool {
	return len(a.counted) == 0 || slices.Contains(a.counted, s)
}

// Recompute reads every review of businessID, derives the aggregate and
// stores it with a single write. A business that no longer exists is not an
// error. Storage errors are returned wrapped and nothing is written.
func (a *Aggregator) Recompute(ctx context.Context, businessID string) error {
	start := time.Now()

	unlock, err := a.locks.Lock(ctx, businessID)
	if err != nil {
		a.observe(outcomeError, start)
		return fmt.Errorf("recompute %s: %w", businessID, err)
	}
	defer unlock()

	reviews, err := a.reviews.FindAllByBusinessID(ctx, businessID)
	if err != nil {
		a.observe(outcomeError, start)
		return fmt.Errorf("recompute %s: load reviews: %w", businessID, err)
	}

	signals := make([]ReviewSignal, 0, len(reviews))
	for _, r := range reviews {
		if a.Counts(r.Status) {
			signals = append(signals, SignalOf(r))
		}
	}
	b := Analyze(signals)

	if err := a.businesses.UpdateAggregate(ctx, businessID, b.Aggregate); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			a.observe(outcomeNotFound, start)
			a.logger.DebugContext(ctx, "business gone, skipping aggregate update",
				slog.String("business_id", businessID),
			)
			return nil
		}
		a.observe(outcomeError, start)
		return fmt.Errorf("recompute %s: update aggregate: %w", businessID, err)
	}

	a.observe(outcomeOK, start)
	if a.metrics != nil {
		a.metrics.score.Observe(float64(b.SafetyScore))
	}

	a.logger.DebugContext(ctx, "safety score recomputed",
		slog.String("business_id", businessID),
		slog.Int("reviews", len(reviews)),
		slog.Int("counted", b.TotalReviews),
		slog.Int("safety_score", b.SafetyScore),
		slog.Float64("average_rating", b.AverageRating),
		slog.Float64("raw_score", b.RawScore),
		slog.Float64("verified_bonus", b.VerifiedBonus),
	)

	a.notify(ctx, businessID, b.Aggregate)
	return nil
}

// notify runs the best-effort side effects of a successful write.
func (a *Aggregator) notify(ctx context.Context, businessID string, agg domain.Aggregate) {
	if a.cache != nil {
		if err := a.cache.Set(ctx, businessID, agg); err != nil {
			a.logger.WarnContext(ctx, "failed to cache safety score",
				slog.String("business_id", businessID),
				slog.String("error", err.Error()),
			)
			if delErr := a.cache.Delete(ctx, businessID); delErr != nil {
				a.logger.ErrorContext(ctx, "failed to evict stale safety score",
					slog.String("business_id", businessID),
					slog.String("error", delErr.Error()),
				)
			}
		}
	}
	if a.publisher != nil {
		if err := a.publisher.PublishScoreUpdated(ctx, businessID, agg); err != nil {
			a.logger.WarnContext(ctx, "failed to publish score update",
				slog.String("business_id", businessID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (a *Aggregator) observe(outcome string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.recomputes.WithLabelValues(outcome).Inc()
	a.metrics.duration.Observe(time.Since(start).Seconds())
}
