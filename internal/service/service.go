package service

import (
	"context"

	"github.com/safespacefinder/safespace/internal/domain"
)

// Actor is the caller of a mutating operation.
type Actor struct {
	UserID string
	Admin  bool
}

// Recomputer refreshes the derived fields of a business from its reviews.
type Recomputer interface {
	Recompute(ctx context.Context, businessID string) error
}

// ScoreCache is the read-through cache of business aggregates. Add writes only
// when no entry exists, so a refill never overwrites a fresher recompute.
type ScoreCache interface {
	Get(ctx context.Context, businessID string) (domain.Aggregate, bool, error)
	Add(ctx context.Context, businessID string, agg domain.Aggregate) error
	Delete(ctx context.Context, businessID string) error
}

// BusinessEvents publishes business lifecycle events.
type BusinessEvents interface {
	PublishBusinessCreated(ctx context.Context, b *domain.Business) error
	PublishBusinessUpdated(ctx context.Context, b *domain.Business) error
	PublishBusinessDeleted(ctx context.Context, id string) error
}

// ReviewEvents publishes review lifecycle events.
type ReviewEvents interface {
	PublishReviewCreated(ctx context.Context, r *domain.Review) error
	PublishReviewUpdated(ctx context.Context, r *domain.Review) error
	PublishReviewDeleted(ctx context.Context, r *domain.Review) error
}
