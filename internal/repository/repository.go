package repository

import (
	"context"

	"github.com/safespacefinder/safespace/internal/domain"
)

// BusinessFilter selects businesses for listing. Nil fields do not filter.
type BusinessFilter struct {
	City           *string
	Category       *string
	Tag            *string
	Search         *string
	MinSafetyScore *int
	SortBy         string
	Page           int
	PerPage        int
}

// ReviewFilter selects reviews of one business for listing.
type ReviewFilter struct {
	Statuses []domain.ReviewStatus
	Page     int
	PerPage  int
}

// BusinessRepository persists businesses.
type BusinessRepository interface {
	// Create inserts a business. A taken slug yields an AlreadyExists error.
	Create(ctx context.Context, b *domain.Business) error

	// GetByID returns ErrNotFound when no business has id.
	GetByID(ctx context.Context, id string) (*domain.Business, error)

	// GetBySlug returns ErrNotFound when no business has slug.
	GetBySlug(ctx context.Context, slug string) (*domain.Business, error)

	// List returns one page of matching businesses and the total match count.
	List(ctx context.Context, filter BusinessFilter) ([]domain.Business, int, error)

	// Update writes the descriptive fields of b. Derived fields are untouched.
	Update(ctx context.Context, b *domain.Business) error

	// Delete removes a business and, by cascade, its reviews.
	Delete(ctx context.Context, id string) error

	// UpdateAggregate writes the derived fields in one statement.
	UpdateAggregate(ctx context.Context, id string, agg domain.Aggregate) error
}

// ReviewRepository persists reviews.
type ReviewRepository interface {
	// Create inserts a review. A second review by the same user for the same
	// business yields an AlreadyExists error.
	Create(ctx context.Context, r *domain.Review) error

	// GetByID returns ErrNotFound when no review has id.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// ListByBusinessID returns one page of reviews, newest first, and the total.
	ListByBusinessID(ctx context.Context, businessID string, filter ReviewFilter) ([]domain.Review, int, error)

	// FindAllByBusinessID returns every review of the business regardless of status.
	FindAllByBusinessID(ctx context.Context, businessID string) ([]domain.Review, error)

	// Update writes rating, title, body and the owner response.
	Update(ctx context.Context, r *domain.Review) error

	// Delete removes a review.
	Delete(ctx context.Context, id string) error

	// UpdateStatus sets the moderation status.
	UpdateStatus(ctx context.Context, id string, status domain.ReviewStatus) error

	// SetVerified marks a review verified by method.
	SetVerified(ctx context.Context, id string, method domain.VerificationMethod) error
}
