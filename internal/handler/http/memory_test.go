package http

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/repository"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
)

// memStore backs both in-memory repositories so deleting a business
// cascades to its reviews the way the schema does.
type memStore struct {
	mu         sync.Mutex
	businesses map[string]domain.Business
	reviews    map[string]domain.Review
}

func newMemStore() *memStore {
	return &memStore{
		businesses: make(map[string]domain.Business),
		reviews:    make(map[string]domain.Review),
	}
}

type memBusinessRepo struct{ s *memStore }

type memReviewRepo struct{ s *memStore }

func (r memBusinessRepo) Create(_ context.Context, b *domain.Business) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.businesses {
		if existing.Slug == b.Slug {
			return apperrors.AlreadyExists("business", "slug", b.Slug)
		}
	}
	r.s.businesses[b.ID] = *b
	return nil
}

func (r memBusinessRepo) GetByID(_ context.Context, id string) (*domain.Business, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.businesses[id]
	if !ok {
		return nil, apperrors.NotFound("business", id)
	}
	return &b, nil
}

func (r memBusinessRepo) GetBySlug(_ context.Context, slug string) (*domain.Business, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.businesses {
		if b.Slug == slug {
			return &b, nil
		}
	}
	return nil, apperrors.NotFound("business", slug)
}

func (r memBusinessRepo) List(_ context.Context, filter repository.BusinessFilter) ([]domain.Business, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Business
	for _, b := range r.s.businesses {
		if filter.MinSafetyScore != nil && b.SafetyScore < *filter.MinSafetyScore {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r memBusinessRepo) Update(_ context.Context, b *domain.Business) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.businesses[b.ID]
	if !ok {
		return apperrors.NotFound("business", b.ID)
	}
	updated := *b
	updated.ApplyAggregate(existing.Aggregate())
	r.s.businesses[b.ID] = updated
	return nil
}

func (r memBusinessRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.businesses[id]; !ok {
		return apperrors.NotFound("business", id)
	}
	delete(r.s.businesses, id)
	for rid, rv := range r.s.reviews {
		if rv.BusinessID == id {
			delete(r.s.reviews, rid)
		}
	}
	return nil
}

func (r memBusinessRepo) UpdateAggregate(_ context.Context, id string, agg domain.Aggregate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.businesses[id]
	if !ok {
		return apperrors.NotFound("business", id)
	}
	b.ApplyAggregate(agg)
	r.s.businesses[id] = b
	return nil
}

func (r memReviewRepo) Create(_ context.Context, rv *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.reviews {
		if existing.BusinessID == rv.BusinessID && existing.UserID == rv.UserID {
			return apperrors.AlreadyExists("review", "business_id", rv.BusinessID)
		}
	}
	r.s.reviews[rv.ID] = *rv
	return nil
}

func (r memReviewRepo) GetByID(_ context.Context, id string) (*domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rv, ok := r.s.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	return &rv, nil
}

func (r memReviewRepo) ListByBusinessID(_ context.Context, businessID string, filter repository.ReviewFilter) ([]domain.Review, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Review
	for _, rv := range r.s.reviews {
		if rv.BusinessID == businessID && (len(filter.Statuses) == 0 || slices.Contains(filter.Statuses, rv.Status)) {
			out = append(out, rv)
		}
	}
	return out, len(out), nil
}

func (r memReviewRepo) FindAllByBusinessID(_ context.Context, businessID string) ([]domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Review
	for _, rv := range r.s.reviews {
		if rv.BusinessID == businessID {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (r memReviewRepo) Update(_ context.Context, rv *domain.Review) error {
	return r.mutate(rv.ID, func(stored *domain.Review) { *stored = *rv })
}

func (r memReviewRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[id]; !ok {
		return apperrors.NotFound("review", id)
	}
	delete(r.s.reviews, id)
	return nil
}

func (r memReviewRepo) UpdateStatus(_ context.Context, id string, status domain.ReviewStatus) error {
	return r.mutate(id, func(stored *domain.Review) { stored.Status = status })
}

func (r memReviewRepo) SetVerified(_ context.Context, id string, method domain.VerificationMethod) error {
	return r.mutate(id, func(stored *domain.Review) {
		stored.Verified = true
		stored.VerificationMethod = method
	})
}

func (r memReviewRepo) mutate(id string, fn func(*domain.Review)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rv, ok := r.s.reviews[id]
	if !ok {
		return apperrors.NotFound("review", id)
	}
	fn(&rv)
	r.s.reviews[id] = rv
	return nil
}
