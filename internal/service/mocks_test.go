package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock Business Repository ---

type mockBusinessRepository struct {
	mock.Mock
}

func (m *mockBusinessRepository) Create(ctx context.Context, b *domain.Business) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBusinessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Business), args.Error(1)
}

func (m *mockBusinessRepository) GetBySlug(ctx context.Context, slug string) (*domain.Business, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Business), args.Error(1)
}

func (m *mockBusinessRepository) List(ctx context.Context, filter repository.BusinessFilter) ([]domain.Business, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Business), args.Int(1), args.Error(2)
}

func (m *mockBusinessRepository) Update(ctx context.Context, b *domain.Business) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBusinessRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockBusinessRepository) UpdateAggregate(ctx context.Context, id string, agg domain.Aggregate) error {
	return m.Called(ctx, id, agg).Error(0)
}

// --- Mock Review Repository ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Create(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) ListByBusinessID(ctx context.Context, businessID string, filter repository.ReviewFilter) ([]domain.Review, int, error) {
	args := m.Called(ctx, businessID, filter)
	return args.Get(0).([]domain.Review), args.Int(1), args.Error(2)
}

func (m *mockReviewRepository) FindAllByBusinessID(ctx context.Context, businessID string) ([]domain.Review, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *mockReviewRepository) Update(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockReviewRepository) UpdateStatus(ctx context.Context, id string, status domain.ReviewStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockReviewRepository) SetVerified(ctx context.Context, id string, method domain.VerificationMethod) error {
	return m.Called(ctx, id, method).Error(0)
}

// --- Mock collaborators ---

type mockRecomputer struct {
	mock.Mock
}

func (m *mockRecomputer) Recompute(ctx context.Context, businessID string) error {
	return m.Called(ctx, businessID).Error(0)
}

type mockScoreCache struct {
	mock.Mock
}

func (m *mockScoreCache) Get(ctx context.Context, id string) (domain.Aggregate, bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Aggregate), args.Bool(1), args.Error(2)
}

func (m *mockScoreCache) Add(ctx context.Context, id string, agg domain.Aggregate) error {
	return m.Called(ctx, id, agg).Error(0)
}

func (m *mockScoreCache) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishBusinessCreated(ctx context.Context, b *domain.Business) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockEvents) PublishBusinessUpdated(ctx context.Context, b *domain.Business) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockEvents) PublishBusinessDeleted(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockEvents) PublishReviewCreated(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockEvents) PublishReviewUpdated(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockEvents) PublishReviewDeleted(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}
