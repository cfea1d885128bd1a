package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/repository"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
	"github.com/safespacefinder/safespace/pkg/pagination"
	"github.com/safespacefinder/safespace/pkg/slug"
)

// maxSlugAttempts bounds retries when a generated slug is already taken.
const maxSlugAttempts = 3

// BusinessService implements the business directory operations.
type BusinessService struct {
	repo       repository.BusinessRepository
	aggregator Recomputer
	cache      ScoreCache
	events     BusinessEvents
	logger     *slog.Logger
}

// NewBusinessService creates a business service. cache and events may be nil.
func NewBusinessService(repo repository.BusinessRepository, aggregator Recomputer, cache ScoreCache, events BusinessEvents, logger *slog.Logger) *BusinessService {
	return &BusinessService{
		repo:       repo,
		aggregator: aggregator,
		cache:      cache,
		events:     events,
		logger:     logger,
	}
}

// CreateBusinessInput holds the parameters for creating a business.
type CreateBusinessInput struct {
	Name                  string
	Description           string
	Category              string
	Address               string
	City                  string
	Latitude              *float64
	Longitude             *float64
	Website               string
	Phone                 string
	AccessibilityFeatures []string
	InclusivityTags       []string
	OwnerID               string
}

// UpdateBusinessInput holds the fields to change. Nil fields are left as is.
type UpdateBusinessInput struct {
	Name                  *string
	Description           *string
	Category              *string
	Address               *string
	City                  *string
	Latitude              *float64
	Longitude             *float64
	Website               *string
	Phone                 *string
	AccessibilityFeatures []string
	InclusivityTags       []string
}

// ListBusinessesInput selects businesses for listing.
type ListBusinessesInput struct {
	City           string
	Category       string
	Tag            string
	Search         string
	MinSafetyScore *int
	SortBy         string
	Page           pagination.Params
}

func validateCoordinates(lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return apperrors.InvalidInput("latitude and longitude must be set together")
	}
	if lat != nil && (*lat < -90 || *lat > 90) {
		return apperrors.InvalidInput("latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return apperrors.InvalidInput("longitude must be between -180 and 180")
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// CreateBusiness registers a business. Its derived fields start at zero.
func (s *BusinessService) CreateBusiness(ctx context.Context, input *CreateBusinessInput) (*domain.Business, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("business name is required")
	}
	if strings.TrimSpace(input.Category) == "" {
		return nil, apperrors.InvalidInput("category is required")
	}
	if input.OwnerID == "" {
		return nil, apperrors.InvalidInput("owner_id is required")
	}
	if err := validateCoordinates(input.Latitude, input.Longitude); err != nil {
		return nil, err
	}

	base := slug.Generate(name)
	if base == "" {
		return nil, apperrors.InvalidInput("business name must contain letters or digits")
	}

	now := time.Now().UTC()
	b := &domain.Business{
		ID:                    uuid.New().String(),
		Name:                  name,
		Slug:                  base,
		Description:           input.Description,
		Category:              strings.ToLower(strings.TrimSpace(input.Category)),
		Address:               input.Address,
		City:                  strings.TrimSpace(input.City),
		Latitude:              input.Latitude,
		Longitude:             input.Longitude,
		Website:               input.Website,
		Phone:                 input.Phone,
		AccessibilityFeatures: normalizeTags(input.AccessibilityFeatures),
		InclusivityTags:       normalizeTags(input.InclusivityTags),
		OwnerID:               input.OwnerID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	var err error
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		if err = s.repo.Create(ctx, b); !errors.Is(err, apperrors.ErrAlreadyExists) {
			break
		}
		b.Slug = slug.WithSuffix(base, uuid.New().String()[:8])
	}
	if err != nil {
		return nil, fmt.Errorf("create business: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishBusinessCreated(ctx, b); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish business.created event",
				slog.String("business_id", b.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "business created",
		slog.String("business_id", b.ID),
		slog.String("slug", b.Slug),
	)
	return b, nil
}

// GetBusiness looks a business up by ID, or by slug when ref is not a UUID.
func (s *BusinessService) GetBusiness(ctx context.Context, ref string) (*domain.Business, error) {
	if _, err := uuid.Parse(ref); err == nil {
		b, err := s.repo.GetByID(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("get business by id: %w", err)
		}
		return b, nil
	}

	b, err := s.repo.GetBySlug(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get business by slug: %w", err)
	}
	return b, nil
}

// ListBusinesses returns one page of businesses matching input.
func (s *BusinessService) ListBusinesses(ctx context.Context, input *ListBusinessesInput) (pagination.Result[domain.Business], error) {
	if !domain.IsValidSortBy(input.SortBy) {
		return pagination.Result[domain.Business]{}, apperrors.InvalidInput(
			fmt.Sprintf("sort must be one of %s", strings.Join(domain.ValidSortByValues(), ", ")))
	}
	if m := input.MinSafetyScore; m != nil && (*m < 0 || *m > 100) {
		return pagination.Result[domain.Business]{}, apperrors.InvalidInput("min_safety_score must be between 0 and 100")
	}

	page := input.Page
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.PerPage <= 0 {
		page.PerPage = pagination.DefaultPerPage
	}
	page.PerPage = min(page.PerPage, pagination.MaxPerPage)

	filter := repository.BusinessFilter{
		MinSafetyScore: input.MinSafetyScore,
		SortBy:         input.SortBy,
		Page:           page.Page,
		PerPage:        page.PerPage,
	}
	if v := strings.TrimSpace(input.City); v != "" {
		filter.City = &v
	}
	if v := strings.ToLower(strings.TrimSpace(input.Category)); v != "" {
		filter.Category = &v
	}
	if v := strings.ToLower(strings.TrimSpace(input.Tag)); v != "" {
		filter.Tag = &v
	}
	if v := strings.TrimSpace(input.Search); v != "" {
		filter.Search = &v
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return pagination.Result[domain.Business]{}, fmt.Errorf("list businesses: %w", err)
	}
	return pagination.NewResult(items, total, page), nil
}

func (s *BusinessService) authorize(b *domain.Business, actor Actor) error {
	if actor.Admin || b.IsOwnedBy(actor.UserID) {
		return nil
	}
	return apperrors.Forbidden("only the owner or an admin may change this business")
}

// UpdateBusiness changes the descriptive fields of a business. The derived
// fields are never written here.
func (s *BusinessService) UpdateBusiness(ctx context.Context, id string, actor Actor, input *UpdateBusinessInput) (*domain.Business, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get business for update: %w", err)
	}
	if err := s.authorize(b, actor); err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.InvalidInput("business name must not be empty")
		}
		b.Name = name
	}
	if input.Description != nil {
		b.Description = *input.Description
	}
	if input.Category != nil {
		c := strings.ToLower(strings.TrimSpace(*input.Category))
		if c == "" {
			return nil, apperrors.InvalidInput("category must not be empty")
		}
		b.Category = c
	}
	if input.Address != nil {
		b.Address = *input.Address
	}
	if input.City != nil {
		b.City = strings.TrimSpace(*input.City)
	}
	if input.Latitude != nil || input.Longitude != nil {
		if err := validateCoordinates(input.Latitude, input.Longitude); err != nil {
			return nil, err
		}
		b.Latitude, b.Longitude = input.Latitude, input.Longitude
	}
	if input.Website != nil {
		b.Website = *input.Website
	}
	if input.Phone != nil {
		b.Phone = *input.Phone
	}
	if input.AccessibilityFeatures != nil {
		b.AccessibilityFeatures = normalizeTags(input.AccessibilityFeatures)
	}
	if input.InclusivityTags != nil {
		b.InclusivityTags = normalizeTags(input.InclusivityTags)
	}
	b.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("update business: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishBusinessUpdated(ctx, b); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish business.updated event",
				slog.String("business_id", b.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "business updated", slog.String("business_id", b.ID))
	return b, nil
}

// DeleteBusiness removes a business and its reviews.
func (s *BusinessService) DeleteBusiness(ctx context.Context, id string, actor Actor) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get business for delete: %w", err)
	}
	if err := s.authorize(b, actor); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete business: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "failed to evict cached score",
				slog.String("business_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.events != nil {
		if err := s.events.PublishBusinessDeleted(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish business.deleted event",
				slog.String("business_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "business deleted", slog.String("business_id", id))
	return nil
}

// GetSafetyScore returns the aggregate of a business, from the cache when
// possible. A miss or cache failure falls back to Postgres and refills the
// cache unless a recompute has filled it in the meantime.
func (s *BusinessService) GetSafetyScore(ctx context.Context, id string) (domain.Aggregate, error) {
	if s.cache != nil {
		agg, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "score cache read failed, using database",
				slog.String("business_id", id),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return agg, nil
		}
	}

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("get business for score: %w", err)
	}
	agg := b.Aggregate()

	if s.cache != nil {
		if err := s.cache.Add(ctx, id, agg); err != nil {
			s.logger.DebugContext(ctx, "score cache refill failed",
				slog.String("business_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return agg, nil
}

// RecomputeSafetyScore rescores a business on demand and returns the stored
// result.
func (s *BusinessService) RecomputeSafetyScore(ctx context.Context, id string) (domain.Aggregate, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return domain.Aggregate{}, fmt.Errorf("get business for recompute: %w", err)
	}
	if err := s.aggregator.Recompute(ctx, id); err != nil {
		return domain.Aggregate{}, fmt.Errorf("recompute safety score: %w", err)
	}

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("read recomputed score: %w", err)
	}
	return b.Aggregate(), nil
}
