package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/repository"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
	"github.com/safespacefinder/safespace/pkg/pagination"
)

// ReviewService implements review operations. Every mutation rescores the
// parent business before returning.
type ReviewService struct {
	reviews     repository.ReviewRepository
	businesses  repository.BusinessRepository
	aggregator  Recomputer
	events      ReviewEvents
	autoApprove bool
	logger      *slog.Logger
}

// NewReviewService creates a review service. With autoApprove new reviews
// skip moderation. events may be nil.
func NewReviewService(
	reviews repository.ReviewRepository,
	businesses repository.BusinessRepository,
	aggregator Recomputer,
	events ReviewEvents,
	autoApprove bool,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		reviews:     reviews,
		businesses:  businesses,
		aggregator:  aggregator,
		events:      events,
		autoApprove: autoApprove,
		logger:      logger,
	}
}

// CreateReviewInput holds the parameters for creating a review.
type CreateReviewInput struct {
	BusinessID string
	UserID     string
	Rating     int
	Title      string
	Body       string
}

// UpdateReviewInput holds the author-editable fields. Nil fields are kept.
type UpdateReviewInput struct {
	Rating *int
	Title  *string
	Body   *string
}

// ListReviewsInput selects reviews of one business. No statuses means
// approved only.
type ListReviewsInput struct {
	BusinessID string
	Statuses   []domain.ReviewStatus
	Page       pagination.Params
}

func ratingError() error {
	return apperrors.InvalidInput(fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
}

// recompute rescores businessID. Its failure fails the calling request even
// though the review write has already happened.
func (s *ReviewService) recompute(ctx context.Context, businessID, reviewID string) error {
	if err := s.aggregator.Recompute(ctx, businessID); err != nil {
		s.logger.ErrorContext(ctx, "safety score recompute failed after review change",
			slog.String("business_id", businessID),
			slog.String("review_id", reviewID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("recompute safety score: %w", err)
	}
	return nil
}

func (s *ReviewService) publish(ctx context.Context, name string, r *domain.Review, fn func(context.Context, *domain.Review) error) {
	if err := fn(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish "+name+" event",
			slog.String("review_id", r.ID),
			slog.String("error", err.Error()),
		)
	}
}

// CreateReview records a user's review of a business. A user reviews a
// business at most once and owners cannot review their own business.
func (s *ReviewService) CreateReview(ctx context.Context, input *CreateReviewInput) (*domain.Review, error) {
	if input.BusinessID == "" {
		return nil, apperrors.InvalidInput("business_id is required")
	}
	if input.UserID == "" {
		return nil, apperrors.InvalidInput("user_id is required")
	}
	if !domain.ValidRating(input.Rating) {
		return nil, ratingError()
	}

	b, err := s.businesses.GetByID(ctx, input.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("get business for review: %w", err)
	}
	if b.IsOwnedBy(input.UserID) {
		return nil, apperrors.Forbidden("owners cannot review their own business")
	}

	status := domain.ReviewStatusPending
	if s.autoApprove {
		status = domain.ReviewStatusApproved
	}

	now := time.Now().UTC()
	review := &domain.Review{
		ID:         uuid.New().String(),
		BusinessID: input.BusinessID,
		UserID:     input.UserID,
		Rating:     input.Rating,
		Title:      strings.TrimSpace(input.Title),
		Body:       strings.TrimSpace(input.Body),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	if err := s.recompute(ctx, review.BusinessID, review.ID); err != nil {
		return nil, err
	}
	if s.events != nil {
		s.publish(ctx, "review.created", review, s.events.PublishReviewCreated)
	}

	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", review.ID),
		slog.String("business_id", review.BusinessID),
		slog.Int("rating", review.Rating),
		slog.String("status", string(review.Status)),
	)
	return review, nil
}

// GetReview returns one review.
func (s *ReviewService) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

// UpdateReview lets the author change rating, title and body.
func (s *ReviewService) UpdateReview(ctx context.Context, id string, actor Actor, input *UpdateReviewInput) (*domain.Review, error) {
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review for update: %w", err)
	}
	if r.UserID != actor.UserID {
		return nil, apperrors.Forbidden("only the author may edit a review")
	}

	if input.Rating != nil {
		if !domain.ValidRating(*input.Rating) {
			return nil, ratingError()
		}
		r.Rating = *input.Rating
	}
	if input.Title != nil {
		r.Title = strings.TrimSpace(*input.Title)
	}
	if input.Body != nil {
		r.Body = strings.TrimSpace(*input.Body)
	}
	r.UpdatedAt = time.Now().UTC()

	if err := s.reviews.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	if err := s.recompute(ctx, r.BusinessID, r.ID); err != nil {
		return nil, err
	}
	if s.events != nil {
		s.publish(ctx, "review.updated", r, s.events.PublishReviewUpdated)
	}

	s.logger.InfoContext(ctx, "review updated", slog.String("review_id", r.ID))
	return r, nil
}

// RespondToReview attaches the business owner's public response.
func (s *ReviewService) RespondToReview(ctx context.Context, id string, actor Actor, response string) (*domain.Review, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, apperrors.InvalidInput("response must not be empty")
	}

	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review for response: %w", err)
	}
	b, err := s.businesses.GetByID(ctx, r.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("get business for response: %w", err)
	}
	if !actor.Admin && !b.IsOwnedBy(actor.UserID) {
		return nil, apperrors.Forbidden("only the business owner may respond to a review")
	}

	now := time.Now().UTC()
	r.OwnerResponse = response
	r.RespondedAt = &now
	r.UpdatedAt = now

	if err := s.reviews.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("save review response: %w", err)
	}
	if err := s.recompute(ctx, r.BusinessID, r.ID); err != nil {
		return nil, err
	}
	if s.events != nil {
		s.publish(ctx, "review.updated", r, s.events.PublishReviewUpdated)
	}

	s.logger.InfoContext(ctx, "owner responded to review",
		slog.String("review_id", r.ID),
		slog.String("business_id", r.BusinessID),
	)
	return r, nil
}

// DeleteReview removes a review. Authors may delete their own; admins any.
func (s *ReviewService) DeleteReview(ctx context.Context, id string, actor Actor) error {
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get review for delete: %w", err)
	}
	if !actor.Admin && r.UserID != actor.UserID {
		return apperrors.Forbidden("only the author or an admin may delete a review")
	}

	if err := s.reviews.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if err := s.recompute(ctx, r.BusinessID, r.ID); err != nil {
		return err
	}
	if s.events != nil {
		s.publish(ctx, "review.deleted", r, s.events.PublishReviewDeleted)
	}

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", r.ID),
		slog.String("business_id", r.BusinessID),
	)
	return nil
}

// ModerateReview sets the moderation status of a review.
func (s *ReviewService) ModerateReview(ctx context.Context, id string, status domain.ReviewStatus) (*domain.Review, error) {
	if !status.IsValid() {
		return nil, apperrors.InvalidInput("status must be one of pending, approved, rejected, flagged")
	}

	if err := s.reviews.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update review status: %w", err)
	}
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get moderated review: %w", err)
	}
	if err := s.recompute(ctx, r.BusinessID, r.ID); err != nil {
		return nil, err
	}
	if s.events != nil {
		s.publish(ctx, "review.updated", r, s.events.PublishReviewUpdated)
	}

	s.logger.InfoContext(ctx, "review moderated",
		slog.String("review_id", r.ID),
		slog.String("status", string(status)),
	)
	return r, nil
}

// VerifyReview marks a review verified by method.
func (s *ReviewService) VerifyReview(ctx context.Context, id string, method domain.VerificationMethod) (*domain.Review, error) {
	if !method.IsValid() {
		return nil, apperrors.InvalidInput("verification method must be one of photo, receipt, check_in")
	}

	if err := s.reviews.SetVerified(ctx, id, method); err != nil {
		return nil, fmt.Errorf("verify review: %w", err)
	}
	r, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get verified review: %w", err)
	}
	if err := s.recompute(ctx, r.BusinessID, r.ID); err != nil {
		return nil, err
	}
	if s.events != nil {
		s.publish(ctx, "review.updated", r, s.events.PublishReviewUpdated)
	}

	s.logger.InfoContext(ctx, "review verified",
		slog.String("review_id", r.ID),
		slog.String("method", string(method)),
	)
	return r, nil
}

// ListReviews returns one page of a business's reviews, newest first.
func (s *ReviewService) ListReviews(ctx context.Context, input *ListReviewsInput) (pagination.Result[domain.Review], error) {
	if _, err := s.businesses.GetByID(ctx, input.BusinessID); err != nil {
		return pagination.Result[domain.Review]{}, fmt.Errorf("get business for reviews: %w", err)
	}

	statuses := input.Statuses
	if len(statuses) == 0 {
		statuses = []domain.ReviewStatus{domain.ReviewStatusApproved}
	}

	page := input.Page
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.PerPage <= 0 {
		page.PerPage = pagination.DefaultPerPage
	}
	page.PerPage = min(page.PerPage, pagination.MaxPerPage)

	items, total, err := s.reviews.ListByBusinessID(ctx, input.BusinessID, repository.ReviewFilter{
		Statuses: statuses,
		Page:     page.Page,
		PerPage:  page.PerPage,
	})
	if err != nil {
		return pagination.Result[domain.Review]{}, fmt.Errorf("list reviews: %w", err)
	}
	return pagination.NewResult(items, total, page), nil
}
