package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/service"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
	"github.com/safespacefinder/safespace/pkg/httputil"
	"github.com/safespacefinder/safespace/pkg/pagination"
	"github.com/safespacefinder/safespace/pkg/validator"
)

// ReviewHandler serves the review endpoints.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateReviewRequest is the body of POST /api/v1/businesses/{id}/reviews.
type CreateReviewRequest struct {
	Rating int    `json:"rating" validate:"rating"`
	Title  string `json:"title" validate:"max=200"`
	Body   string `json:"body" validate:"max=5000"`
}

// UpdateReviewRequest is the body of PUT /api/v1/reviews/{id}.
type UpdateReviewRequest struct {
	Rating *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Title  *string `json:"title" validate:"omitempty,max=200"`
	Body   *string `json:"body" validate:"omitempty,max=5000"`
}

// RespondRequest is the body of POST /api/v1/reviews/{id}/response.
type RespondRequest struct {
	Response string `json:"response" validate:"required,max=2000"`
}

// ModerateRequest is the body of PATCH /api/v1/reviews/{id}/status.
type ModerateRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected flagged"`
}

// VerifyRequest is the body of POST /api/v1/reviews/{id}/verify.
type VerifyRequest struct {
	Method string `json:"method" validate:"required,oneof=photo receipt check_in"`
}

// --- Handlers ---

// ListReviews handles GET /api/v1/businesses/{id}/reviews. Only approved
// reviews are listed.
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, nil)
}

// ListModerationQueue handles GET /api/v1/businesses/{id}/reviews/moderation.
// The status query parameter selects a comma separated set of statuses and
// defaults to pending and flagged.
func (h *ReviewHandler) ListModerationQueue(w http.ResponseWriter, r *http.Request) {
	statuses := []domain.ReviewStatus{domain.ReviewStatusPending, domain.ReviewStatusFlagged}
	if v := r.URL.Query().Get("status"); v != "" {
		parsed, ok := domain.ParseReviewStatuses(v)
		if !ok {
			httputil.WriteError(w, r, apperrors.InvalidInput("status must list pending, approved, rejected or flagged"), h.logger)
			return
		}
		if len(parsed) > 0 {
			statuses = parsed
		}
	}
	h.list(w, r, statuses)
}

func (h *ReviewHandler) list(w http.ResponseWriter, r *http.Request, statuses []domain.ReviewStatus) {
	businessID, ok := httputil.ParseUUID(w, "business id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	result, err := h.service.ListReviews(r.Context(), &service.ListReviewsInput{
		BusinessID: businessID.String(),
		Statuses:   statuses,
		Page:       pagination.FromRequest(r),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// CreateReview handles POST /api/v1/businesses/{id}/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	businessID, ok := httputil.ParseUUID(w, "business id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req CreateReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.CreateReview(r.Context(), &service.CreateReviewInput{
		BusinessID: businessID.String(),
		UserID:     actorFrom(r).UserID,
		Rating:     req.Rating,
		Title:      req.Title,
		Body:       req.Body,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, review)
}

// GetReview handles GET /api/v1/reviews/{id}
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "review id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	review, err := h.service.GetReview(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}

// UpdateReview handles PUT /api/v1/reviews/{id}
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "review id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.UpdateReview(r.Context(), id.String(), actorFrom(r), &service.UpdateReviewInput{
		Rating: req.Rating,
		Title:  req.Title,
		Body:   req.Body,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}

// DeleteReview handles DELETE /api/v1/reviews/{id}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "review id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), id.String(), actorFrom(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RespondToReview handles POST /api/v1/reviews/{id}/response
func (h *ReviewHandler) RespondToReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "review id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req RespondRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.RespondToReview(r.Context(), id.String(), actorFrom(r), req.Response)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}

// ModerateReview handles PATCH /api/v1/reviews/{id}/status
func (h *ReviewHandler) ModerateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "review id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req ModerateRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.ModerateReview(r.Context(), id.String(), domain.ReviewStatus(req.Status))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}

// VerifyReview handles POST /api/v1/reviews/{id}/verify
func (h *ReviewHandler) VerifyReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "review id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req VerifyRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.service.VerifyReview(r.Context(), id.String(), domain.VerificationMethod(req.Method))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, review)
}
