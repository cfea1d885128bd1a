package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/service"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
	"github.com/safespacefinder/safespace/pkg/httputil"
	"github.com/safespacefinder/safespace/pkg/pagination"
	"github.com/safespacefinder/safespace/pkg/validator"
)

// BusinessHandler serves the business endpoints.
type BusinessHandler struct {
	service *service.BusinessService
	logger  *slog.Logger
}

// NewBusinessHandler creates a business HTTP handler.
func NewBusinessHandler(svc *service.BusinessService, logger *slog.Logger) *BusinessHandler {
	return &BusinessHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateBusinessRequest is the body of POST /api/v1/businesses.
type CreateBusinessRequest struct {
	Name                  string   `json:"name" validate:"required,max=200"`
	Description           string   `json:"description" validate:"max=5000"`
	Category              string   `json:"category" validate:"required,max=50"`
	Address               string   `json:"address" validate:"max=300"`
	City                  string   `json:"city" validate:"max=100"`
	Latitude              *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude             *float64 `json:"longitude" validate:"omitempty,longitude"`
	Website               string   `json:"website" validate:"omitempty,url,max=500"`
	Phone                 string   `json:"phone" validate:"max=50"`
	AccessibilityFeatures []string `json:"accessibility_features" validate:"max=30,dive,max=50"`
	InclusivityTags       []string `json:"inclusivity_tags" validate:"max=30,dive,max=50"`
}

// UpdateBusinessRequest is the body of PUT /api/v1/businesses/{id}.
type UpdateBusinessRequest struct {
	Name                  *string  `json:"name" validate:"omitempty,max=200"`
	Description           *string  `json:"description" validate:"omitempty,max=5000"`
	Category              *string  `json:"category" validate:"omitempty,max=50"`
	Address               *string  `json:"address" validate:"omitempty,max=300"`
	City                  *string  `json:"city" validate:"omitempty,max=100"`
	Latitude              *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude             *float64 `json:"longitude" validate:"omitempty,longitude"`
	Website               *string  `json:"website" validate:"omitempty,url,max=500"`
	Phone                 *string  `json:"phone" validate:"omitempty,max=50"`
	AccessibilityFeatures []string `json:"accessibility_features" validate:"omitempty,max=30,dive,max=50"`
	InclusivityTags       []string `json:"inclusivity_tags" validate:"omitempty,max=30,dive,max=50"`
}

// SafetyScoreResponse is the body of the safety-score endpoints.
type SafetyScoreResponse struct {
	BusinessID string `json:"business_id"`
	domain.Aggregate
}

// --- Handlers ---

// ListBusinesses handles GET /api/v1/businesses
func (h *BusinessHandler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := &service.ListBusinessesInput{
		City:     q.Get("city"),
		Category: q.Get("category"),
		Tag:      q.Get("tag"),
		Search:   q.Get("q"),
		SortBy:   q.Get("sort"),
		Page:     pagination.FromRequest(r),
	}
	if v := q.Get("min_safety_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("min_safety_score must be an integer"), h.logger)
			return
		}
		input.MinSafetyScore = &n
	}

	result, err := h.service.ListBusinesses(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// GetBusiness handles GET /api/v1/businesses/{id}. The parameter may be a
// UUID or a slug.
func (h *BusinessHandler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetBusiness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, b)
}

// CreateBusiness handles POST /api/v1/businesses
func (h *BusinessHandler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	var req CreateBusinessRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	b, err := h.service.CreateBusiness(r.Context(), &service.CreateBusinessInput{
		Name:                  req.Name,
		Description:           req.Description,
		Category:              req.Category,
		Address:               req.Address,
		City:                  req.City,
		Latitude:              req.Latitude,
		Longitude:             req.Longitude,
		Website:               req.Website,
		Phone:                 req.Phone,
		AccessibilityFeatures: req.AccessibilityFeatures,
		InclusivityTags:       req.InclusivityTags,
		OwnerID:               actorFrom(r).UserID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, b)
}

// UpdateBusiness handles PUT /api/v1/businesses/{id}
func (h *BusinessHandler) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "business id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateBusinessRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	b, err := h.service.UpdateBusiness(r.Context(), id.String(), actorFrom(r), &service.UpdateBusinessInput{
		Name:                  req.Name,
		Description:           req.Description,
		Category:              req.Category,
		Address:               req.Address,
		City:                  req.City,
		Latitude:              req.Latitude,
		Longitude:             req.Longitude,
		Website:               req.Website,
		Phone:                 req.Phone,
		AccessibilityFeatures: req.AccessibilityFeatures,
		InclusivityTags:       req.InclusivityTags,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, b)
}

// DeleteBusiness handles DELETE /api/v1/businesses/{id}
func (h *BusinessHandler) DeleteBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "business id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteBusiness(r.Context(), id.String(), actorFrom(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSafetyScore handles GET /api/v1/businesses/{id}/safety-score
func (h *BusinessHandler) GetSafetyScore(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "business id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	agg, err := h.service.GetSafetyScore(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, SafetyScoreResponse{BusinessID: id.String(), Aggregate: agg})
}

// RecomputeSafetyScore handles POST /api/v1/businesses/{id}/safety-score/recompute
func (h *BusinessHandler) RecomputeSafetyScore(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "business id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	agg, err := h.service.RecomputeSafetyScore(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, SafetyScoreResponse{BusinessID: id.String(), Aggregate: agg})
}
