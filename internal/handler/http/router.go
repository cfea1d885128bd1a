package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/safespacefinder/safespace/internal/service"
	"github.com/safespacefinder/safespace/pkg/health"
	"github.com/safespacefinder/safespace/pkg/middleware"
)

// RouterConfig carries the dependencies of NewRouter. Metrics,
// MetricsHandler and PprofCIDRs are optional.
type RouterConfig struct {
	Businesses     *service.BusinessService
	Reviews        *service.ReviewService
	Health         *health.Handler
	ValidateToken  middleware.TokenValidator
	Metrics        *middleware.HTTPMetrics
	MetricsHandler http.Handler
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
	ListCacheAge   int
	Logger         *slog.Logger
}

// NewRouter creates a chi router with every API route registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORS))

	// Operational endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if len(cfg.PprofCIDRs) > 0 {
		middleware.MountPprof(r, cfg.PprofCIDRs, logger)
	}

	authenticated := middleware.Auth(cfg.ValidateToken)
	adminOnly := middleware.RequireRole(middleware.RoleAdmin)

	businesses := NewBusinessHandler(cfg.Businesses, logger)
	reviews := NewReviewHandler(cfg.Reviews, logger)

	r.Route("/api/v1/businesses", func(r chi.Router) {
		r.With(middleware.CacheControl(cfg.ListCacheAge)).Get("/", businesses.ListBusinesses)
		r.Get("/{id}", businesses.GetBusiness)
		r.With(middleware.CacheControl(0)).Get("/{id}/safety-score", businesses.GetSafetyScore)
		r.Get("/{id}/reviews", reviews.ListReviews)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Post("/", businesses.CreateBusiness)
			r.Put("/{id}", businesses.UpdateBusiness)
			r.Delete("/{id}", businesses.DeleteBusiness)
			r.Post("/{id}/reviews", reviews.CreateReview)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)

				r.Post("/{id}/safety-score/recompute", businesses.RecomputeSafetyScore)
				r.Get("/{id}/reviews/moderation", reviews.ListModerationQueue)
			})
		})
	})

	r.Route("/api/v1/reviews/{id}", func(r chi.Router) {
		r.Get("/", reviews.GetReview)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Put("/", reviews.UpdateReview)
			r.Delete("/", reviews.DeleteReview)
			r.Post("/response", reviews.RespondToReview)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)

				r.Patch("/status", reviews.ModerateReview)
				r.Post("/verify", reviews.VerifyReview)
			})
		})
	})

	return r
}
