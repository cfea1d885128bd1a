// Command seed populates a development database with sample businesses and
// reviews. It goes through the service layer so every aggregate is derived
// exactly as it would be for API traffic.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/safespacefinder/safespace/internal/auth"
	"github.com/safespacefinder/safespace/internal/config"
	"github.com/safespacefinder/safespace/internal/domain"
	"github.com/safespacefinder/safespace/internal/repository/postgres"
	"github.com/safespacefinder/safespace/internal/safety"
	"github.com/safespacefinder/safespace/internal/service"
	"github.com/safespacefinder/safespace/migrations"
	"github.com/safespacefinder/safespace/pkg/database"
	"github.com/safespacefinder/safespace/pkg/logger"
	"github.com/safespacefinder/safespace/pkg/middleware"
)

type businessDef struct {
	name     string
	category string
	city     string
	tags     []string
	features []string
}

var businesses = []businessDef{
	{"Rainbow Bean Cafe", "cafe", "Portland", []string{"lgbtq-owned", "gender-neutral-restrooms"}, []string{"wheelchair-ramp"}},
	{"Harbor Light Books", "bookstore", "Seattle", []string{"trans-friendly"}, []string{"step-free-entrance", "quiet-hours"}},
	{"The Open Door Diner", "restaurant", "Chicago", []string{"family-friendly", "gender-neutral-restrooms"}, []string{"braille-menu"}},
	{"Northside Climbing Gym", "fitness", "Denver", []string{"lgbtq-friendly"}, nil},
	{"Lantern Street Bar", "bar", "Austin", []string{"women-owned", "safer-spaces-policy"}, []string{"accessible-restroom"}},
	{"Greenleaf Clinic", "health", "Portland", []string{"trans-affirming-care"}, []string{"wheelchair-ramp", "sign-language"}},
}

var reviewTitles = []string{
	"Felt welcome from the moment I walked in",
	"Staff handled a tense situation well",
	"Okay, but the restrooms need work",
	"Would come back with my partner",
	"Not great this time",
}

const (
	reviewsPerBusiness = 8
	devTokenTTL        = 7 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("safespace-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("seed complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	businessRepo := postgres.NewBusinessRepository(pool)
	reviewRepo := postgres.NewReviewRepository(pool)
	aggregator := safety.NewAggregator(reviewRepo, businessRepo, log,
		safety.WithCountedStatuses(cfg.CountedStatuses()...),
	)
	businessSvc := service.NewBusinessService(businessRepo, aggregator, nil, nil, log)
	reviewSvc := service.NewReviewService(reviewRepo, businessRepo, aggregator, nil, true, log)

	rng := rand.New(rand.NewPCG(42, 7))
	ownerID := uuid.NewString()
	verifyMethods := []domain.VerificationMethod{domain.VerificationPhoto, domain.VerificationReceipt, domain.VerificationCheckIn}

	for _, def := range businesses {
		b, err := businessSvc.CreateBusiness(ctx, &service.CreateBusinessInput{
			Name:                  def.name,
			Description:           fmt.Sprintf("%s in %s.", def.name, def.city),
			Category:              def.category,
			City:                  def.city,
			InclusivityTags:       def.tags,
			AccessibilityFeatures: def.features,
			OwnerID:               ownerID,
		})
		if err != nil {
			return fmt.Errorf("create business %q: %w", def.name, err)
		}

		for i := 0; i < reviewsPerBusiness; i++ {
			r, err := reviewSvc.CreateReview(ctx, &service.CreateReviewInput{
				BusinessID: b.ID,
				UserID:     uuid.NewString(),
				Rating:     1 + rng.IntN(domain.MaxRating),
				Title:      reviewTitles[rng.IntN(len(reviewTitles))],
				Body:       "Seeded review.",
			})
			if err != nil {
				return fmt.Errorf("create review for %q: %w", def.name, err)
			}
			if rng.IntN(3) == 0 {
				if _, err := reviewSvc.VerifyReview(ctx, r.ID, verifyMethods[rng.IntN(len(verifyMethods))]); err != nil {
					return fmt.Errorf("verify review %s: %w", r.ID, err)
				}
			}
		}

		agg, err := businessSvc.GetSafetyScore(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("read safety score of %q: %w", def.name, err)
		}
		log.Info("seeded business",
			slog.String("slug", b.Slug),
			slog.Int("safety_score", agg.SafetyScore),
			slog.Float64("average_rating", agg.AverageRating),
			slog.Int("total_reviews", agg.TotalReviews),
		)
	}

	return logDevTokens(cfg, log, ownerID)
}

// logDevTokens prints bearer tokens for the seeded owner and an admin so the
// API can be exercised by hand. Skipped in production.
func logDevTokens(cfg *config.Config, log *slog.Logger, ownerID string) error {
	if cfg.IsProduction() {
		return nil
	}
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, devTokenTTL)

	ownerToken, err := jwtManager.GenerateAccessToken(ownerID, "owner@safespace.dev", "user")
	if err != nil {
		return fmt.Errorf("issue owner token: %w", err)
	}
	adminToken, err := jwtManager.GenerateAccessToken(uuid.NewString(), "admin@safespace.dev", middleware.RoleAdmin)
	if err != nil {
		return fmt.Errorf("issue admin token: %w", err)
	}
	log.Info("development tokens",
		slog.String("owner_id", ownerID),
		slog.String("owner_token", ownerToken),
		slog.String("admin_token", adminToken),
	)
	return nil
}
