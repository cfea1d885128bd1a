package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/safespacefinder/safespace/internal/domain"
	pkgkafka "github.com/safespacefinder/safespace/pkg/kafka"
	"github.com/safespacefinder/safespace/pkg/logger"
)

// Topics published by this service.
var (
	TopicReviewCreated       = pkgkafka.Topic("review", "created")
	TopicReviewUpdated       = pkgkafka.Topic("review", "updated")
	TopicReviewDeleted       = pkgkafka.Topic("review", "deleted")
	TopicBusinessCreated     = pkgkafka.Topic("business", "created")
	TopicBusinessUpdated     = pkgkafka.Topic("business", "updated")
	TopicBusinessDeleted     = pkgkafka.Topic("business", "deleted")
	TopicBusinessScoreUpdate = pkgkafka.Topic("business", "score_updated")
)

// Aggregate types.
const (
	AggregateTypeBusiness = "business"
	AggregateTypeReview   = "review"
)

// Source identifies events originating here.
const Source = "safespace-api"

// BusinessData is the payload of business.created and business.updated.
type BusinessData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Category string `json:"category"`
	City     string `json:"city"`
	OwnerID  string `json:"owner_id"`
}

// ReviewData is the payload of the review events.
type ReviewData struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	UserID     string `json:"user_id"`
	Rating     int    `json:"rating"`
	Status     string `json:"status"`
	Verified   bool   `json:"verified"`
}

// ScoreUpdatedData is the payload of business.score_updated.
type ScoreUpdatedData struct {
	BusinessID    string  `json:"business_id"`
	SafetyScore   int     `json:"safety_score"`
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}

// DeletedData is the payload of the deleted events.
type DeletedData struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id,omitempty"`
}

type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes directory events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates an event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return newProducer(kafka, logger)
}

func newProducer(kafka publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

func businessData(b *domain.Business) BusinessData {
	return BusinessData{
		ID:       b.ID,
		Name:     b.Name,
		Slug:     b.Slug,
		Category: b.Category,
		City:     b.City,
		OwnerID:  b.OwnerID,
	}
}

func reviewData(r *domain.Review) ReviewData {
	return ReviewData{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		Status:     string(r.Status),
		Verified:   r.Verified,
	}
}

// PublishBusinessCreated publishes a business.created event.
func (p *Producer) PublishBusinessCreated(ctx context.Context, b *domain.Business) error {
	return p.publish(ctx, TopicBusinessCreated, b.ID, AggregateTypeBusiness, businessData(b))
}

// PublishBusinessUpdated publishes a business.updated event.
func (p *Producer) PublishBusinessUpdated(ctx context.Context, b *domain.Business) error {
	return p.publish(ctx, TopicBusinessUpdated, b.ID, AggregateTypeBusiness, businessData(b))
}

// PublishBusinessDeleted publishes a business.deleted event.
func (p *Producer) PublishBusinessDeleted(ctx context.Context, id string) error {
	return p.publish(ctx, TopicBusinessDeleted, id, AggregateTypeBusiness, DeletedData{ID: id})
}

// PublishReviewCreated publishes a review.created event.
func (p *Producer) PublishReviewCreated(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewCreated, r.ID, AggregateTypeReview, reviewData(r))
}

// PublishReviewUpdated publishes a review.updated event. Moderation and
// verification changes are reported as updates too.
func (p *Producer) PublishReviewUpdated(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewUpdated, r.ID, AggregateTypeReview, reviewData(r))
}

// PublishReviewDeleted publishes a review.deleted event.
func (p *Producer) PublishReviewDeleted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewDeleted, r.ID, AggregateTypeReview, DeletedData{ID: r.ID, BusinessID: r.BusinessID})
}

// PublishScoreUpdated publishes a business.score_updated event. It satisfies
// safety.ScorePublisher.
func (p *Producer) PublishScoreUpdated(ctx context.Context, businessID string, agg domain.Aggregate) error {
	return p.publish(ctx, TopicBusinessScoreUpdate, businessID, AggregateTypeBusiness, ScoreUpdatedData{
		BusinessID:    businessID,
		SafetyScore:   agg.SafetyScore,
		AverageRating: agg.AverageRating,
		TotalReviews:  agg.TotalReviews,
	})
}
