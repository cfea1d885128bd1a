package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/safespacefinder/safespace/internal/domain"
	apperrors "github.com/safespacefinder/safespace/pkg/errors"
	pkgkafka "github.com/safespacefinder/safespace/pkg/kafka"
	"github.com/safespacefinder/safespace/pkg/logger"
)

// Topics consumed by this service.
var (
	TopicReviewVerified     = pkgkafka.Topic("review", "verified")
	TopicRecomputeRequested = pkgkafka.Topic("business", "recompute_requested")
)

// ConsumedTopics lists every topic the consumer subscribes to.
func ConsumedTopics() []string {
	return []string{TopicReviewVerified, TopicRecomputeRequested}
}

// ReviewVerifiedData is the payload emitted by the verification process.
type ReviewVerifiedData struct {
	ReviewID string `json:"review_id"`
	Method   string `json:"method"`
}

// RecomputeRequestedData asks for one business to be rescored.
type RecomputeRequestedData struct {
	BusinessID string `json:"business_id"`
}

// ReviewVerifier marks reviews verified.
type ReviewVerifier interface {
	VerifyReview(ctx context.Context, reviewID string, method domain.VerificationMethod) (*domain.Review, error)
}

// ScoreRecomputer rescores a business.
type ScoreRecomputer interface {
	RecomputeSafetyScore(ctx context.Context, businessID string) (domain.Aggregate, error)
}

// Consumer handles inbound events.
type Consumer struct {
	reviews ReviewVerifier
	scores  ScoreRecomputer
	logger  *slog.Logger
}

// NewConsumer creates an event consumer.
func NewConsumer(reviews ReviewVerifier, scores ScoreRecomputer, logger *slog.Logger) *Consumer {
	return &Consumer{
		reviews: reviews,
		scores:  scores,
		logger:  logger,
	}
}

// Handle dispatches event by type. Unknown types are ignored.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	switch event.EventType {
	case TopicReviewVerified:
		return c.HandleReviewVerified(ctx, event)
	case TopicRecomputeRequested:
		return c.HandleRecomputeRequested(ctx, event)
	default:
		c.logger.WarnContext(ctx, "ignoring unknown event type",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// HandleReviewVerified marks the review verified, which rescores its business.
func (c *Consumer) HandleReviewVerified(ctx context.Context, event *pkgkafka.Event) error {
	var data ReviewVerifiedData
	if err := event.UnmarshalData(&data); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("unmarshal review.verified data: %w", err))
	}
	if err := requireUUID("review_id", data.ReviewID); err != nil {
		return err
	}
	method := domain.VerificationMethod(data.Method)
	if !method.IsValid() {
		return pkgkafka.Permanent(fmt.Errorf("review.verified method %q: %w", data.Method, apperrors.ErrInvalidInput))
	}

	_, err := c.reviews.VerifyReview(ctx, data.ReviewID, method)
	if errors.Is(err, apperrors.ErrNotFound) {
		c.logger.InfoContext(ctx, "verified review no longer exists",
			slog.String("review_id", data.ReviewID),
		)
		return nil
	}
	if err != nil {
		return classify(fmt.Errorf("verify review %s: %w", data.ReviewID, err))
	}

	c.logger.InfoContext(ctx, "review verified from event",
		slog.String("review_id", data.ReviewID),
		slog.String("method", data.Method),
	)
	return nil
}

// HandleRecomputeRequested rescores one business.
func (c *Consumer) HandleRecomputeRequested(ctx context.Context, event *pkgkafka.Event) error {
	var data RecomputeRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("unmarshal business.recompute_requested data: %w", err))
	}
	if data.BusinessID == "" {
		data.BusinessID = event.AggregateID
	}
	if err := requireUUID("business_id", data.BusinessID); err != nil {
		return err
	}

	agg, err := c.scores.RecomputeSafetyScore(ctx, data.BusinessID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return classify(fmt.Errorf("recompute business %s: %w", data.BusinessID, err))
	}

	c.logger.InfoContext(ctx, "business rescored from event",
		slog.String("business_id", data.BusinessID),
		slog.Int("safety_score", agg.SafetyScore),
	)
	return nil
}

func requireUUID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("%s %q is not a uuid: %w", field, value, apperrors.ErrInvalidInput))
	}
	return nil
}

// classify marks rejected input as permanent. Everything else is retried.
func classify(err error) error {
	if errors.Is(err, apperrors.ErrInvalidInput) {
		return pkgkafka.Permanent(err)
	}
	return err
}
