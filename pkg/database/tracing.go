package database

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/safespacefinder/safespace/pkg/errors"
)

const tracerName = "github.com/safespacefinder/safespace/pkg/database"

var slowQueryCfg struct {
	mu        sync.RWMutex
	threshold time.Duration
	logger    *slog.Logger
}

// SetSlowQueryLogging logs queries slower than threshold as warnings.
// A zero threshold disables it.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	slowQueryCfg.mu.Lock()
	defer slowQueryCfg.mu.Unlock()
	slowQueryCfg.threshold = threshold
	slowQueryCfg.logger = logger
}

func slowQueryConfig() (time.Duration, *slog.Logger) {
	slowQueryCfg.mu.RLock()
	defer slowQueryCfg.mu.RUnlock()
	return slowQueryCfg.threshold, slowQueryCfg.logger
}

// TraceQuery starts a client span for a database operation. Call the returned
// function with the operation's error once it completes:
//
//	ctx, end := database.TraceQuery(ctx, "GetBusiness", query)
//	defer func() { end(err) }()
//
// A lookup that finds no row is an expected outcome: the span stays OK and
// carries db.not_found=true. Queries slower than the SetSlowQueryLogging
// threshold are tagged db.slow=true and logged as warnings.
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		defer span.End()

		switch {
		case err == nil:
		case errors.Is(err, pgx.ErrNoRows), errors.Is(err, apperrors.ErrNotFound):
			span.SetAttributes(attribute.Bool("db.not_found", true))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		threshold, logger := slowQueryConfig()
		elapsed := time.Since(start)
		if threshold <= 0 || elapsed < threshold {
			return
		}
		span.SetAttributes(attribute.Bool("db.slow", true))
		if logger == nil {
			return
		}
		attrs := []any{
			slog.String("operation", operation),
			slog.String("statement", statement),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.WarnContext(ctx, "slow query detected", attrs...)
	}
}
