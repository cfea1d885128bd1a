package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/safespacefinder/safespace/internal/auth"
	"github.com/safespacefinder/safespace/internal/config"
	"github.com/safespacefinder/safespace/internal/event"
	handler "github.com/safespacefinder/safespace/internal/handler/http"
	"github.com/safespacefinder/safespace/internal/repository/postgres"
	rediscache "github.com/safespacefinder/safespace/internal/repository/redis"
	"github.com/safespacefinder/safespace/internal/safety"
	"github.com/safespacefinder/safespace/internal/service"
	"github.com/safespacefinder/safespace/migrations"
	"github.com/safespacefinder/safespace/pkg/database"
	"github.com/safespacefinder/safespace/pkg/health"
	pkgkafka "github.com/safespacefinder/safespace/pkg/kafka"
	"github.com/safespacefinder/safespace/pkg/middleware"
	"github.com/safespacefinder/safespace/pkg/tracing"
)

const (
	accessTokenTTL     = 24 * time.Hour
	healthCheckTimeout = 2 * time.Second
	idempotencyPrefix  = "safespace:events:"
)

// App wires together all dependencies and runs the safety score service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	dlq        *pkgkafka.DLQProducer
	consumer   *pkgkafka.Consumer
	tracerStop tracing.ShutdownFunc
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	stop, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.tracerStop = stop

	// PostgreSQL is the source of truth for businesses, reviews and aggregates.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)

	reg := prometheus.DefaultRegisterer
	if err := database.RegisterPoolMetrics(reg, pool, config.ServiceName); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(reg, config.ServiceName)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	safetyMetrics, err := safety.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register safety metrics: %w", err)
	}

	healthHandler := health.NewHandler(healthCheckTimeout)
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	// Redis is an accelerator only. Without it scores are served from PostgreSQL.
	var scoreCache *rediscache.ScoreCache
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			logger.Warn("redis unavailable, running without score cache",
				slog.String("addr", cfg.Redis().Addr()),
				slog.String("error", err.Error()),
			)
		} else {
			a.redis = client
			scoreCache = rediscache.NewScoreCache(client, cfg.ScoreCacheTTL, rediscache.DefaultBreakerConfig(), logger)
			healthHandler.RegisterOptional("redis", scoreCache.Ping)
			logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		}
	}

	businessRepo := postgres.NewBusinessRepository(pool)
	reviewRepo := postgres.NewReviewRepository(pool)

	aggOpts := []safety.Option{
		safety.WithCountedStatuses(cfg.CountedStatuses()...),
		safety.WithMetrics(safetyMetrics),
	}
	var (
		svcCache       service.ScoreCache
		businessEvents service.BusinessEvents
		reviewEvents   service.ReviewEvents
	)
	if scoreCache != nil {
		svcCache = scoreCache
		aggOpts = append(aggOpts, safety.WithCache(scoreCache))
	}

	var eventProducer *event.Producer
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		eventProducer = event.NewProducer(a.producer, logger)
		businessEvents, reviewEvents = eventProducer, eventProducer
		aggOpts = append(aggOpts, safety.WithPublisher(eventProducer))
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	aggregator := safety.NewAggregator(reviewRepo, businessRepo, logger, aggOpts...)
	logger.Info("safety aggregator configured",
		slog.Any("counted_statuses", aggregator.CountedStatuses()),
	)

	businessService := service.NewBusinessService(businessRepo, aggregator, svcCache, businessEvents, logger)
	reviewService := service.NewReviewService(reviewRepo, businessRepo, aggregator, reviewEvents, cfg.ReviewAutoApprove, logger)

	if cfg.KafkaEnabled {
		a.consumer = a.newConsumer(event.NewConsumer(reviewService, businessService, logger))
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, accessTokenTTL)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins

	router := handler.NewRouter(handler.RouterConfig{
		Businesses:     businessService,
		Reviews:        reviewService,
		Health:         healthHandler,
		ValidateToken:  jwtManager.Validate,
		Metrics:        httpMetrics,
		MetricsHandler: promhttp.Handler(),
		CORS:           cors,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		ListCacheAge:   cfg.ListCacheMaxAge,
		Logger:         logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return nil
}

// newConsumer subscribes to the inbound topics. Deliveries are deduplicated
// in Redis when available and in memory otherwise.
func (a *App) newConsumer(c *event.Consumer) *pkgkafka.Consumer {
	var store pkgkafka.IdempotencyStore
	if a.redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.redis, idempotencyPrefix, a.cfg.IdempotencyTTL)
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	}

	a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.logger)
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  a.cfg.KafkaBrokers,
		GroupID:  a.cfg.KafkaGroupID,
		Topics:   event.ConsumedTopics(),
		MinBytes: 1,
		MaxBytes: 10e6,
	}, pkgkafka.IdempotentHandler(store, c.Handle, a.logger), a.dlq, a.logger)
}

// Run starts the HTTP server and the Kafka consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Start(consumerCtx); err != nil {
				a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopConsumer()
	wg.Wait()

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var err error
	if a.httpServer != nil {
		if shutdownErr := a.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Error("http server shutdown error", slog.String("error", shutdownErr.Error()))
			err = fmt.Errorf("http server shutdown: %w", shutdownErr)
		}
	}

	a.close()

	if a.tracerStop != nil {
		if stopErr := a.tracerStop(shutdownCtx); stopErr != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", stopErr.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return err
}

// close releases connections. Safe on a partially initialized App.
func (a *App) close() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
		a.consumer = nil
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
		}
		a.dlq = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
