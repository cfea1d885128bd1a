package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/safespacefinder/safespace/internal/domain"
	pkgconfig "github.com/safespacefinder/safespace/pkg/config"
	"github.com/safespacefinder/safespace/pkg/database"
	"github.com/safespacefinder/safespace/pkg/tracing"
)

// ServiceName identifies this process in logs, metrics and traces.
const ServiceName = "safespace-api"

// CountAllStatuses in SAFETY_COUNTED_STATUSES makes every review count
// toward the safety score regardless of moderation state.
const CountAllStatuses = "all"

const devJWTSecret = "dev-only-secret-change-me"

// Config holds all configuration for the service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	ListCacheMaxAge int           `env:"LIST_CACHE_MAX_AGE_SECONDS" envDefault:"30"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"safespace"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"safespace_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"safespace"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	RunMigrations         bool  `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Redis score cache
	RedisEnabled  bool          `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	RedisTimeout  time.Duration `env:"REDIS_TIMEOUT" envDefault:"500ms"`
	ScoreCacheTTL time.Duration `env:"SCORE_CACHE_TTL" envDefault:"10m"`

	// Kafka
	KafkaEnabled   bool          `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID   string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"safespace-api"`
	IdempotencyTTL time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// Auth
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-only-secret-change-me"`

	// Safety score
	SafetyCountedStatuses string `env:"SAFETY_COUNTED_STATUSES" envDefault:"approved"`
	ReviewAutoApprove     bool   `env:"REVIEW_AUTO_APPROVE" envDefault:"false"`

	// OpenTelemetry
	Tracing tracing.Config

	// Pprof debug endpoints (IP allowlist in CIDR notation). Empty disables them.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	countedStatuses []domain.ReviewStatus
}

// Load reads configuration from environment variables. opts are passed to
// pkg/config, e.g. to read a fixed environment in tests.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load safespace config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Tracing.ServiceName = ServiceName
	cfg.Tracing.ServiceVersion = cfg.Version
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate)
	}
	if c.ScoreCacheTTL <= 0 {
		return fmt.Errorf("SCORE_CACHE_TTL must be positive, got %s", c.ScoreCacheTTL)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && (c.JWTSecret == devJWTSecret || len(c.JWTSecret) < 32) {
		return fmt.Errorf("JWT_SECRET must be set to at least 32 characters in production")
	}

	if !strings.EqualFold(strings.TrimSpace(c.SafetyCountedStatuses), CountAllStatuses) {
		statuses, ok := domain.ParseReviewStatuses(c.SafetyCountedStatuses)
		if !ok || len(statuses) == 0 {
			return fmt.Errorf("SAFETY_COUNTED_STATUSES must list review statuses or be %q, got %q", CountAllStatuses, c.SafetyCountedStatuses)
		}
		c.countedStatuses = statuses
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// CountedStatuses returns the review statuses that count toward the safety
// score. An empty result means every status counts.
func (c *Config) CountedStatuses() []domain.ReviewStatus {
	return c.countedStatuses
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,

		PoolSize:     c.RedisPoolSize,
		DialTimeout:  c.RedisTimeout,
		ReadTimeout:  c.RedisTimeout,
		WriteTimeout: c.RedisTimeout,
	}
}

// SlowQueryThreshold returns LOG_SLOW_QUERY_MS as a duration.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
