package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	strs "outbreak/pkg/platform/strings"
)

// Store backends accepted by OUTBREAK_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"OUTBREAK_ADDR" envDefault:":8080"`
	Environment     string        `env:"OUTBREAK_ENV" envDefault:"development"`
	ShutdownTimeout time.Duration `env:"OUTBREAK_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"OUTBREAK_REQUEST_TIMEOUT" envDefault:"30s"`
	MaxUploadBytes  int64         `env:"OUTBREAK_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	LogLevel        string        `env:"OUTBREAK_LOG_LEVEL" envDefault:"info"`
	OTELEndpoint    string        `env:"OUTBREAK_OTEL_ENDPOINT"`

	Store     StoreConfig
	Redis     RedisConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

// StoreConfig selects the registration backend.
type StoreConfig struct {
	Backend       string `env:"OUTBREAK_STORE" envDefault:"memory"`
	PostgresDSN   string `env:"OUTBREAK_POSTGRES_DSN"`
	MongoURI      string `env:"OUTBREAK_MONGO_URI"`
	MongoDatabase string `env:"OUTBREAK_MONGO_DATABASE" envDefault:"outbreak"`
}

// RedisConfig configures the shared Redis client used by the redis store and rate limiter.
type RedisConfig struct {
	URL          string        `env:"OUTBREAK_REDIS_URL"`
	PoolSize     int           `env:"OUTBREAK_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"OUTBREAK_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"OUTBREAK_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"OUTBREAK_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"OUTBREAK_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// AdminConfig holds the admin dashboard credentials.
type AdminConfig struct {
	AccessKeyHash string        `env:"OUTBREAK_ADMIN_KEY_HASH"`
	JWTSigningKey string        `env:"OUTBREAK_JWT_SIGNING_KEY"`
	JWTIssuer     string        `env:"OUTBREAK_JWT_ISSUER" envDefault:"outbreak"`
	JWTAudience   string        `env:"OUTBREAK_JWT_AUDIENCE" envDefault:"outbreak-admin"`
	SessionTTL    time.Duration `env:"OUTBREAK_ADMIN_SESSION_TTL" envDefault:"8h"`
}

// RateLimitConfig sets per-client request budgets per endpoint class.
type RateLimitConfig struct {
	Disabled    bool          `env:"OUTBREAK_RATELIMIT_DISABLED" envDefault:"false"`
	Window      time.Duration `env:"OUTBREAK_RATELIMIT_WINDOW" envDefault:"1m"`
	LookupLimit int           `env:"OUTBREAK_RATELIMIT_LOOKUP" envDefault:"120"`
	SubmitLimit int           `env:"OUTBREAK_RATELIMIT_SUBMIT" envDefault:"10"`
	AdminLimit  int           `env:"OUTBREAK_RATELIMIT_ADMIN" envDefault:"20"`
	UseRedis    bool          `env:"OUTBREAK_RATELIMIT_REDIS" envDefault:"false"`
}

// AuditConfig routes audit events. Without Kafka brokers events stay in memory.
type AuditConfig struct {
	KafkaBrokers  []string      `env:"OUTBREAK_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string        `env:"OUTBREAK_KAFKA_TOPIC" envDefault:"outbreak.audit"`
	OutboxDSN     string        `env:"OUTBREAK_AUDIT_OUTBOX_DSN"`
	RelayInterval time.Duration `env:"OUTBREAK_AUDIT_RELAY_INTERVAL" envDefault:"2s"`
	AsyncBuffer   int           `env:"OUTBREAK_AUDIT_BUFFER" envDefault:"256"`
}

// DevJWTSigningKey is used outside production when no signing key is configured.
const DevJWTSigningKey = "dev-secret-key-change-in-production"

// FromEnv loads an optional .env file and then parses the environment.
func FromEnv() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Server config from environment variables alone.
func Parse() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c *Server) normalize() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("OUTBREAK_POSTGRES_DSN is required for the postgres store")
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return errors.New("OUTBREAK_MONGO_URI is required for the mongo store")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("OUTBREAK_REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.RateLimit.UseRedis && c.Redis.URL == "" {
		return errors.New("OUTBREAK_REDIS_URL is required for redis rate limiting")
	}

	if c.Admin.JWTSigningKey == "" {
		if c.IsProduction() {
			return errors.New("OUTBREAK_JWT_SIGNING_KEY is required in production")
		}
		c.Admin.JWTSigningKey = DevJWTSigningKey
	}

	c.Audit.KafkaBrokers = strs.DedupeAndTrimLower(c.Audit.KafkaBrokers)
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.OutboxDSN == "" {
		c.Audit.OutboxDSN = c.Store.PostgresDSN
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.OutboxDSN == "" {
		return errors.New("OUTBREAK_AUDIT_OUTBOX_DSN is required when Kafka audit is enabled")
	}
	return nil
}

// IsProduction reports whether the server runs with production settings.
func (c Server) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// KafkaEnabled reports whether audit events are relayed to Kafka.
func (c Server) KafkaEnabled() bool {
	return len(c.Audit.KafkaBrokers) > 0
}
