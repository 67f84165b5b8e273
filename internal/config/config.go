package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	DB      DBConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Payment PaymentConfig
	Limits  LimitsConfig
	Log     LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// StoreConfig selects the persistence backend. The choice is fixed at startup.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"postgres"`
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       int    `envconfig:"DB_PORT" default:"5432"`
	User       string `envconfig:"DB_USER" default:"postgres"`
	Password   string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name       string `envconfig:"DB_NAME" default:"qr_saas"`
	SSLMode    string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns   int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns   int    `envconfig:"DB_MIN_CONNS" default:"5"`
	MaxRetries int    `envconfig:"DB_MAX_RETRIES" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// MongoConfig holds document store configuration, used when STORE_DRIVER=mongo.
type MongoConfig struct {
	URL            string        `envconfig:"MONGODB_URL" default:"mongodb://localhost:27017"`
	Database       string        `envconfig:"MONGODB_DATABASE" default:"qr_saas"`
	ConnectTimeout time.Duration `envconfig:"MONGODB_CONNECT_TIMEOUT" default:"10s"`
	MaxPoolSize    uint64        `envconfig:"MONGODB_MAX_POOL_SIZE" default:"50"`
}

// RedisConfig holds the idempotency key store connection. An empty URL keeps the
// keys in process memory.
type RedisConfig struct {
	URL    string `envconfig:"REDIS_URL"`
	Prefix string `envconfig:"REDIS_KEY_PREFIX" default:"idem:"`
}

// Enabled reports whether a Redis URL was configured.
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// AuthConfig holds identity provider token settings.
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	JWTIssuer string `envconfig:"AUTH_JWT_ISSUER"`
}

// PaymentConfig holds payment gateway credentials.
type PaymentConfig struct {
	KeyID          string        `envconfig:"PAYMENT_KEY_ID"`
	KeySecret      string        `envconfig:"PAYMENT_KEY_SECRET"`
	WebhookSecret  string        `envconfig:"PAYMENT_WEBHOOK_SECRET"`
	Currency       string        `envconfig:"PAYMENT_CURRENCY" default:"INR"`
	IdempotencyTTL time.Duration `envconfig:"PAYMENT_IDEMPOTENCY_TTL" default:"168h"`
}

// LimitsConfig holds API throttling and retry settings.
type LimitsConfig struct {
	APIMaxCallsPerDay int64   `envconfig:"API_MAX_CALLS_PER_DAY" default:"100"`
	APIRatePerSecond  float64 `envconfig:"API_RATE_PER_SECOND" default:"5"`
	APIRateBurst      int     `envconfig:"API_RATE_BURST" default:"10"`
	RetryMaxAttempts  int     `envconfig:"RETRY_MAX_ATTEMPTS" default:"8"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot be served.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Limits.APIMaxCallsPerDay < 0 {
		return fmt.Errorf("API_MAX_CALLS_PER_DAY must not be negative, got %d", c.Limits.APIMaxCallsPerDay)
	}
	if c.Limits.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Limits.RetryMaxAttempts)
	}
	return nil
}
