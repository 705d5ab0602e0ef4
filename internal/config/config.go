// Package config loads the prefsync server configuration from the
// environment. A .env file in the working directory is read first when
// present; real environment variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/pressograph/prefsync"
	"github.com/pressograph/prefsync/storage"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogBackend    string `env:"LOG_BACKEND" envDefault:"zap"`
	ListenAddress string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Tier 3
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	StoreDSN    string `env:"STORE_DSN"`

	// Tier 2. An empty URL selects the in-process cache.
	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"1h"`

	// Change notifications. An empty URL disables the broker publisher.
	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"pressograph.preferences"`

	// Tier 1
	CookieKey           string        `env:"COOKIE_KEY"`
	CookieSecure        bool          `env:"COOKIE_SECURE"`
	CookieDomain        string        `env:"COOKIE_DOMAIN"`
	CookieMaxAge        time.Duration `env:"COOKIE_MAX_AGE" envDefault:"8760h"`
	TrustForwardedProto bool          `env:"TRUST_FORWARDED_PROTO"`

	// Identity. Without a secret every request is anonymous.
	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// Write throttling per caller. A zero rate disables it. TrustProxy keys
	// anonymous callers by X-Forwarded-For; set it only behind a proxy that
	// overwrites that header.
	WriteRateLimit float64 `env:"WRITE_RATE_LIMIT" envDefault:"5"`
	WriteBurst     int     `env:"WRITE_BURST" envDefault:"10"`
	TrustProxy     bool    `env:"TRUST_PROXY"`

	// Tier call policy
	TierTimeout       time.Duration `env:"TIER_TIMEOUT" envDefault:"2s"`
	Retries           int           `env:"TIER_RETRIES" envDefault:"1"`
	BreakerEnabled    bool          `env:"BREAKER_ENABLED" envDefault:"true"`
	BreakerThreshold  uint32        `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerOpen       time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`

	// Tracing. An empty endpoint leaves tracing off.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"prefsync"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Prefix is prepended to every variable name.
const Prefix = "PREFSYNC_"

// Load reads .env (if any) and parses the environment into a Config.
func Load() (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()
	return Parse(nil)
}

// Parse builds a Config from environment. A nil map reads the process
// environment.
func Parse(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: Prefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case storage.DriverMemory:
	case storage.DriverPostgres, storage.DriverPgx, storage.DriverSQLite, storage.DriverSQLite3:
		if c.StoreDSN == "" {
			errs = append(errs, fmt.Errorf("%sSTORE_DSN is required for driver %q", Prefix, c.StoreDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("%sSTORE_DRIVER %q is not supported", Prefix, c.StoreDriver))
	}
	if _, err := prefsync.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err))
	}
	if c.LogBackend != "zap" && c.LogBackend != "slog" {
		errs = append(errs, fmt.Errorf("%sLOG_BACKEND %q must be zap or slog", Prefix, c.LogBackend))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("%sRECONCILE_INTERVAL must be positive", Prefix))
	}
	if c.IsProduction() && c.CookieKey == "" {
		errs = append(errs, fmt.Errorf("%sCOOKIE_KEY is required in production", Prefix))
	}
	return errors.Join(errs...)
}

// Breaker returns the breaker settings, or nil when the breaker is off.
func (c *Config) Breaker() *prefsync.BreakerSettings {
	if !c.BreakerEnabled {
		return nil
	}
	b := prefsync.DefaultBreakerSettings()
	if c.BreakerThreshold > 0 {
		b.FailureThreshold = c.BreakerThreshold
	}
	if c.BreakerOpen > 0 {
		b.OpenTimeout = c.BreakerOpen
	}
	return &b
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
