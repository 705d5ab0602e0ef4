// Package prefsync defines the core types used by the preference synchronization flow.
package prefsync

import (
	"time"
)

const (
	// DefaultCacheTTL bounds how long a Tier 2 entry is trusted.
	DefaultCacheTTL = time.Hour
	// DefaultTierTimeout bounds a single cache or store call.
	DefaultTierTimeout = 2 * time.Second
	// DefaultRetries is the number of extra attempts after a failed tier call.
	DefaultRetries = 1
)

// Record is the durable Tier 3 row for one user and one preference kind.
type Record struct {
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result reports the outcome of a Set once the carrier has been written.
// Success is false when the cache or store tier rejected the write; Err then
// holds the joined tier errors. The carrier keeps the new value either way.
type Result struct {
	Success bool  `json:"success"`
	Err     error `json:"-"`
}

// Change describes a preference update delivered to a Notifier.
type Change struct {
	Kind    string    `json:"kind"`
	UserID  string    `json:"user_id,omitempty"`
	Value   string    `json:"value"`
	Cleared bool      `json:"cleared,omitempty"`
	At      time.Time `json:"at"`
}

// BreakerSettings configures the per-tier circuit breakers.
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before letting trial requests through.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerSettings mirrors the executor defaults used elsewhere: five
// consecutive failures, thirty seconds open, three half-open trial requests.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 3,
	}
}

// Config holds the internal configuration for a Syncer instance.
// It is populated by applying functional Options when a Syncer is created with New().
type Config struct {
	store       Store
	cache       Cache
	logger      Logger
	notifier    Notifier
	cacheTTL    time.Duration
	tierTimeout time.Duration
	retries     int
	breaker     *BreakerSettings
	kinds       []Kind
}

// Option defines the signature for a functional option that configures a Syncer.
type Option func(*Config)

// WithStore sets the system of record. Without a store, user-scoped values
// live only in the carrier and the cache.
func WithStore(s Store) Option {
	return func(c *Config) {
		c.store = s
	}
}

// WithCache sets the shared cache tier.
func WithCache(cache Cache) Option {
	return func(c *Config) {
		c.cache = cache
	}
}

// WithLogger sets the Logger used for tier failures and backfill diagnostics.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		c.logger = l
	}
}

// WithNotifier sets the Notifier that observes every successful carrier write.
func WithNotifier(n Notifier) Option {
	return func(c *Config) {
		c.notifier = n
	}
}

// WithCacheTTL overrides DefaultCacheTTL. Non-positive values are ignored.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithTierTimeout overrides DefaultTierTimeout. Non-positive values are ignored.
func WithTierTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.tierTimeout = d
		}
	}
}

// WithRetries sets how many extra attempts a failed tier call gets. Values
// above one are clamped to one.
func WithRetries(n int) Option {
	return func(c *Config) {
		switch {
		case n < 0:
			c.retries = 0
		case n > 1:
			c.retries = 1
		default:
			c.retries = n
		}
	}
}

// WithBreaker enables a circuit breaker in front of the cache and store tiers.
func WithBreaker(s BreakerSettings) Option {
	return func(c *Config) {
		c.breaker = &s
	}
}

// WithKinds registers preference kinds at construction time.
func WithKinds(kinds ...Kind) Option {
	return func(c *Config) {
		c.kinds = append(c.kinds, kinds...)
	}
}
