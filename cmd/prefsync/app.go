package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pressograph/prefsync"
	"github.com/pressograph/prefsync/api"
	"github.com/pressograph/prefsync/cache"
	"github.com/pressograph/prefsync/cookie"
	"github.com/pressograph/prefsync/encryption"
	"github.com/pressograph/prefsync/internal/config"
	"github.com/pressograph/prefsync/notify"
	"github.com/pressograph/prefsync/storage"
)

// app holds everything built from a Config.
type app struct {
	cfg       *config.Config
	logger    prefsync.Logger
	syncer    *prefsync.Syncer
	hub       *notify.Hub
	publisher *notify.RabbitMQPublisher
	cookies   cookie.Config
	auth      *api.Authenticator
	limiter   *api.RateLimiter
}

func newLogger(cfg *config.Config) (prefsync.Logger, error) {
	level, err := prefsync.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	var logger prefsync.Logger
	if cfg.LogBackend == "slog" {
		logger = prefsync.NewJSONLogger(os.Stderr)
	} else {
		logger, err = prefsync.NewZapLogger()
		if err != nil {
			return nil, fmt.Errorf("build zap logger: %w", err)
		}
	}
	logger.SetLevel(level)
	return logger, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, hub: notify.NewHub(0)}

	store, err := storage.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var c prefsync.Cache
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCacheFromURL(cfg.RedisURL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		c = rc
	} else {
		c = cache.NewMemoryCache(cache.DefaultGCInterval)
	}

	notifiers := notify.Multi{a.hub}
	if cfg.RabbitMQURL != "" {
		a.publisher, err = notify.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			_ = c.Close()
			_ = store.Close()
			return nil, fmt.Errorf("connect broker: %w", err)
		}
		notifiers = append(notifiers, a.publisher)
	}

	opts := []prefsync.Option{
		prefsync.WithStore(store),
		prefsync.WithCache(c),
		prefsync.WithLogger(logger),
		prefsync.WithNotifier(notifiers),
		prefsync.WithCacheTTL(cfg.CacheTTL),
		prefsync.WithTierTimeout(cfg.TierTimeout),
		prefsync.WithRetries(cfg.Retries),
	}
	if b := cfg.Breaker(); b != nil {
		opts = append(opts, prefsync.WithBreaker(*b))
	}
	a.syncer, err = prefsync.New(opts...)
	if err != nil {
		_ = a.Close()
		_ = c.Close()
		_ = store.Close()
		return nil, err
	}

	a.cookies = cookie.Config{
		Secure:              cfg.CookieSecure || cfg.IsProduction(),
		TrustForwardedProto: cfg.TrustForwardedProto,
		HTTPOnly:            true,
		MaxAge:              cfg.CookieMaxAge,
		Domain:              cfg.CookieDomain,
	}
	if cfg.CookieKey != "" {
		a.cookies.Sealer, err = encryption.NewSealer([]byte(cfg.CookieKey))
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("cookie key: %w", err)
		}
	}

	if cfg.JWTSecret != "" {
		a.auth, err = api.NewAuthenticator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if cfg.WriteRateLimit > 0 {
		a.limiter = api.NewRateLimiter(cfg.WriteRateLimit, cfg.WriteBurst)
	}
	return a, nil
}

// Close releases the store, cache and broker connection.
func (a *app) Close() error {
	var errs []error
	if a.syncer != nil {
		errs = append(errs, a.syncer.Close())
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	return errors.Join(errs...)
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}
