package prefsync

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/pressograph/prefsync"

// tierGuard wraps every call into the cache or store tier with a timeout,
// at most one retry, an optional circuit breaker and a trace span.
type tierGuard struct {
	tier    Tier
	timeout time.Duration
	retries int
	breaker *gobreaker.CircuitBreaker[any]
	tracer  trace.Tracer
}

func newTierGuard(tier Tier, cfg *Config) *tierGuard {
	g := &tierGuard{
		tier:    tier,
		timeout: cfg.tierTimeout,
		retries: cfg.retries,
		tracer:  otel.Tracer(instrumentationName),
	}
	if cfg.breaker != nil {
		bs := *cfg.breaker
		logger := cfg.logger
		g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        string(tier),
			MaxRequests: bs.HalfOpenRequests,
			Timeout:     bs.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= bs.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("tier circuit breaker state changed",
					"tier", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound)
			},
		})
	}
	return g
}

// do runs fn under the guard. ErrNotFound passes through untouched and is
// never retried.
func (g *tierGuard) do(ctx context.Context, op, kind string, fn func(context.Context) (any, error)) (any, error) {
	ctx, span := g.tracer.Start(ctx, "prefsync."+string(g.tier)+"."+op,
		trace.WithAttributes(
			attribute.String("prefsync.tier", string(g.tier)),
			attribute.String("prefsync.kind", kind),
		),
	)
	defer span.End()

	var (
		v   any
		err error
	)
	for attempt := 0; attempt <= g.retries; attempt++ {
		v, err = g.attempt(ctx, fn)
		if err == nil || !retryable(ctx, err) {
			break
		}
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("prefsync.attempt", attempt+1)))
	}

	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

func (g *tierGuard) attempt(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.breaker == nil {
		return fn(callCtx)
	}
	return g.breaker.Execute(func() (any, error) {
		return fn(callCtx)
	})
}

func retryable(ctx context.Context, err error) bool {
	if errors.Is(err, ErrNotFound) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return ctx.Err() == nil
}
