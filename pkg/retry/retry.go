// Package retry runs CallRail operations under an exponential backoff policy.
//
// Classification follows the transport taxonomy in package client: rate
// limits, server failures and network failures are retried, everything else
// fails on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/Sternrassler/callrail-extractor/pkg/client"
	"github.com/Sternrassler/callrail-extractor/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrExhausted is wrapped around the last error once all attempts failed.
	ErrExhausted = errors.New("retry attempts exhausted")

	// ErrCancelled is returned when the context ends while waiting between attempts.
	ErrCancelled = errors.New("retry cancelled")
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callrail_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callrail_retry_backoff_seconds",
		Help:    "Backoff duration before a retry by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callrail_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first one.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// Multiplier grows the wait after every attempt.
	Multiplier float64

	// Jitter scales each wait by a random factor in [0.5, 1.0].
	Jitter bool
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// Policy applies a Config. It is safe for concurrent use.
type Policy struct {
	cfg    Config
	logger zerolog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// NewPolicy creates a retry policy. Zero fields of cfg take their defaults.
func NewPolicy(cfg Config, logger zerolog.Logger) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}

	return &Policy{
		cfg:    cfg,
		logger: logger.With().Str("component", "retry").Logger(),
		sleep:  sleepContext,
		random: rand.Float64,
	}
}

// Default returns a policy with DefaultConfig and the global logger.
func Default() *Policy {
	return NewPolicy(DefaultConfig(), log.Logger)
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Backoff returns the wait after the given 0-indexed attempt, before jitter:
// min(InitialBackoff * Multiplier^attempt, MaxBackoff).
func (p *Policy) Backoff(attempt int) time.Duration {
	d := float64(p.cfg.InitialBackoff) * math.Pow(p.cfg.Multiplier, float64(attempt))
	if d > float64(p.cfg.MaxBackoff) || math.IsInf(d, 1) {
		return p.cfg.MaxBackoff
	}
	return time.Duration(d)
}

// delay is the actual wait after a failed attempt. A server-provided
// Retry-After on a rate limit replaces the computed backoff.
func (p *Policy) delay(attempt int, err error) time.Duration {
	if ra := client.RetryAfterOf(err); ra > 0 {
		return ra
	}
	d := p.Backoff(attempt)
	if p.cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + p.random()*0.5))
	}
	return d
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return client.KindOf(err).Retryable()
}

// Do calls fn until it succeeds, fails permanently or the attempts run out.
// op names the operation in logs.
func Do[T any](ctx context.Context, p *Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p == nil {
		p = Default()
	}

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		result, err := fn(ctx)
		if err == nil {
			ev := p.logger.Debug()
			if attempt > 1 {
				ev = p.logger.Info()
			}
			ev.Str("operation", op).Int("attempts", attempt).Msg("Operation succeeded")
			return result, nil
		}
		lastErr = err
		kind := client.KindOf(err)

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%w: %s: %w", ErrCancelled, op, ctx.Err())
		}

		if !Retryable(err) {
			p.logger.Warn().
				Err(err).
				Str("operation", op).
				Str("error_kind", string(kind)).
				Int("attempts", attempt).
				Msg("Operation failed with non-retryable error")
			return zero, err
		}

		if attempt >= p.cfg.MaxAttempts {
			break
		}

		// The local budget resets at the window boundary, possibly an hour away.
		// That wait is not taken; a server Retry-After always is.
		if ra := client.RetryAfterOf(err); errors.Is(err, ratelimit.ErrBudgetExhausted) && ra > p.cfg.MaxBackoff {
			p.logger.Warn().
				Str("operation", op).
				Dur("retry_after", ra).
				Dur("max_backoff", p.cfg.MaxBackoff).
				Msg("Request budget resets after max backoff, giving up")
			break
		}

		wait := p.delay(attempt-1, err)
		retriesTotal.WithLabelValues(string(kind)).Inc()
		retryBackoffSeconds.WithLabelValues(string(kind)).Observe(wait.Seconds())

		p.logger.Warn().
			Err(err).
			Str("operation", op).
			Str("error_kind", string(kind)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying after backoff")

		if err := p.sleep(ctx, wait); err != nil {
			p.logger.Warn().
				Str("operation", op).
				Int("attempts", attempt).
				Msg("Context cancelled during retry backoff")
			return zero, fmt.Errorf("%w: %s: %w", ErrCancelled, op, err)
		}
	}

	kind := client.KindOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(kind)).Inc()
	p.logger.Error().
		Err(lastErr).
		Str("operation", op).
		Str("error_kind", string(kind)).
		Int("attempts", attempts).
		Msg("Retry attempts exhausted")

	return zero, fmt.Errorf("%w: %s after %d attempts: %w", ErrExhausted, op, attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
