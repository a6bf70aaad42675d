package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker around a [Counter].
type BreakerConfig struct {
	Name string
	// MinRequests is the number of calls in an interval before the failure
	// ratio is evaluated.
	MinRequests uint32
	// FailureRatio trips the breaker when reached.
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// Interval resets closed-state counts. Zero keeps them for the breaker's lifetime.
	Interval time.Duration
	// HalfOpenRequests is the number of trial calls allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns conservative breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "counter-store",
		MinRequests:      10,
		FailureRatio:     0.5,
		OpenTimeout:      5 * time.Second,
		Interval:         10 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Breaker is a [Counter] decorator. While open it rejects calls with
// [ErrUnavailable] without touching the store.
type Breaker struct {
	next Counter
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Counter, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fields := []zap.Field{
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			}
			if to == gobreaker.StateOpen {
				logger.Error("counter store breaker opened", append(fields, zap.Bool("alert", true))...)
				return
			}
			logger.Info("counter store breaker state change", fields...)
		},
	}

	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Incr implements [Counter].
func (b *Breaker) Incr(ctx context.Context, key string) (int64, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Incr(ctx, key)
	})
	if err != nil {
		return 0, breakerErr(err)
	}
	return v.(int64), nil
}

// Expire implements [Counter].
func (b *Breaker) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Expire(ctx, key, ttl)
	})
	return breakerErr(err)
}

type getResult struct {
	value int64
	found bool
}

// Get implements [Counter].
func (b *Breaker) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		n, found, err := b.next.Get(ctx, key)
		return getResult{value: n, found: found}, err
	})
	if err != nil {
		return 0, false, breakerErr(err)
	}
	r := v.(getResult)
	return r.value, r.found, nil
}

// Ping bypasses the breaker so health checks observe the real store.
func (b *Breaker) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// Close implements [Counter].
func (b *Breaker) Close() error {
	return b.next.Close()
}

func breakerErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

var _ Counter = (*Breaker)(nil)
