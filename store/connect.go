package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ConnectConfig bounds the startup connectivity check.
type ConnectConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultConnectConfig returns the startup retry policy.
func DefaultConnectConfig() ConnectConfig {
	return ConnectConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsed:      15 * time.Second,
	}
}

// Connect pings c with exponential backoff until it answers, ctx ends, or
// cfg.MaxElapsed passes. It is meant for process startup only.
func Connect(ctx context.Context, c Counter, cfg ConnectConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	policy.MaxElapsedTime = cfg.MaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		return c.Ping(ctx)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("counter store not ready",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		return fmt.Errorf("connect counter store after %d attempts: %w", attempt, err)
	}
	logger.Info("counter store connected", zap.Int("attempts", attempt))
	return nil
}
