package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimeout bounds a single store call when none is configured.
const DefaultTimeout = 250 * time.Millisecond

// Redis is a [Counter] backed by go-redis.
type Redis struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRedis wraps client. A non-positive timeout selects [DefaultTimeout].
func NewRedis(client redis.UniversalClient, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Redis{client: client, timeout: timeout}
}

// Client returns the underlying go-redis client.
func (s *Redis) Client() redis.UniversalClient {
	return s.client
}

// Incr implements [Counter].
func (s *Redis) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: incr: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Expire implements [Counter].
func (s *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: expire: %v", ErrUnavailable, err)
	}
	return nil
}

// Get implements [Counter]. Values that do not parse as integers read as absent.
func (s *Redis) Get(ctx context.Context, key string) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}

// Ping implements [Counter].
func (s *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Close implements [Counter].
func (s *Redis) Close() error {
	return s.client.Close()
}

var _ Counter = (*Redis)(nil)
