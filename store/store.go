package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the counting store cannot serve a call.
var ErrUnavailable = errors.New("counter store unavailable")

// Counter is an atomic-increment key-value store.
type Counter interface {
	// Incr increments key by one and returns the post-increment value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets the TTL of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Get reads key without modifying it. found is false when the key is absent.
	Get(ctx context.Context, key string) (value int64, found bool, err error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying client.
	Close() error
}
