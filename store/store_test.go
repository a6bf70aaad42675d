package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedis(rdb, time.Second), mr
}

func TestRedisIncrExpireGet(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := s.Incr(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.Expire(ctx, "k", 70*time.Second))
	assert.Equal(t, 70*time.Second, mr.TTL("k"))

	n, err = s.Incr(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 2, v)

	mr.FastForward(71 * time.Second)
	_, found, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisGetUnparsableReadsAsAbsent(t *testing.T) {
	s, mr := newTestRedis(t)
	require.NoError(t, mr.Set("junk", "not-a-number"))

	v, found, err := s.Get(context.Background(), "junk")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, v)
}

func TestRedisUnavailable(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.Close()
	ctx := context.Background()

	_, err := s.Incr(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, _, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.ErrorIs(t, s.Expire(ctx, "k", time.Second), ErrUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
}

func TestRedisErrorInjection(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.SetError("LOADING")
	t.Cleanup(func() { mr.SetError("") })

	_, err := s.Incr(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type flakyCounter struct {
	fail  atomic.Bool
	calls atomic.Int64
}

func (f *flakyCounter) Incr(context.Context, string) (int64, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return 0, ErrUnavailable
	}
	return 1, nil
}

func (f *flakyCounter) Expire(context.Context, string, time.Duration) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return ErrUnavailable
	}
	return nil
}

func (f *flakyCounter) Get(context.Context, string) (int64, bool, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return 0, false, ErrUnavailable
	}
	return 3, true, nil
}

func (f *flakyCounter) Ping(context.Context) error {
	if f.fail.Load() {
		return ErrUnavailable
	}
	return nil
}

func (f *flakyCounter) Close() error { return nil }

func TestBreakerOpensAndFailsFast(t *testing.T) {
	next := &flakyCounter{}
	b := NewBreaker(next, BreakerConfig{
		MinRequests:  4,
		FailureRatio: 0.5,
		OpenTimeout:  time.Hour,
	}, zaptest.NewLogger(t))
	ctx := context.Background()

	v, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 3, v)

	next.fail.Store(true)
	for i := 0; i < 4; i++ {
		_, err := b.Incr(ctx, "k")
		require.ErrorIs(t, err, ErrUnavailable)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	before := next.calls.Load()
	_, err = b.Incr(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, b.Expire(ctx, "k", time.Second), ErrUnavailable)
	assert.Equal(t, before, next.calls.Load(), "open breaker must not reach the store")

	assert.ErrorIs(t, b.Ping(ctx), ErrUnavailable)
	next.fail.Store(false)
	assert.NoError(t, b.Ping(ctx), "ping bypasses the breaker")
}

func TestBreakerPassesThroughValues(t *testing.T) {
	s, _ := newTestRedis(t)
	b := NewBreaker(s, DefaultBreakerConfig(), nil)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := b.Incr(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	require.NoError(t, b.Expire(ctx, "k", time.Minute))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestConnectSucceeds(t *testing.T) {
	s, _ := newTestRedis(t)
	err := Connect(context.Background(), s, DefaultConnectConfig(), zaptest.NewLogger(t))
	assert.NoError(t, err)
}

func TestConnectGivesUp(t *testing.T) {
	next := &flakyCounter{}
	next.fail.Store(true)

	err := Connect(context.Background(), next, ConnectConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      20 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
