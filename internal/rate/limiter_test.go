package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/keygate/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, start time.Time) (*Limiter, *miniredis.Miniredis, *testClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: start}
	l := New(store.NewRedis(rdb, time.Second), Config{}, WithClock(clock.Now))
	return l, mr, clock
}

const digest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestTryAdmitStrictCeiling(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Unix(1_700_000_040, 0))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ok, count, err := l.TryAdmit(ctx, digest, 5)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
		assert.EqualValues(t, i, count)
	}

	ok, count, err := l.TryAdmit(ctx, digest, 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 6, count, "rejecting call reports its own increment")
}

func TestTryAdmitConcurrent(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	const limit = 25
	const callers = 80

	var admitted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			ok, _, err := l.TryAdmit(ctx, digest, limit)
			if err != nil {
				t.Errorf("TryAdmit: %v", err)
				return
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, limit, admitted.Load())
	used, err := l.CurrentUsage(ctx, digest)
	require.NoError(t, err)
	assert.EqualValues(t, callers, used)
}

func TestTryAdmitSetsExpiryOnFirstHit(t *testing.T) {
	l, mr, clock := newTestLimiter(t, time.Unix(1_700_000_010, 0))
	ctx := context.Background()

	_, _, err := l.TryAdmit(ctx, digest, 3)
	require.NoError(t, err)

	key := l.Key(digest, clock.Now())
	assert.Equal(t, "rl:"+digest+":1699999980", key)
	assert.Equal(t, 70*time.Second, mr.TTL(key))

	mr.FastForward(5 * time.Second)
	_, _, err = l.TryAdmit(ctx, digest, 3)
	require.NoError(t, err)
	assert.Equal(t, 65*time.Second, mr.TTL(key), "later hits must not extend the expiry")

	mr.FastForward(66 * time.Second)
	assert.False(t, mr.Exists(key))
}

func TestNewWindowStartsFresh(t *testing.T) {
	l, _, clock := newTestLimiter(t, time.Unix(1_700_000_050, 0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := l.TryAdmit(ctx, digest, 2)
		require.NoError(t, err)
	}
	ok, _, err := l.TryAdmit(ctx, digest, 2)
	require.NoError(t, err)
	require.False(t, ok)

	clock.Advance(60 * time.Second)

	ok, count, err := l.TryAdmit(ctx, digest, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, count)
}

func TestSameWindowSameKey(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Unix(0, 0))

	base := time.Unix(1_700_000_040, 0)
	start := l.WindowStart(base)
	assert.EqualValues(t, 1_700_000_040, start, "minute boundary starts its own window")
	assert.Equal(t, l.Key(digest, base), l.Key(digest, base.Add(59*time.Second+999*time.Millisecond)))
	assert.NotEqual(t, l.Key(digest, base), l.Key(digest, base.Add(60*time.Second)))
	assert.NotEqual(t, l.Key(digest, base), l.Key(digest, base.Add(-time.Second)))
	assert.NotEqual(t, l.Key(digest, base), l.Key("other", base))
}

func TestCurrentUsageDoesNotConsume(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	used, err := l.CurrentUsage(ctx, digest)
	require.NoError(t, err)
	assert.Zero(t, used)

	for i := 0; i < 10; i++ {
		_, err := l.CurrentUsage(ctx, digest)
		require.NoError(t, err)
	}

	ok, count, err := l.TryAdmit(ctx, digest, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, count)

	used, err = l.CurrentUsage(ctx, digest)
	require.NoError(t, err)
	assert.EqualValues(t, 1, used)
}

func TestSecondsUntilResetRange(t *testing.T) {
	clock := &testClock{}
	l := New(nil, Config{}, WithClock(clock.Now))

	for sec := int64(1_700_000_000); sec < 1_700_000_000+180; sec++ {
		clock.now = time.Unix(sec, 0)
		got := l.SecondsUntilReset()
		require.GreaterOrEqual(t, got, 1, "at %d", sec)
		require.LessOrEqual(t, got, 60, "at %d", sec)
	}

	clock.now = time.Unix(1_700_000_050, 0)
	assert.Equal(t, 50, l.SecondsUntilReset())

	clock.now = time.Unix(1_699_999_980, 0)
	assert.Equal(t, 60, l.SecondsUntilReset(), "boundary maps to a full window")
}

func TestTryAdmitAtCountsWindowOfGivenInstant(t *testing.T) {
	// The clock has already crossed into the next window; the instant passed
	// in still decides both the counted key and the reset.
	l, mr, _ := newTestLimiter(t, time.Unix(1_700_000_100, 0))
	ctx := context.Background()
	at := time.Unix(1_700_000_099, 0)

	ok, count, err := l.TryAdmitAt(ctx, digest, 5, at)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, count)

	assert.True(t, mr.Exists("rl:"+digest+":1700000040"))
	assert.False(t, mr.Exists("rl:"+digest+":1700000100"))
	assert.Equal(t, 1, l.SecondsUntilResetAt(at))
	assert.Equal(t, 60, l.SecondsUntilReset())

	used, err := l.CurrentUsageAt(ctx, digest, at)
	require.NoError(t, err)
	assert.EqualValues(t, 1, used)

	used, err = l.CurrentUsage(ctx, digest)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestTryAdmitRejectsInvalidLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t, time.Unix(1_700_000_000, 0))
	_, _, err := l.TryAdmit(context.Background(), digest, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestTryAdmitFailsClosedWhenStoreDown(t *testing.T) {
	l, mr, _ := newTestLimiter(t, time.Unix(1_700_000_000, 0))
	mr.Close()

	ok, _, err := l.TryAdmit(context.Background(), digest, 100)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	_, err = l.CurrentUsage(context.Background(), digest)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

type expireFailingCounter struct {
	store.Counter
}

func (expireFailingCounter) Expire(context.Context, string, time.Duration) error {
	return errors.New("expire timed out")
}

func TestTryAdmitFailsClosedWhenExpiryCannotBeSet(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := New(expireFailingCounter{Counter: store.NewRedis(rdb, time.Second)}, Config{})
	ok, _, err := l.TryAdmit(context.Background(), digest, 10)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestKeyPrefix(t *testing.T) {
	l := New(nil, Config{KeyPrefix: "kg:"}, WithClock(func() time.Time { return time.Unix(120, 0) }))
	assert.Equal(t, "kg:rl:abc:120", l.Key("abc", time.Unix(179, 0)))
	assert.Equal(t, DefaultWindow, l.Window())
}
