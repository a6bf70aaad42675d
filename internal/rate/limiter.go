package rate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/keygate/store"
)

const (
	// DefaultWindow is the fixed counting window.
	DefaultWindow = 60 * time.Second
	// DefaultKeyTTL is the store-level expiry of a window counter.
	DefaultKeyTTL = 70 * time.Second
)

// Config holds limiter tuning parameters.
type Config struct {
	Window    time.Duration
	KeyTTL    time.Duration
	KeyPrefix string
}

// Limiter counts requests per digest per fixed window in a shared store.
type Limiter struct {
	store  store.Counter
	config Config
	now    func() time.Time
}

// Option customizes a [Limiter].
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a [Limiter] backed by counter.
func New(counter store.Counter, cfg Config, opts ...Option) *Limiter {
	if cfg.Window < time.Second {
		cfg.Window = DefaultWindow
	}
	if cfg.KeyTTL <= cfg.Window {
		cfg.KeyTTL = cfg.Window + DefaultKeyTTL - DefaultWindow
	}

	l := &Limiter{
		store:  counter,
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.config.Window
}

// TryAdmit consumes one unit of quota for digest and reports whether the
// request fits under limit. count is the post-increment value, including
// this request, so a rejected call reports a count above limit.
func (l *Limiter) TryAdmit(ctx context.Context, digest string, limit int) (bool, int64, error) {
	return l.TryAdmitAt(ctx, digest, limit, l.now())
}

// TryAdmitAt is [Limiter.TryAdmit] counted in the window containing t.
// Pair it with [Limiter.SecondsUntilResetAt] for the same t so the reset
// describes the window that was counted.
func (l *Limiter) TryAdmitAt(ctx context.Context, digest string, limit int, t time.Time) (bool, int64, error) {
	if limit <= 0 {
		return false, 0, ErrInvalidLimit
	}

	key := l.Key(digest, t)
	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.store.Expire(ctx, key, l.config.KeyTTL); err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return count <= int64(limit), count, nil
}

// CurrentUsage returns the count for digest in the current window without
// incrementing it. Missing keys read as zero.
func (l *Limiter) CurrentUsage(ctx context.Context, digest string) (int64, error) {
	return l.CurrentUsageAt(ctx, digest, l.now())
}

// CurrentUsageAt reads the count in the window containing t.
func (l *Limiter) CurrentUsageAt(ctx context.Context, digest string, t time.Time) (int64, error) {
	count, found, err := l.store.Get(ctx, l.Key(digest, t))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !found {
		return 0, nil
	}
	return count, nil
}

// SecondsUntilReset returns the whole seconds left in the current window,
// always in [1, window].
func (l *Limiter) SecondsUntilReset() int {
	return l.SecondsUntilResetAt(l.now())
}

// SecondsUntilResetAt returns the seconds from t to the end of its window.
func (l *Limiter) SecondsUntilResetAt(t time.Time) int {
	window := int64(l.config.Window / time.Second)
	left := window - (t.Unix()-l.WindowStart(t))
	if left <= 0 || left > window {
		return int(window)
	}
	return int(left)
}

// WindowStart returns the Unix second at which t's window began.
func (l *Limiter) WindowStart(t time.Time) int64 {
	window := int64(l.config.Window / time.Second)
	sec := t.Unix()
	start := sec - sec%window
	if sec < 0 && sec%window != 0 {
		start -= window
	}
	return start
}

// Key returns the store key for digest at time t.
func (l *Limiter) Key(digest string, t time.Time) string {
	var b strings.Builder
	b.Grow(len(l.config.KeyPrefix) + 3 + len(digest) + 1 + 10)
	b.WriteString(l.config.KeyPrefix)
	b.WriteString("rl:")
	b.WriteString(digest)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(l.WindowStart(t), 10))
	return b.String()
}
