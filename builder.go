package keygate

import (
	"errors"
	"time"

	"github.com/MrEthical07/keygate/directory"
	internalaudit "github.com/MrEthical07/keygate/internal/audit"
	internalmetrics "github.com/MrEthical07/keygate/internal/metrics"
	"github.com/MrEthical07/keygate/internal/rate"
	"github.com/MrEthical07/keygate/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a [Gateway]. A Builder is single use.
type Builder struct {
	config    Config
	counter   store.Counter
	redis     redis.UniversalClient
	directory directory.Directory
	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis uses client as the counting store. The store applies
// Config.StoreTimeout to every call. WithCounter takes precedence.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCounter uses an explicit counting store.
func (b *Builder) WithCounter(c store.Counter) *Builder {
	b.counter = c
	return b
}

// WithDirectory sets the client directory. When dir also implements
// [directory.Registrar], RegisterClient is enabled.
func (b *Builder) WithDirectory(dir directory.Directory) *Builder {
	b.directory = dir
	return b
}

// WithLogger sets the logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the sink behind the audit dispatcher. It is only used
// when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the gate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock replaces time.Now for window arithmetic and timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the gateway.
func (b *Builder) Build() (*Gateway, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	counter := b.counter
	if counter == nil {
		if b.redis == nil {
			return nil, errors.New("counting store required: use WithRedis or WithCounter")
		}
		counter = store.NewRedis(b.redis, cfg.StoreTimeout)
	}
	if b.directory == nil {
		return nil, errors.New("client directory required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("keygate")

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- COUNTING STORE --------
	if cfg.Breaker.Enabled {
		counter = store.NewBreaker(counter, store.BreakerConfig{
			MinRequests:      cfg.Breaker.MinRequests,
			FailureRatio:     cfg.Breaker.FailureRatio,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
			Interval:         cfg.Breaker.Interval,
			HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
		}, logger)
	}

	g := &Gateway{
		config:    cfg,
		counter:   counter,
		directory: b.directory,
		logger:    logger,
		now:       now,
	}
	if reg, ok := b.directory.(directory.Registrar); ok {
		g.registrar = reg
	}

	g.limiter = rate.New(counter, rate.Config{
		Window:    cfg.Window,
		KeyTTL:    cfg.KeyTTL,
		KeyPrefix: cfg.KeyPrefix,
	}, rate.WithClock(now))

	g.metrics = internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Metrics.Enabled,
		EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
	})

	g.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return g, nil
}
