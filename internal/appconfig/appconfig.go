// Package appconfig loads server configuration for cmd/keygate from an
// optional YAML file and KEYGATE_* environment variables.
//
// Every key has a default, so environment variables override file values
// even for keys the file omits. Nested keys map to env names by replacing
// "." with "_": redis.addr is KEYGATE_REDIS_ADDR.
package appconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/keygate"
	"github.com/MrEthical07/keygate/internal/logging"
)

const EnvPrefix = "KEYGATE"

const (
	DirectoryRedis  = "redis"
	DirectoryMemory = "memory"
)

var ErrInvalid = errors.New("appconfig: invalid configuration")

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// ConnectMaxElapsed bounds the startup ping retry loop.
	ConnectMaxElapsed time.Duration `mapstructure:"connect_max_elapsed"`
}

type DirectoryConfig struct {
	Backend  string `mapstructure:"backend"`
	SeedFile string `mapstructure:"seed_file"`
}

type GateConfig struct {
	HeaderName     string        `mapstructure:"header_name"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	StoreTimeout   time.Duration `mapstructure:"store_timeout"`
	BypassPrefixes []string      `mapstructure:"bypass_prefixes"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MinRequests      uint32        `mapstructure:"min_requests"`
	FailureRatio     float64       `mapstructure:"failure_ratio"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	Interval         time.Duration `mapstructure:"interval"`
	HalfOpenRequests uint32        `mapstructure:"half_open_requests"`
}

type MetricsConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	LatencyHistograms bool `mapstructure:"latency_histograms"`
}

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// Config is the full server configuration.
type Config struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`

	Redis     RedisConfig     `mapstructure:"redis"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Gate      GateConfig      `mapstructure:"gate"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       logging.Config  `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	gw := keygate.DefaultConfig()
	lg := logging.DefaultConfig()

	v.SetDefault("listen", ":8080")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("max_body_bytes", int64(1<<20))

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.connect_max_elapsed", 30*time.Second)

	v.SetDefault("directory.backend", DirectoryRedis)
	v.SetDefault("directory.seed_file", "")

	v.SetDefault("gate.header_name", gw.HeaderName)
	v.SetDefault("gate.key_prefix", gw.KeyPrefix)
	v.SetDefault("gate.store_timeout", gw.StoreTimeout)
	v.SetDefault("gate.bypass_prefixes", gw.BypassPrefixes)

	v.SetDefault("breaker.enabled", gw.Breaker.Enabled)
	v.SetDefault("breaker.min_requests", gw.Breaker.MinRequests)
	v.SetDefault("breaker.failure_ratio", gw.Breaker.FailureRatio)
	v.SetDefault("breaker.open_timeout", gw.Breaker.OpenTimeout)
	v.SetDefault("breaker.interval", gw.Breaker.Interval)
	v.SetDefault("breaker.half_open_requests", gw.Breaker.HalfOpenRequests)

	v.SetDefault("metrics.enabled", gw.Metrics.Enabled)
	v.SetDefault("metrics.latency_histograms", gw.Metrics.EnableLatencyHistograms)

	v.SetDefault("audit.enabled", gw.Audit.Enabled)
	v.SetDefault("audit.buffer_size", gw.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", gw.Audit.DropIfFull)

	v.SetDefault("log.level", lg.Level)
	v.SetDefault("log.format", lg.Format)
	v.SetDefault("log.output", lg.Output)
	v.SetDefault("log.file_path", lg.FilePath)
	v.SetDefault("log.rotation.max_size_mb", lg.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", lg.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", lg.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", lg.Rotation.Compress)
}

// New returns a viper instance with defaults and env binding installed.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (optional, YAML) and the environment into a Config.
func Load(path string) (Config, error) {
	return LoadWith(New(), path)
}

// LoadWith is Load on a caller-supplied viper, e.g. one with bound flags.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("appconfig: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("appconfig: decode: %w", err)
	}
	cfg.Directory.Backend = strings.ToLower(strings.TrimSpace(cfg.Directory.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks server-level fields. Gate fields are validated by
// keygate.Config.Validate when the gateway is built.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("%w: listen must not be empty", ErrInvalid)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be > 0", ErrInvalid)
	}
	switch c.Directory.Backend {
	case DirectoryRedis, DirectoryMemory:
	default:
		return fmt.Errorf("%w: directory.backend must be %q or %q, got %q",
			ErrInvalid, DirectoryRedis, DirectoryMemory, c.Directory.Backend)
	}
	if c.Redis.ConnectMaxElapsed < 0 {
		return fmt.Errorf("%w: redis.connect_max_elapsed must be >= 0", ErrInvalid)
	}
	return nil
}

// Gateway maps the gate-related sections onto a keygate.Config. Fields
// without a server setting keep their keygate defaults.
func (c Config) Gateway() keygate.Config {
	cfg := keygate.DefaultConfig()
	cfg.HeaderName = c.Gate.HeaderName
	cfg.KeyPrefix = c.Gate.KeyPrefix
	cfg.StoreTimeout = c.Gate.StoreTimeout
	cfg.BypassPrefixes = append([]string(nil), c.Gate.BypassPrefixes...)
	cfg.Breaker = keygate.BreakerConfig{
		Enabled:          c.Breaker.Enabled,
		MinRequests:      c.Breaker.MinRequests,
		FailureRatio:     c.Breaker.FailureRatio,
		OpenTimeout:      c.Breaker.OpenTimeout,
		Interval:         c.Breaker.Interval,
		HalfOpenRequests: c.Breaker.HalfOpenRequests,
	}
	cfg.Metrics = keygate.MetricsConfig{
		Enabled:                 c.Metrics.Enabled,
		EnableLatencyHistograms: c.Metrics.LatencyHistograms,
	}
	cfg.Audit = keygate.AuditConfig{
		Enabled:    c.Audit.Enabled,
		BufferSize: c.Audit.BufferSize,
		DropIfFull: c.Audit.DropIfFull,
	}
	return cfg
}
