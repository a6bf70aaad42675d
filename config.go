package keygate

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config is the complete gateway configuration. Build a value with
// [DefaultConfig] and override fields; [Builder.Build] validates it.
type Config struct {
	// HeaderName is the request header carrying the raw API key.
	HeaderName string
	// Window is the fixed counting window. Must be a whole number of seconds.
	Window time.Duration
	// KeyTTL is the expiry set on a window counter at its first increment.
	// It must outlive Window so a counter never vanishes mid-window.
	KeyTTL time.Duration
	// KeyPrefix is prepended to every store key, e.g. "prod:".
	KeyPrefix string
	// StoreTimeout bounds every counting-store and directory call.
	StoreTimeout time.Duration
	// BypassPrefixes lists path prefixes that skip the gate entirely.
	BypassPrefixes []string

	Registration RegistrationConfig
	Breaker      BreakerConfig
	Metrics      MetricsConfig
	Audit        AuditConfig
}

// RegistrationConfig bounds what RegisterClient accepts.
type RegistrationConfig struct {
	MaxNameLength int
	MinQuota      int
	MaxQuota      int
}

// BreakerConfig controls the optional circuit breaker around the counting
// store. An open breaker fails requests fast; they are still rejected.
type BreakerConfig struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	Interval         time.Duration
	HalfOpenRequests uint32
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the stock configuration: X-API-KEY header, 60 s
// window, 70 s counter TTL, 250 ms store timeout.
func DefaultConfig() Config {
	return Config{
		HeaderName:   "X-API-KEY",
		Window:       60 * time.Second,
		KeyTTL:       70 * time.Second,
		StoreTimeout: 250 * time.Millisecond,
		BypassPrefixes: []string{
			"/clients",
			"/public",
			"/actuator",
			"/healthz",
			"/metrics",
		},
		Registration: RegistrationConfig{
			MaxNameLength: 100,
			MinQuota:      1,
			MaxQuota:      300,
		},
		Breaker: BreakerConfig{
			Enabled:          false,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      5 * time.Second,
			Interval:         10 * time.Second,
			HalfOpenRequests: 1,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.BypassPrefixes = slices.Clone(cfg.BypassPrefixes)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first structural problem in c, wrapped in
// [ErrInvalidConfig].
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HeaderName) == "" {
		return invalidConfig("HeaderName must not be blank")
	}

	if c.Window < time.Second {
		return invalidConfig("Window must be >= 1s")
	}
	if c.Window%time.Second != 0 {
		return invalidConfig("Window must be a whole number of seconds")
	}
	if c.KeyTTL <= c.Window {
		return invalidConfig("KeyTTL must be > Window")
	}

	if c.StoreTimeout <= 0 {
		return invalidConfig("StoreTimeout must be > 0")
	}

	for _, p := range c.BypassPrefixes {
		if !strings.HasPrefix(p, "/") {
			return invalidConfig("BypassPrefixes entries must start with '/', got %q", p)
		}
	}

	if c.Registration.MaxNameLength <= 0 {
		return invalidConfig("Registration MaxNameLength must be > 0")
	}
	if c.Registration.MinQuota < 1 {
		return invalidConfig("Registration MinQuota must be >= 1")
	}
	if c.Registration.MaxQuota < c.Registration.MinQuota {
		return invalidConfig("Registration MaxQuota must be >= MinQuota")
	}

	if c.Breaker.Enabled {
		if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
			return invalidConfig("Breaker FailureRatio must be in (0,1]")
		}
		if c.Breaker.OpenTimeout <= 0 {
			return invalidConfig("Breaker OpenTimeout must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalidConfig("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

/*
====================================
LINT
====================================
*/

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the ordered list of warnings produced by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint flags settings that pass Validate but weaken the gate. Callers
// usually log the result at startup.
func (c *Config) Lint() LintResult {
	var ws LintResult

	for _, p := range c.BypassPrefixes {
		if p == "/" {
			ws = append(ws, LintWarning{
				Code:    "bypass_everything",
				Message: "bypass prefix \"/\" disables the gate for every path",
			})
			break
		}
	}
	if c.StoreTimeout > time.Second {
		ws = append(ws, LintWarning{
			Code:    "store_timeout_long",
			Message: "store timeout above 1s lets a slow store stall every request",
		})
	}
	if c.KeyTTL > 2*c.Window {
		ws = append(ws, LintWarning{
			Code:    "key_ttl_long",
			Message: "counter TTL well past the window keeps stale keys in the store",
		})
	}
	if !c.Audit.Enabled {
		ws = append(ws, LintWarning{
			Code:    "audit_disabled",
			Message: "audit events are not emitted",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_blocking",
			Message: "a slow audit sink will add latency to gated requests",
		})
	}

	return ws
}
