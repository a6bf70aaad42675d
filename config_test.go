package keygate

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.HeaderName != "X-API-KEY" || cfg.Window != time.Minute || cfg.KeyTTL != 70*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "blank header", mutate: func(c *Config) { c.HeaderName = " " }},
		{name: "sub-second window", mutate: func(c *Config) { c.Window = 500 * time.Millisecond }},
		{name: "fractional window", mutate: func(c *Config) { c.Window = 1500 * time.Millisecond; c.KeyTTL = time.Minute }},
		{name: "ttl equals window", mutate: func(c *Config) { c.KeyTTL = c.Window }},
		{name: "zero store timeout", mutate: func(c *Config) { c.StoreTimeout = 0 }},
		{name: "relative bypass prefix", mutate: func(c *Config) { c.BypassPrefixes = []string{"public"} }},
		{name: "empty bypass list", mutate: func(c *Config) { c.BypassPrefixes = nil }, wantValid: true},
		{name: "zero name length", mutate: func(c *Config) { c.Registration.MaxNameLength = 0 }},
		{name: "zero min quota", mutate: func(c *Config) { c.Registration.MinQuota = 0 }},
		{name: "max below min", mutate: func(c *Config) { c.Registration.MaxQuota = 0 }},
		{name: "breaker bad ratio", mutate: func(c *Config) { c.Breaker.Enabled = true; c.Breaker.FailureRatio = 1.5 }},
		{name: "breaker disabled bad ratio", mutate: func(c *Config) { c.Breaker.FailureRatio = 1.5 }, wantValid: true},
		{name: "audit zero buffer", mutate: func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
		{name: "two minute window", mutate: func(c *Config) { c.Window = 2 * time.Minute; c.KeyTTL = 130 * time.Second }, wantValid: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestCloneConfigCopiesBypassPrefixes(t *testing.T) {
	cfg := DefaultConfig()
	clone := cloneConfig(cfg)
	clone.BypassPrefixes[0] = "/mutated"

	if cfg.BypassPrefixes[0] != "/clients" {
		t.Fatal("clone shares BypassPrefixes backing array")
	}
}

func TestLint(t *testing.T) {
	cfg := DefaultConfig()
	if codes := cfg.Lint().Codes(); !slices.Equal(codes, []string{"audit_disabled"}) {
		t.Fatalf("unexpected default lint codes %v", codes)
	}

	cfg.BypassPrefixes = append(cfg.BypassPrefixes, "/")
	cfg.StoreTimeout = 2 * time.Second
	cfg.KeyTTL = 5 * time.Minute
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	want := []string{"bypass_everything", "store_timeout_long", "key_ttl_long", "audit_blocking"}
	if codes := cfg.Lint().Codes(); !slices.Equal(codes, want) {
		t.Fatalf("lint codes = %v, want %v", codes, want)
	}
}
