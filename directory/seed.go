package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedClient is one entry of a seed file. Exactly one of APIKey or Digest
// must be set; raw keys are digested by the caller-supplied function before
// anything is stored.
type SeedClient struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	APIKey            string `yaml:"apiKey"`
	Digest            string `yaml:"digest"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

// SeedFile is the YAML layout accepted by [LoadSeedFile].
type SeedFile struct {
	Clients []SeedClient `yaml:"clients"`
}

// ParseSeed decodes a seed document into clients, digesting raw keys with digest.
func ParseSeed(data []byte, digest func(string) string) ([]Client, error) {
	var doc SeedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	now := time.Now().UTC()
	out := make([]Client, 0, len(doc.Clients))
	for i, sc := range doc.Clients {
		hasKey := strings.TrimSpace(sc.APIKey) != ""
		hasDigest := strings.TrimSpace(sc.Digest) != ""
		if hasKey == hasDigest {
			return nil, fmt.Errorf("seed client %d (%q): exactly one of apiKey or digest is required", i, sc.Name)
		}

		c := Client{
			ID:               sc.ID,
			Name:             sc.Name,
			CredentialDigest: strings.ToLower(strings.TrimSpace(sc.Digest)),
			QuotaPerMinute:   sc.RequestsPerMinute,
			CreatedAt:        now,
		}
		if hasKey {
			c.CredentialDigest = digest(sc.APIKey)
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("seed-%d", i+1)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("seed client %d (%q): %w", i, sc.Name, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// LoadSeedFile reads path and registers every client in reg. Clients that
// already exist are skipped, so seeding is idempotent.
func LoadSeedFile(ctx context.Context, path string, reg Registrar, digest func(string) string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	clients, err := ParseSeed(data, digest)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, c := range clients {
		err := reg.Create(ctx, c)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrClientExists):
		default:
			return created, fmt.Errorf("seed client %q: %w", c.Name, err)
		}
	}
	return created, nil
}
