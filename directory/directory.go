package directory

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no client owns a digest.
	ErrNotFound = errors.New("client not found")
	// ErrClientExists is returned when registering a digest that is already taken.
	ErrClientExists = errors.New("client already exists")
	// ErrInvalidClient is returned when a client record fails validation.
	ErrInvalidClient = errors.New("invalid client")
	// ErrUnavailable is returned when the backing store cannot answer.
	ErrUnavailable = errors.New("client directory unavailable")
)

// Client is a registered API client as seen by the gate.
type Client struct {
	ID               string    `json:"id" yaml:"id"`
	Name             string    `json:"name" yaml:"name"`
	CredentialDigest string    `json:"-" yaml:"digest"`
	QuotaPerMinute   int       `json:"requestsPerMinute" yaml:"requestsPerMinute"`
	CreatedAt        time.Time `json:"createdAt" yaml:"createdAt"`
}

// Validate checks the invariants every stored client must satisfy.
func (c Client) Validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return errors.Join(ErrInvalidClient, errors.New("name is blank"))
	case c.CredentialDigest == "":
		return errors.Join(ErrInvalidClient, errors.New("digest is empty"))
	case c.QuotaPerMinute <= 0:
		return errors.Join(ErrInvalidClient, errors.New("quota must be positive"))
	}
	return nil
}

// Directory looks up clients by digest.
type Directory interface {
	LookupByDigest(ctx context.Context, digest string) (Client, error)
}

// Registrar persists newly registered clients.
type Registrar interface {
	Create(ctx context.Context, client Client) error
}

// Store is a [Directory] that also accepts registrations.
type Store interface {
	Directory
	Registrar
}
