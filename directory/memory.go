package directory

import (
	"context"
	"sync"
)

// Memory is an in-process [Store].
type Memory struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewMemory returns a Memory directory holding clients.
func NewMemory(clients ...Client) (*Memory, error) {
	m := &Memory{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		if err := m.Create(context.Background(), c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LookupByDigest implements [Directory].
func (m *Memory) LookupByDigest(_ context.Context, digest string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[digest]
	if !ok {
		return Client{}, ErrNotFound
	}
	return c, nil
}

// Create implements [Registrar].
func (m *Memory) Create(_ context.Context, c Client) error {
	if err := c.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[c.CredentialDigest]; exists {
		return ErrClientExists
	}
	m.clients[c.CredentialDigest] = c
	return nil
}

// Len returns the number of registered clients.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

var _ Store = (*Memory)(nil)
