package store

import (
	"context"
	"fmt"
	"sync"
)

// MemorySecretStore is a SecretStore which doesn't persist beyond the
// process.
type MemorySecretStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ SecretStore = (*MemorySecretStore)(nil)

// NewMemorySecretStore creates an empty MemorySecretStore.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{data: map[string][]byte{}}
}

// Get returns a copy of the data stored for id or ErrNotFound.
func (s *MemorySecretStore) Get(_ context.Context, id string) ([]byte, error) {
	const op = "store.(MemorySecretStore).Get"
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", op, id, ErrNotFound)
	}
	return append([]byte(nil), b...), nil
}

// Put stores a copy of data for id.
func (s *MemorySecretStore) Put(_ context.Context, data []byte, id string) error {
	const op = "store.(MemorySecretStore).Put"
	if id == "" {
		return fmt.Errorf("%s: id is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = append([]byte(nil), data...)
	return nil
}

// Delete removes the data stored for id.
func (s *MemorySecretStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// Len returns the number of stored identifiers.
func (s *MemorySecretStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
