// Package keystore provides secure string storage addressed by (service, account), the
// client-side equivalent of a platform keychain.
package keystore

import (
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned by Get when no entry exists for (service, account).
	ErrNotFound = errors.New("keystore: item not found")
	// ErrLocked is returned when the store cannot be opened with the given passphrase or was tampered with.
	ErrLocked = errors.New("keystore: cannot unlock store")
)

// Keystore stores secret strings. Delete of a missing entry is a no-op.
type Keystore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

// MemoryKeystore is an in-memory Keystore implementation for tests and ephemeral sessions.
type MemoryKeystore struct {
	mu sync.RWMutex
	m  map[string]map[string]string
}

// NewMemoryKeystore returns an empty in-memory keystore.
func NewMemoryKeystore() *MemoryKeystore {
	return &MemoryKeystore{m: make(map[string]map[string]string)}
}

// Get returns the value for (service, account) or ErrNotFound.
func (s *MemoryKeystore) Get(service, account string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[service][account]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value, replacing any existing entry.
func (s *MemoryKeystore) Set(service, account, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m[service] == nil {
		s.m[service] = make(map[string]string)
	}
	s.m[service][account] = value
	return nil
}

// Delete removes the entry if present.
func (s *MemoryKeystore) Delete(service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m[service], account)
	if len(s.m[service]) == 0 {
		delete(s.m, service)
	}
	return nil
}
