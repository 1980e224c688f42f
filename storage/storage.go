// Package storage provides the key-value persistence layer backing the
// session registry and the manifest cache.
//
// The Store interface is deliberately small so the wallet application can
// plug its own persistence; FileStore and EncryptedStore cover the common
// cases of a plain and an encrypted-at-rest on-disk store.
package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrKeyNotFound is returned by Get for a missing key. A miss is an
// expected steady state for callers, not a hard failure.
var ErrKeyNotFound = errors.New("key not found")

// Store is a durable key-value store.
type Store interface {
	// Get returns the value for a key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Put writes a value, replacing any previous one.
	Put(key string, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys lists all stored keys with the given prefix, sorted.
	Keys(prefix string) ([]string, error)
}

// MemStore is an in-memory Store used by tests and as a write-through
// cache layer.
type MemStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string][]byte)}
}

// Get implements Store.
func (m *MemStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put implements Store.
func (m *MemStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

// Delete implements Store.
func (m *MemStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Keys implements Store.
func (m *MemStore) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports the number of stored keys.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
