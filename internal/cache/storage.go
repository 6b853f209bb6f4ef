package cache

import (
	"context"
	"sync"
)

// Storage is a durable string key/value store.
type Storage interface {
	// Get returns the value stored under key; ok is false when absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
}

// MemoryStorage is an in-process Storage for tests and for running without
// a database.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]string

	// Writes counts successful Set calls.
	Writes int

	// GetError, if set, will be returned by Get.
	GetError error

	// SetError, if set, will be returned by Set.
	SetError error
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

// Get returns the stored value.
func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return "", false, m.GetError
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set records the value.
func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetError != nil {
		return m.SetError
	}
	m.data[key] = value
	m.Writes++
	return nil
}
