// Package mockstore provides an in-memory storage.Store for tests.
//
// MockStore keeps blobs in a map. Each method can be overridden by setting
// the corresponding function field, which lets tests inject failures.
package mockstore

import (
	"context"
	"sync"

	"github.com/sipico/alias-relay/internal/storage"
)

// MockStore is a configurable in-memory storage.Store.
type MockStore struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte) error
	DeleteFunc func(ctx context.Context, key string) error
	UpdateFunc func(ctx context.Context, key string, fn storage.UpdateFunc) error

	mu    sync.Mutex
	blobs map[string][]byte
}

// New creates an empty MockStore.
func New() *MockStore {
	return &MockStore{blobs: make(map[string][]byte)}
}

// Get returns a copy of the blob or storage.ErrNotFound.
func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes the blob.
func (m *MockStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Update runs fn while holding the store lock.
func (m *MockStore) Update(ctx context.Context, key string, fn storage.UpdateFunc) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, key, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	var current []byte
	if v, ok := m.blobs[key]; ok {
		current = append([]byte(nil), v...)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.blobs, key)
		return nil
	}
	m.blobs[key] = append([]byte(nil), next...)
	return nil
}

// Keys returns the names of the stored blobs.
func (m *MockStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	return keys
}

func (m *MockStore) init() {
	if m.blobs == nil {
		m.blobs = make(map[string][]byte)
	}
}
