// Package storage persists the daemon's named blobs (settings, domain cache,
// license state) in a small key/value table.
package storage

import (
	"context"
)

// Blob names used by the daemon.
const (
	KeySettings    = "multiProviderSettings"
	KeyDomainCache = "domainCache"
	KeyLicense     = "license"
)

// UpdateFunc receives the current value of a blob (nil when absent) and
// returns the value to store. Returning a nil slice deletes the blob.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is an asynchronous-safe key/value capability over named blobs.
type Store interface {
	// Get returns the blob or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Update performs an atomic read-modify-write of one blob.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}
