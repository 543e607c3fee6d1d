// Package store provides whole-blob key/value persistence for the device.
// Records are always read and written in full; a failed Put leaves the
// previous value in place.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("store: record not found")

// Store reads, writes and erases opaque blobs by key.
type Store interface {
	// Get returns a copy of the blob stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Put replaces the blob stored under key.
	Put(key string, value []byte) error
	// Erase removes key. Erasing a missing key is not an error.
	Erase(key string) error
	// Close releases backend resources.
	Close() error
}

// Open creates a store from a location of the form "file:<dir>",
// "sqlite:<path>" or "mem:". A bare path is treated as a file store directory.
func Open(location string) (Store, error) {
	scheme, path, ok := strings.Cut(location, ":")
	if !ok {
		return NewFileStore(location)
	}
	switch scheme {
	case "file":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	case "mem":
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", scheme)
	}
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\.`) {
		return fmt.Errorf("store: invalid key %q", key)
	}
	return nil
}
