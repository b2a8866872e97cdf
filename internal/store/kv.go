// Package store holds the key/value backends that persist chat history.
package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("store: key not found")

// Backend names accepted in the storage config field.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// KV is a string-keyed byte store.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte) error
	Delete(key string) error
	Close() error
}

// ValidateBackend reports whether name is a known backend.
func ValidateBackend(name string) error {
	switch name {
	case BackendSQLite, BackendPebble, BackendMemory:
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q (want sqlite, pebble or memory)", name)
	}
}
