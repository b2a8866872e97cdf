// Package pebblestore implements store.KV on a Pebble database directory.
package pebblestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
	"github.com/matheus3301/chatsync/internal/store"
)

// DB is a Pebble-backed store.KV.
type DB struct {
	db *pebble.DB
}

var _ store.KV = (*DB)(nil)

// Open opens or creates the Pebble database at dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create pebble dir: %w", err)
	}
	pdb, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &DB{db: pdb}, nil
}

// Get returns a copy of the value under key, or store.ErrNotFound.
func (d *DB) Get(key string) ([]byte, error) {
	data, closer, err := d.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	defer closer.Close()
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (d *DB) Set(key string, val []byte) error {
	if err := d.db.Set([]byte(key), val, pebble.Sync); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (d *DB) Delete(key string) error {
	if err := d.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
