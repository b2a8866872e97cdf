package pebblestore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatsync/internal/store"
)

func TestSetGetDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Get("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := db.Set("k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := db.Set("k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, err := db.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("Get(k) = %q, want v2", got)
	}
	if err := db.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Get("k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Set("chat-history:v1", []byte("[]")); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	got, err := db.Get("chat-history:v1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[]" {
		t.Errorf("value = %q, want []", got)
	}
}
