package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
	if result.Dirty {
		t.Error("migration left the schema dirty")
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); !errors.Is(err, ErrDirtySchema) {
		t.Errorf("Migrate() error = %v, want ErrDirtySchema", err)
	}
}

// kvContract runs the behavior every backend must share.
func kvContract(t *testing.T, kv KV) {
	t.Helper()

	if _, err := kv.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := kv.Set("k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set("k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, err := kv.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("Get(k) = %q, want v2", got)
	}

	got[0] = 'X'
	again, _ := kv.Get("k")
	if string(again) != "v2" {
		t.Errorf("mutating a returned value changed the store: %q", again)
	}

	if err := kv.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if err := kv.Delete("k"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, err := kv.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteKV(t *testing.T) {
	kvContract(t, testDB(t))
}

func TestMemoryKV(t *testing.T) {
	kvContract(t, NewMemory())
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	if err := db.Set("chat-history:v1", []byte(`[{"content":"hi"}]`)); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	got, err := db.Get("chat-history:v1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `[{"content":"hi"}]` {
		t.Errorf("value = %s", got)
	}
}

func TestValidateBackend(t *testing.T) {
	for _, name := range []string{BackendSQLite, BackendPebble, BackendMemory} {
		if err := ValidateBackend(name); err != nil {
			t.Errorf("ValidateBackend(%q) = %v", name, err)
		}
	}
	if err := ValidateBackend("redis"); err == nil {
		t.Error("ValidateBackend(redis) expected error")
	}
}
