package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/automata-agent/internal/infrastructure/database"
	"github.com/nerrad567/automata-agent/migrations"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "store.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteStore(db.DB)
}

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, KeyDeviceID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	if err := kv.Put(ctx, KeyDeviceID, "dev-123"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := kv.Put(ctx, KeyDeviceID, "dev-456"); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}

	got, err := kv.Get(ctx, KeyDeviceID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "dev-456" {
		t.Errorf("Get() = %q, want %q", got, "dev-456")
	}

	if err := kv.Delete(ctx, KeyDeviceID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := kv.Delete(ctx, KeyDeviceID); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
	if _, err := kv.Get(ctx, KeyDeviceID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	exerciseKV(t, openTestStore(t))
}

func TestMemory_RoundTrip(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestSQLiteStore_OpaqueValue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := `{"id":"dev-1","attributes":[{"key":"temp","units":"°C"}]}`
	if err := s.Put(ctx, KeyConfig, doc); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, KeyConfig)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != doc {
		t.Errorf("Get() = %q, want verbatim %q", got, doc)
	}
}
