package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/screening-console/internal/persistence/memory"
	"github.com/example/screening-console/internal/persistence/sqlite"
)

// NewMemoryStore returns an empty in-memory store with ids "doc-1", "doc-2", ...
func NewMemoryStore() *memory.Store {
	return memory.NewStore(NewIDGenerator("doc").Next)
}

// NewSQLiteStore opens a migrated SQLite store in a temporary directory. The
// store is closed when the test finishes.
func NewSQLiteStore(tb testing.TB) *sqlite.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "console.db")
	store, err := sqlite.Open(sqlite.DefaultConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}
