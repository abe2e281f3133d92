// Package storetest opens a migrated temp-file SQLite store for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"cultivation-core/store"
)

// New returns a fresh store backed by a SQLite file under t.TempDir().
func New(t testing.TB) *store.Store {
	t.Helper()

	db, err := store.Open("sqlite", filepath.Join(t.TempDir(), "cultivation.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store.New(db)
}
