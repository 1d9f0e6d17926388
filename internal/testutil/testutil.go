// Package testutil provides shared test helpers for stores and clients.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/store"
)

// TestStore opens a migrated SQLite store in a temp dir, closed on cleanup.
func TestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "voiceinvoice-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedClient inserts a client with a usable email and returns it.
func SeedClient(t *testing.T, db *store.DB, name, email string) models.Client {
	t.Helper()
	c, err := db.CreateClient(context.Background(), models.Client{
		Name:        name,
		Email:       email,
		RateType:    models.RateTypeDay,
		DefaultRate: 400,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}
