// Package testing provides test helpers shared across the vault packages.
package testing

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/modules/persistence"
)

// NewTestDB creates a temp-file SQLite database with the vault schema of the
// default layout applied. The database is closed and removed when the test ends.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()
	return NewTestDBWithLayout(t, name, persistence.DefaultLayout())
}

// NewTestDBWithLayout is NewTestDB for a custom table layout
func NewTestDBWithLayout(t *testing.T, name string, layout persistence.Layout) *database.DB {
	t.Helper()

	db := NewEmptyTestDB(t, name)
	if err := db.Migrate(context.Background(), persistence.Schema(layout)); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db
}

// NewEmptyTestDB creates a temp-file SQLite database without any schema
func NewEmptyTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	// Temporary files keep every test isolated
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(tmpPath + suffix)
		}
	})
	return db
}
