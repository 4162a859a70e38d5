package catalog

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/skyfit/internal/astrom"
)

// setupTestDB creates a migrated sqlite database in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("Second MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("expected clean migration state")
	}
	if version != 2 {
		t.Errorf("expected migration version 2, got %d", version)
	}
}

func TestMigrateDownRollsBackOneVersion(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected migration version 1 after rollback, got %d", version)
	}
}

func TestStarStoreInsertAndCount(t *testing.T) {
	db := setupTestDB(t)
	store := NewStarStore(db.DB)

	stars := []astrom.CatalogStar{
		{ID: 1, RA: 36.9, Dec: -4.9, Mag: 12.0},
		{ID: 2, RA: 37.0, Dec: -5.0, Mag: 14.5},
	}
	if err := store.InsertStars(stars); err != nil {
		t.Fatalf("InsertStars failed: %v", err)
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 stars, got %d", n)
	}

	// Re-inserting the same ids replaces rather than duplicates.
	if err := store.InsertStars(stars[:1]); err != nil {
		t.Fatalf("InsertStars replace failed: %v", err)
	}
	n, _ = store.Count()
	if n != 2 {
		t.Errorf("expected 2 stars after replace, got %d", n)
	}
}

func TestFetchNearbyCutsOnSeparation(t *testing.T) {
	db := setupTestDB(t)
	store := NewStarStore(db.DB)

	// Stars 1 and 2 sit within 60" of the center; star 3 is 120" north
	// and star 4 degrees away.
	err := store.InsertStars([]astrom.CatalogStar{
		{ID: 1, RA: 36.9, Dec: -4.9, Mag: 12.0},
		{ID: 2, RA: 36.9 + 30.0/3600.0, Dec: -4.9, Mag: 13.0},
		{ID: 3, RA: 36.9, Dec: -4.9 + 120.0/3600.0, Mag: 11.0},
		{ID: 4, RA: 40.0, Dec: -4.9, Mag: 10.0},
	})
	if err != nil {
		t.Fatalf("InsertStars failed: %v", err)
	}

	stars, err := store.FetchNearby(36.9, -4.9, 60.0)
	if err != nil {
		t.Fatalf("FetchNearby failed: %v", err)
	}
	if len(stars) != 2 {
		t.Fatalf("expected 2 stars within 60 arcsec, got %d", len(stars))
	}
	// Brightest first.
	if stars[0].ID != 1 || stars[1].ID != 2 {
		t.Errorf("unexpected stars or order: %+v", stars)
	}
}

func TestFetchNearbyRAWraparound(t *testing.T) {
	db := setupTestDB(t)
	store := NewStarStore(db.DB)

	err := store.InsertStars([]astrom.CatalogStar{
		{ID: 1, RA: 359.99, Dec: 0.0, Mag: 12.0},
		{ID: 2, RA: 0.005, Dec: 0.0, Mag: 13.0},
		{ID: 3, RA: 1.0, Dec: 0.0, Mag: 10.0},
	})
	if err != nil {
		t.Fatalf("InsertStars failed: %v", err)
	}

	stars, err := store.FetchNearby(0.0, 0.0, 120.0)
	if err != nil {
		t.Fatalf("FetchNearby failed: %v", err)
	}
	if len(stars) != 2 {
		t.Fatalf("expected 2 stars across the RA seam, got %d: %+v", len(stars), stars)
	}
}

func TestFetchNearbyNearPole(t *testing.T) {
	db := setupTestDB(t)
	store := NewStarStore(db.DB)

	// At dec 89.99 stars 180 degrees apart in RA are only ~72 arcsec
	// apart on the sky.
	err := store.InsertStars([]astrom.CatalogStar{
		{ID: 1, RA: 10.0, Dec: 89.99, Mag: 12.0},
		{ID: 2, RA: 190.0, Dec: 89.99, Mag: 13.0},
		{ID: 3, RA: 10.0, Dec: 80.0, Mag: 10.0},
	})
	if err != nil {
		t.Fatalf("InsertStars failed: %v", err)
	}

	stars, err := store.FetchNearby(10.0, 89.99, 120.0)
	if err != nil {
		t.Fatalf("FetchNearby failed: %v", err)
	}
	if len(stars) != 2 {
		t.Fatalf("expected 2 stars near the pole, got %d: %+v", len(stars), stars)
	}
}

func TestFetchNearbyEmptyRegion(t *testing.T) {
	db := setupTestDB(t)
	store := NewStarStore(db.DB)

	stars, err := store.FetchNearby(180.0, 45.0, 3600.0)
	if err != nil {
		t.Fatalf("FetchNearby failed: %v", err)
	}
	if len(stars) != 0 {
		t.Errorf("expected no stars, got %d", len(stars))
	}
}
