package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/banshee-data/skyfit/internal/astrom"
)

func testMatchTable(t *testing.T, meta map[string]string) *astrom.MatchTable {
	t.Helper()

	matches := []astrom.Match{
		{
			Ref:      astrom.CatalogStar{ID: 101, RA: 36.90, Dec: -4.90, Mag: 12.0},
			Src:      astrom.Source{ID: 1, X: 100.0, Y: 200.0, Flux: 5000.0},
			Distance: 0.05,
		},
		{
			Ref:      astrom.CatalogStar{ID: 102, RA: 36.95, Dec: -4.95, Mag: 13.5},
			Src:      astrom.Source{ID: 2, X: 300.0, Y: 400.0, Flux: 2500.0},
			Distance: 0.12,
		},
	}
	table, err := astrom.Denormalize(matches, meta)
	if err != nil {
		t.Fatalf("Denormalize failed: %v", err)
	}
	return table
}

func TestMatchStoreSaveAndLoadRun(t *testing.T) {
	db := setupTestDB(t)
	store := NewMatchStore(db.DB)

	meta := map[string]string{"fit_order": "2", "scatter_arcsec": "0.08"}
	table := testMatchTable(t, meta)
	runID := uuid.New().String()

	if err := store.SaveRun(runID, false, table); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := store.LoadRun(runID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if diff := cmp.Diff(table, loaded); diff != "" {
		t.Errorf("round-tripped table mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchStoreListRuns(t *testing.T) {
	db := setupTestDB(t)
	store := NewMatchStore(db.DB)

	degradedID := uuid.New().String()
	refinedID := uuid.New().String()
	if err := store.SaveRun(degradedID, true, testMatchTable(t, nil)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := store.SaveRun(refinedID, false, testMatchTable(t, nil)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	byID := make(map[string]RunSummary)
	for _, r := range runs {
		byID[r.RunID] = r
	}
	if !byID[degradedID].Degraded {
		t.Error("expected degraded run to be flagged")
	}
	if byID[refinedID].Degraded {
		t.Error("expected refined run not to be flagged")
	}
	if byID[refinedID].MatchCount != 2 {
		t.Errorf("expected match count 2, got %d", byID[refinedID].MatchCount)
	}
}

func TestMatchStoreRejectsEmptyTable(t *testing.T) {
	db := setupTestDB(t)
	store := NewMatchStore(db.DB)

	err := store.SaveRun(uuid.New().String(), false, &astrom.MatchTable{})
	if !errors.Is(err, astrom.ErrNoMatches) {
		t.Fatalf("expected ErrNoMatches, got %v", err)
	}
}

func TestMatchStoreRejectsSchemaDrift(t *testing.T) {
	db := setupTestDB(t)
	store := NewMatchStore(db.DB)

	table := testMatchTable(t, nil)
	table.Columns[0] = "ref_parallax"

	err := store.SaveRun(uuid.New().String(), false, table)
	if err == nil || !strings.Contains(err.Error(), "ref_parallax") {
		t.Fatalf("expected schema drift error, got %v", err)
	}
}

func TestMatchStoreLoadUnknownRun(t *testing.T) {
	db := setupTestDB(t)
	store := NewMatchStore(db.DB)

	// Stores need at least one run before match columns matter, so seed one.
	if err := store.SaveRun(uuid.New().String(), false, testMatchTable(t, nil)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	if _, err := store.LoadRun("no-such-run"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
