package index

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func entry(id string, embedding ...float32) Entry {
	return Entry{
		ID:        id,
		Content:   "content of " + id,
		Metadata:  map[string]string{"doc_id": id},
		Embedding: embedding,
	}
}

func TestMemoryUpsertAndCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	err := m.Upsert(ctx, []Entry{
		entry("a", 1, 0),
		entry("b", 0, 1),
	})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	count, err := m.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestMemoryUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	batch := []Entry{entry("a", 1, 0), entry("b", 0, 1)}
	for i := 0; i < 3; i++ {
		if err := m.Upsert(ctx, batch); err != nil {
			t.Fatalf("Upsert() round %d failed: %v", i, err)
		}
	}

	count, err := m.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() after repeated upserts = %d, want 2", count)
	}
}

func TestMemoryUpsertReplacesContent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	if err := m.Upsert(ctx, []Entry{entry("a", 1, 0)}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	updated := entry("a", 1, 0)
	updated.Content = "revised"
	if err := m.Upsert(ctx, []Entry{updated}); err != nil {
		t.Fatalf("Upsert() update failed: %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Content != "revised" {
		t.Errorf("Search() = %+v, want the revised entry", results)
	}
}

func TestMemorySearchOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	// Entries at decreasing similarity to the query direction (1, 0).
	err := m.Upsert(ctx, []Entry{
		entry("far", 0, 1),
		entry("near", 1, 0.1),
		entry("exact", 1, 0),
	})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	wantOrder := []string{"exact", "near", "far"}
	if len(results) != len(wantOrder) {
		t.Fatalf("Search() = %d results, want %d", len(results), len(wantOrder))
	}
	for i, want := range wantOrder {
		if results[i].Entry.ID != want {
			t.Errorf("result %d = %q (score %f), want %q", i, results[i].Entry.ID, results[i].Score, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not in descending score order: %f before %f",
				results[i-1].Score, results[i].Score)
		}
	}
}

func TestMemorySearchTieBreakInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	// Identical embeddings, so scores tie exactly.
	err := m.Upsert(ctx, []Entry{
		entry("first", 1, 0),
		entry("second", 1, 0),
		entry("third", 1, 0),
	})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	wantOrder := []string{"first", "second", "third"}
	for i, want := range wantOrder {
		if results[i].Entry.ID != want {
			t.Errorf("tied result %d = %q, want %q (insertion order)", i, results[i].Entry.ID, want)
		}
	}
}

func TestMemorySearchTopKLimits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	if err := m.Upsert(ctx, []Entry{entry("a", 1, 0), entry("b", 0, 1)}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	results, err := m.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Search(topK=10) = %d results, want all 2", len(results))
	}

	results, err = m.Search(ctx, []float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("Search(topK=0) failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(topK=0) = %d results, want 0", len(results))
	}
}

func TestMemoryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)

	err := m.Upsert(ctx, []Entry{entry("a", 1, 0)})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Upsert() with wrong dimension = %v, want ErrDimensionMismatch", err)
	}

	if count, _ := m.Count(ctx); count != 0 {
		t.Errorf("Count() after rejected upsert = %d, want 0", count)
	}

	_, err = m.Search(ctx, []float32{1, 0}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search() with wrong dimension = %v, want ErrDimensionMismatch", err)
	}
}

func TestMemoryPersistLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	err := m.Upsert(ctx, []Entry{
		entry("first", 1, 0),
		entry("second", 1, 0),
		entry("third", 0, 1),
	})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "index.json")
	if err := m.Persist(path); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}

	loaded, err := LoadMemory(path)
	if err != nil {
		t.Fatalf("LoadMemory() failed: %v", err)
	}

	count, err := loaded.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("loaded Count() = %d, want 3", count)
	}

	// Tie-break order must survive the round trip.
	results, err := loaded.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search() on loaded index failed: %v", err)
	}
	if results[0].Entry.ID != "first" || results[1].Entry.ID != "second" {
		t.Errorf("loaded search order = [%q, %q], want [first, second]",
			results[0].Entry.ID, results[1].Entry.ID)
	}
	if results[0].Entry.Metadata["doc_id"] != "first" {
		t.Errorf("loaded metadata = %v, want doc_id preserved", results[0].Entry.Metadata)
	}
}

func TestLoadMemoryRejectsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadMemory(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadMemory() on missing file succeeded, want error")
	}
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()

	if err := m.Upsert(ctx, []Entry{entry("a", 1, 0, 0), entry("b", 0, 1, 0)}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	count, err := m.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after Clear = %d, want 0", count)
	}

	// Insertion order restarts from scratch.
	if err := m.Upsert(ctx, []Entry{entry("b", 1, 0, 0), entry("a", 1, 0, 0)}); err != nil {
		t.Fatalf("Upsert() after Clear failed: %v", err)
	}
	results, err := m.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 2 || results[0].Entry.ID != "b" {
		t.Errorf("search after Clear = %v, want b first by new insertion order", results)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	length := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
	if math.Abs(length-1) > 1e-6 {
		t.Errorf("Normalize() length = %f, want 1", length)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("Normalize(zero) = %v, want zero vector unchanged", zero)
	}
}
