package index_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lodestone-ai/lodestone/internal/index"
	"github.com/lodestone-ai/lodestone/internal/testutil"
)

// The Postgres tests run against a real pgvector container and skip when
// Docker is unavailable.

func newPostgresIndex(t *testing.T) (*index.Postgres, func()) {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t)
	// The schema declares vector(768).
	return index.NewPostgres(db.Pool, 768, testutil.DiscardLogger()), cleanup
}

func vec768(axis int) []float32 {
	v := make([]float32, 768)
	v[axis] = 1
	return v
}

func pgEntry(id string, axis int) index.Entry {
	return index.Entry{
		ID:        id,
		Content:   "content of " + id,
		Metadata:  map[string]string{"doc_id": id},
		Embedding: vec768(axis),
	}
}

func TestPostgresUpsertSearchCount(t *testing.T) {
	idx, cleanup := newPostgresIndex(t)
	defer cleanup()
	ctx := context.Background()

	err := idx.Upsert(ctx, []index.Entry{
		pgEntry("a", 0),
		pgEntry("b", 1),
		pgEntry("c", 2),
	})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}

	results, err := idx.Search(ctx, vec768(1), 2)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() = %d results, want 2", len(results))
	}
	if results[0].Entry.ID != "b" {
		t.Errorf("top result = %q, want b", results[0].Entry.ID)
	}
	if results[0].Score < 0.99 {
		t.Errorf("top score = %f, want ~1 for identical direction", results[0].Score)
	}
	if results[0].Entry.Metadata["doc_id"] != "b" {
		t.Errorf("metadata = %v, want doc_id round-tripped", results[0].Entry.Metadata)
	}
}

func TestPostgresUpsertIdempotent(t *testing.T) {
	idx, cleanup := newPostgresIndex(t)
	defer cleanup()
	ctx := context.Background()

	batch := []index.Entry{pgEntry("a", 0), pgEntry("b", 1)}
	for i := 0; i < 3; i++ {
		if err := idx.Upsert(ctx, batch); err != nil {
			t.Fatalf("Upsert() round %d failed: %v", i, err)
		}
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() after repeated upserts = %d, want 2", count)
	}
}

func TestPostgresUpsertReplacesContent(t *testing.T) {
	idx, cleanup := newPostgresIndex(t)
	defer cleanup()
	ctx := context.Background()

	if err := idx.Upsert(ctx, []index.Entry{pgEntry("a", 0)}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	updated := pgEntry("a", 0)
	updated.Content = "revised"
	if err := idx.Upsert(ctx, []index.Entry{updated}); err != nil {
		t.Fatalf("Upsert() update failed: %v", err)
	}

	results, err := idx.Search(ctx, vec768(0), 1)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Content != "revised" {
		t.Errorf("Search() = %+v, want the revised entry", results)
	}
}

func TestPostgresSearchTieBreakInsertionOrder(t *testing.T) {
	idx, cleanup := newPostgresIndex(t)
	defer cleanup()
	ctx := context.Background()

	// Identical embeddings tie on distance; seq ordering resolves them by
	// first insertion.
	err := idx.Upsert(ctx, []index.Entry{
		pgEntry("first", 0),
		pgEntry("second", 0),
		pgEntry("third", 0),
	})
	if err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	// Re-upserting must not reshuffle the tie-break order.
	if err := idx.Upsert(ctx, []index.Entry{pgEntry("first", 0)}); err != nil {
		t.Fatalf("Upsert() refresh failed: %v", err)
	}

	results, err := idx.Search(ctx, vec768(0), 3)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	wantOrder := []string{"first", "second", "third"}
	for i, want := range wantOrder {
		if results[i].Entry.ID != want {
			t.Errorf("tied result %d = %q, want %q", i, results[i].Entry.ID, want)
		}
	}
}

func TestPostgresClear(t *testing.T) {
	idx, cleanup := newPostgresIndex(t)
	defer cleanup()
	ctx := context.Background()

	if err := idx.Upsert(ctx, []index.Entry{pgEntry("a", 0), pgEntry("b", 1)}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after Clear = %d, want 0", count)
	}
}

func TestPostgresDimensionMismatch(t *testing.T) {
	idx, cleanup := newPostgresIndex(t)
	defer cleanup()
	ctx := context.Background()

	err := idx.Upsert(ctx, []index.Entry{{ID: "a", Content: "x", Embedding: []float32{1, 2}}})
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("Upsert() with wrong dimension = %v, want ErrDimensionMismatch", err)
	}

	_, err = idx.Search(ctx, []float32{1, 2}, 5)
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("Search() with wrong dimension = %v, want ErrDimensionMismatch", err)
	}
}
