// Package index stores embedded fragments and answers nearest-neighbor
// queries over them.
//
// Two implementations are provided: Postgres, backed by pgvector for
// durable production storage, and Memory, an in-process store with a JSON
// snapshot for tests and single-machine setups. Both normalize embeddings
// on write so cosine similarity reduces to a dot product.
package index

import (
	"context"
	"errors"
	"math"
)

// ErrDimensionMismatch indicates an embedding whose dimension differs from
// the dimension the store was created with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Entry is a fragment with its embedding, as stored in the index.
type Entry struct {
	// ID uniquely identifies the fragment. Writing an entry with an
	// existing ID replaces the stored one.
	ID string

	// Content is the fragment text.
	Content string

	// Metadata carries source attributes (document ID, ordinal, CSV columns).
	Metadata map[string]string

	// Embedding is the fragment's vector. Stores normalize it on write.
	Embedding []float32
}

// Result is a search hit with its similarity score.
type Result struct {
	Entry Entry

	// Score is the cosine similarity to the query, in [-1, 1]. Higher is
	// more similar.
	Score float32
}

// Store is the vector index contract shared by the Postgres and Memory
// implementations.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert writes entries, replacing any stored entry with the same ID.
	// Returns ErrDimensionMismatch if any embedding has the wrong dimension.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns up to topK entries most similar to the query
	// embedding, ordered by descending score with insertion order breaking
	// ties. Returns ErrDimensionMismatch if the query has the wrong
	// dimension.
	Search(ctx context.Context, query []float32, topK int) ([]Result, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Clear removes every stored entry and resets insertion order, so a
	// subsequent build starts from a fresh index.
	Clear(ctx context.Context) error
}

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged since it has no direction.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return append([]float32(nil), v...)
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// dot returns the inner product of two equal-length vectors. For normalized
// vectors this equals their cosine similarity.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
