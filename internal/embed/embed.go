// Package embed turns text into embedding vectors.
package embed

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding backend cannot be reached. Callers
// should treat it as fatal for the current batch rather than retrying per
// item.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder produces an embedding vector for a piece of text.
//
// Implementations must be safe for concurrent use and must return vectors
// of a fixed dimension, reported by Dimension.
type Embedder interface {
	// Embed returns the embedding for text. Connectivity failures wrap
	// ErrUnavailable so callers can distinguish them from per-input errors.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension reports the length of vectors Embed returns.
	Dimension() int
}
