// Package testutil provides shared testing utilities for the lodestone
// project.
//
// This package contains reusable test infrastructure usable across
// packages, following the pattern of Go standard library packages like
// net/http/httptest and testing/iotest.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// MockEmbedder provides deterministic embedding vectors for testing.
//
// By default it generates a deterministic vector from content using
// SHA-256, so identical text always embeds identically. Explicit mappings
// can be added for precise cosine similarity control, and errors can be
// injected to exercise failure paths.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	errs    map[string]error
	err     error
	calls   int
	dim     int
}

// NewMockEmbedder creates a mock embedder with the given vector dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		errs:    make(map[string]error),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a given content string.
// Use this to control exact cosine similarity between test inputs.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// SetErr makes every subsequent Embed call fail with err. Pass nil to
// clear.
func (e *MockEmbedder) SetErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// SetErrFor makes Embed fail with err for one specific input only.
func (e *MockEmbedder) SetErrFor(content string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[content] = err
}

// Calls reports how many times Embed was invoked.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed returns the registered or deterministically derived vector for
// text.
func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if err, ok := e.errs[text]; ok {
		return nil, err
	}
	if v, ok := e.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return deterministicVector(text, e.dim), nil
}

// Dimension reports the embedding dimension.
func (e *MockEmbedder) Dimension() int {
	return e.dim
}

// deterministicVector derives a stable pseudo-embedding from content by
// expanding its SHA-256 digest. Values land in [-1, 1).
func deterministicVector(content string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := sha256.Sum256([]byte(content))

	for i := 0; i < dim; i += 8 {
		block := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		for j := 0; j < 8 && i+j < dim; j++ {
			bits := binary.BigEndian.Uint32(block[j*4 : j*4+4])
			vec[i+j] = float32(bits)/float32(1<<31) - 1
		}
	}
	return vec
}

// Axis returns a unit vector along the given axis, a convenient way to set
// up exact similarity orderings with SetVector.
func Axis(dim, axis int) []float32 {
	if axis >= dim {
		panic(fmt.Sprintf("axis %d out of range for dimension %d", axis, dim))
	}
	v := make([]float32, dim)
	v[axis] = 1
	return v
}
