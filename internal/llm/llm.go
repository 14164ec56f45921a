// Package llm generates model completions from assembled prompts.
package llm

import (
	"context"
	"errors"
)

// ErrGenerationFailed indicates the model backend rejected or aborted a
// generation request.
var ErrGenerationFailed = errors.New("generation failed")

// TokenFunc receives one generated token at a time during streaming. A
// non-nil return stops generation and is propagated to the caller.
type TokenFunc func(token string) error

// Generator produces completions for a prompt.
//
// Implementations must be safe for concurrent use.
type Generator interface {
	// Generate returns the complete response text for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream invokes fn for each token as the model produces it.
	// It returns once generation completes, fn returns an error, or ctx is
	// canceled.
	GenerateStream(ctx context.Context, prompt string, fn TokenFunc) error
}
