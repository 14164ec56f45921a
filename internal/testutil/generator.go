package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/lodestone-ai/lodestone/internal/llm"
)

// MockGenerator is a scripted llm.Generator for testing. It replays a fixed
// token sequence and can be told to fail after a given number of tokens.
//
// Thread-safe for concurrent use, though each test usually owns one.
type MockGenerator struct {
	mu        sync.Mutex
	tokens    []string
	failAfter int // -1: never fail
	failErr   error
	pulls     int
	prompts   []string
}

// NewMockGenerator creates a generator that streams the given tokens and
// completes successfully.
func NewMockGenerator(tokens ...string) *MockGenerator {
	return &MockGenerator{tokens: tokens, failAfter: -1}
}

// FailAfter makes streaming return err once n tokens have been emitted.
func (g *MockGenerator) FailAfter(n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failAfter = n
	g.failErr = err
}

// Pulls reports how many tokens were handed out across all calls.
func (g *MockGenerator) Pulls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pulls
}

// Prompts returns the prompts passed to Generate and GenerateStream.
func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Generate returns the full scripted output, or the scripted failure.
func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var sb strings.Builder
	err := g.GenerateStream(ctx, prompt, func(tok string) error {
		sb.WriteString(tok)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// GenerateStream replays the scripted tokens through fn.
func (g *MockGenerator) GenerateStream(ctx context.Context, prompt string, fn llm.TokenFunc) error {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	tokens := g.tokens
	failAfter := g.failAfter
	failErr := g.failErr
	g.mu.Unlock()

	for i, tok := range tokens {
		if failAfter >= 0 && i == failAfter {
			return failErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		g.mu.Lock()
		g.pulls++
		g.mu.Unlock()

		if err := fn(tok); err != nil {
			return err
		}
	}
	if failAfter >= 0 && failAfter >= len(tokens) {
		return failErr
	}
	return nil
}
