// Package rag answers questions over the indexed knowledge base: retrieve
// similar fragments, assemble a grounded prompt, and generate a response.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lodestone-ai/lodestone/internal/embed"
	"github.com/lodestone-ai/lodestone/internal/index"
	"github.com/lodestone-ai/lodestone/internal/llm"
	"github.com/lodestone-ai/lodestone/internal/prompt"
	"github.com/lodestone-ai/lodestone/internal/stream"
)

// sourcePreviewLen bounds the source excerpt returned with non-streaming
// answers.
const sourcePreviewLen = 200

// Config assembles an Engine from its collaborators.
type Config struct {
	Store     index.Store
	Embedder  embed.Embedder
	Generator llm.Generator

	// TopK is how many fragments are retrieved per question.
	TopK int

	// HistoryWindow is how many recent conversation turns reach the
	// prompt.
	HistoryWindow int

	Logger *slog.Logger
}

func (c Config) validate() error {
	switch {
	case c.Store == nil:
		return errors.New("rag: Store is required")
	case c.Embedder == nil:
		return errors.New("rag: Embedder is required")
	case c.Generator == nil:
		return errors.New("rag: Generator is required")
	case c.TopK < 1:
		return fmt.Errorf("rag: TopK must be positive, got %d", c.TopK)
	}
	return nil
}

// Engine answers questions using retrieval-augmented generation.
//
// Engine is safe for concurrent use.
type Engine struct {
	store       index.Store
	embedder    embed.Embedder
	generator   llm.Generator
	builder     *prompt.Builder
	coordinator *stream.Coordinator
	topK        int
	logger      *slog.Logger
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:       cfg.Store,
		embedder:    cfg.Embedder,
		generator:   cfg.Generator,
		builder:     prompt.NewBuilder(cfg.HistoryWindow),
		coordinator: stream.New(),
		topK:        cfg.TopK,
		logger:      logger,
	}, nil
}

// Source is the provenance excerpt attached to a non-streaming answer.
type Source struct {
	Content string `json:"content"`
}

// Answer is a complete non-streaming response.
type Answer struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// Answer retrieves context for question and generates a complete response.
// When nothing relevant is indexed the prompt's refusal rule applies; the
// engine does not special-case an empty retrieval.
func (e *Engine) Answer(ctx context.Context, question string, history []prompt.Turn) (*Answer, error) {
	rendered, results, err := e.prepare(ctx, question, history)
	if err != nil {
		return nil, err
	}

	response, err := e.coordinator.Collect(ctx, func(ctx context.Context, emit func(string) error) error {
		return e.generator.GenerateStream(ctx, rendered, emit)
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{Content: preview(r.Entry.Content)})
	}
	return &Answer{Response: response, Sources: sources}, nil
}

// Stream retrieves context for question and streams the generated response
// to sink as content events followed by one terminal event.
func (e *Engine) Stream(ctx context.Context, question string, history []prompt.Turn, sink stream.Sink) error {
	rendered, _, err := e.prepare(ctx, question, history)
	if err != nil {
		// Failures before generation still reach the client as a terminal
		// error event.
		if sendErr := sink.Send(stream.Event{Type: stream.TypeError, Err: err.Error()}); sendErr != nil {
			return errors.Join(err, sendErr)
		}
		return err
	}

	return e.coordinator.Run(ctx, func(ctx context.Context, emit func(string) error) error {
		return e.generator.GenerateStream(ctx, rendered, emit)
	}, sink)
}

// prepare runs retrieval and renders the prompt.
func (e *Engine) prepare(ctx context.Context, question string, history []prompt.Turn) (string, []index.Result, error) {
	queryVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("embedding question: %w", err)
	}

	results, err := e.store.Search(ctx, queryVec, e.topK)
	if err != nil {
		return "", nil, fmt.Errorf("retrieving fragments: %w", err)
	}
	e.logger.Debug("retrieved fragments", "count", len(results), "top_k", e.topK)

	fragments := make([]string, 0, len(results))
	for _, r := range results {
		fragments = append(fragments, r.Entry.Content)
	}

	rendered := e.builder.Render(prompt.Request{
		Context:  fragments,
		History:  history,
		Question: question,
	})
	return rendered, results, nil
}

// preview trims content to the source excerpt length. The ellipsis is
// always appended, marking the excerpt as an extract rather than the whole
// fragment.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) > sourcePreviewLen {
		runes = runes[:sourcePreviewLen]
	}
	return string(runes) + "..."
}
