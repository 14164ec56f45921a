// Package ingest builds the vector index from source documents: rows are
// split into fragments, embedded, and written to the index in batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lodestone-ai/lodestone/internal/embed"
	"github.com/lodestone-ai/lodestone/internal/index"
	"github.com/lodestone-ai/lodestone/internal/splitter"
)

// Row is one source document to ingest.
type Row struct {
	// ID identifies the document. Fragment IDs derive from it, so
	// re-ingesting the same rows overwrites rather than duplicates.
	ID string

	// Content is the document text. Rows with blank content are skipped.
	Content string

	// Metadata is carried onto every fragment of the row.
	Metadata map[string]string
}

// Report summarizes an ingestion run.
type Report struct {
	DocumentsProcessed int
	DocumentsSkipped   int
	FragmentsCreated   int

	// Incomplete is set when the run aborted before all rows were
	// ingested, typically because the embedding backend went away.
	Incomplete bool
}

// Pipeline ingests rows into a vector index.
type Pipeline struct {
	splitter *splitter.Splitter
	embedder embed.Embedder
	store    index.Store
	logger   *slog.Logger
}

// New creates a Pipeline. logger may be nil.
func New(sp *splitter.Splitter, embedder embed.Embedder, store index.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter: sp,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Build splits, embeds, and indexes rows. Each row's fragments are written
// in one batch, so a row is either fully indexed or not at all.
//
// Error policy: an unreachable embedding backend (embed.ErrUnavailable)
// aborts the run, returning the partial report with Incomplete set. Other
// embedding failures skip the affected row and continue. Index write
// failures abort the run.
func (p *Pipeline) Build(ctx context.Context, rows []Row) (Report, error) {
	var report Report

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			report.Incomplete = true
			return report, err
		}

		if strings.TrimSpace(row.Content) == "" {
			report.DocumentsSkipped++
			p.logger.Warn("skipping row with no content", "id", row.ID)
			continue
		}

		entries, err := p.embedRow(ctx, row)
		if err != nil {
			if errors.Is(err, embed.ErrUnavailable) || errors.Is(err, context.Canceled) {
				report.Incomplete = true
				return report, fmt.Errorf("ingesting row %q: %w", row.ID, err)
			}
			report.DocumentsSkipped++
			p.logger.Warn("skipping row after embedding failure", "id", row.ID, "error", err)
			continue
		}

		if err := p.store.Upsert(ctx, entries); err != nil {
			report.Incomplete = true
			return report, fmt.Errorf("indexing row %q: %w", row.ID, err)
		}

		report.DocumentsProcessed++
		report.FragmentsCreated += len(entries)
	}

	p.logger.Info("ingestion complete",
		"processed", report.DocumentsProcessed,
		"skipped", report.DocumentsSkipped,
		"fragments", report.FragmentsCreated)
	return report, nil
}

// embedRow splits a row and embeds every fragment. Fragment IDs are the row
// ID with the fragment ordinal appended.
func (p *Pipeline) embedRow(ctx context.Context, row Row) ([]index.Entry, error) {
	fragments := p.splitter.Split(row.Content)

	entries := make([]index.Entry, 0, len(fragments))
	for i, text := range fragments {
		vec, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding fragment %d: %w", i, err)
		}

		metadata := make(map[string]string, len(row.Metadata)+2)
		for k, v := range row.Metadata {
			metadata[k] = v
		}
		metadata["doc_id"] = row.ID
		metadata["fragment"] = fmt.Sprintf("%d", i)

		entries = append(entries, index.Entry{
			ID:        fmt.Sprintf("%s_%d", row.ID, i),
			Content:   text,
			Metadata:  metadata,
			Embedding: vec,
		})
	}
	return entries, nil
}
