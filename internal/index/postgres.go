package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds vector search queries so a slow index scan cannot
// block request handling indefinitely.
const searchTimeout = 10 * time.Second

// Querier defines the database operations Postgres needs. It is satisfied
// by *pgxpool.Pool and by pgx.Tx, so callers can run index writes inside
// their own transactions.
//
// Following Go convention the interface is defined by the consumer, not the
// provider (similar to http.RoundTripper, io.Reader).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the durable vector index backed by PostgreSQL with the
// pgvector extension. Similarity uses the cosine distance operator so the
// ivfflat index on the fragments table is applicable.
//
// Postgres is safe for concurrent use when backed by a connection pool.
type Postgres struct {
	db        Querier
	dimension int
	logger    *slog.Logger
}

// NewPostgres creates a Postgres index over an existing connection. The
// fragments table must already exist (see db/migrations). logger may be nil.
func NewPostgres(db Querier, dimension int, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		db:        db,
		dimension: dimension,
		logger:    logger,
	}
}

const upsertFragmentSQL = `
INSERT INTO fragments (id, content, metadata, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
    content    = EXCLUDED.content,
    metadata   = EXCLUDED.metadata,
    embedding  = EXCLUDED.embedding,
    updated_at = now()`

// beginner is implemented by *pgxpool.Pool. When the underlying Querier can
// open transactions, Upsert writes each batch atomically so readers never
// observe a partially written batch.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Upsert writes entries, replacing any stored entry with the same ID. An
// updated row keeps its original seq value, so insertion order and with it
// search tie-breaking are stable across re-ingestion.
func (p *Postgres) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Embedding) != p.dimension {
			return fmt.Errorf("%w: entry %q has dimension %d, index expects %d",
				ErrDimensionMismatch, e.ID, len(e.Embedding), p.dimension)
		}
	}

	if b, ok := p.db.(beginner); ok {
		tx, err := b.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning upsert transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := upsertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing upsert: %w", err)
		}
	} else if err := upsertEntries(ctx, p.db, entries); err != nil {
		return err
	}

	p.logger.Debug("upserted fragments", "count", len(entries))
	return nil
}

func upsertEntries(ctx context.Context, db Querier, entries []Entry) error {
	for _, e := range entries {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", e.ID, err)
		}

		vec := pgvector.NewVector(Normalize(e.Embedding))
		if _, err := db.Exec(ctx, upsertFragmentSQL, e.ID, e.Content, metadata, vec); err != nil {
			return fmt.Errorf("upserting fragment %q: %w", e.ID, err)
		}
	}
	return nil
}

const searchFragmentsSQL = `
SELECT id, content, metadata, embedding, embedding <=> $1 AS distance
FROM fragments
ORDER BY embedding <=> $1, seq
LIMIT $2`

// Search returns up to topK entries by ascending cosine distance to the
// query, converted to a similarity score. A query timeout is applied so
// vector scans cannot block callers.
func (p *Postgres) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if len(query) != p.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(query), p.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec := pgvector.NewVector(Normalize(query))
	rows, err := p.db.Query(queryCtx, searchFragmentsSQL, vec, topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("searching fragments: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			e        Entry
			metadata []byte
			emb      pgvector.Vector
			distance float64
		)
		if err := rows.Scan(&e.ID, &e.Content, &metadata, &emb, &distance); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for %q: %w", e.ID, err)
			}
		}
		e.Embedding = emb.Slice()
		results = append(results, Result{Entry: e, Score: float32(1 - distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return results, nil
}

// Clear removes all fragments and resets the seq counter, so the next
// build assigns insertion order from scratch.
func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, "TRUNCATE fragments RESTART IDENTITY"); err != nil {
		return fmt.Errorf("clearing fragments: %w", err)
	}
	return nil
}

// Count returns the number of stored fragments.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var count int64
	if err := p.db.QueryRow(ctx, "SELECT count(*) FROM fragments").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting fragments: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("fragment count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}
