package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Memory is an in-process vector index. It keeps entries in insertion order
// and scores searches by cosine similarity over normalized embeddings.
//
// Memory is safe for concurrent use by multiple goroutines.
type Memory struct {
	dimension int

	mu      sync.RWMutex
	entries []Entry        // insertion order, the tie-break order for search
	byID    map[string]int // id -> position in entries
}

// NewMemory creates an empty in-memory index for embeddings of the given
// dimension.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension: dimension,
		byID:      make(map[string]int),
	}
}

// Upsert writes entries, replacing any stored entry with the same ID while
// keeping its original position.
func (m *Memory) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Embedding) != m.dimension {
			return fmt.Errorf("%w: entry %q has dimension %d, index expects %d",
				ErrDimensionMismatch, e.ID, len(e.Embedding), m.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		stored := e
		stored.Embedding = Normalize(e.Embedding)

		if pos, ok := m.byID[e.ID]; ok {
			m.entries[pos] = stored
			continue
		}
		m.byID[e.ID] = len(m.entries)
		m.entries = append(m.entries, stored)
	}
	return nil
}

// Search returns up to topK entries most similar to the query embedding.
// Ties in score resolve to the earlier-inserted entry.
func (m *Memory) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(query), m.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	q := Normalize(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, Result{Entry: e, Score: dot(q, e.Embedding)})
	}

	// Stable sort preserves insertion order among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Clear removes every stored entry, resetting insertion order.
func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.byID = make(map[string]int)
	return nil
}

// Count returns the number of stored entries.
func (m *Memory) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// snapshot is the JSON persistence format for a Memory index.
type snapshot struct {
	Dimension int     `json:"dimension"`
	Entries   []Entry `json:"entries"`
}

// entryJSON mirrors Entry for serialization with stable field names.
type entryJSON struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		ID:        e.ID,
		Content:   e.Content,
		Metadata:  e.Metadata,
		Embedding: e.Embedding,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var j entryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*e = Entry{ID: j.ID, Content: j.Content, Metadata: j.Metadata, Embedding: j.Embedding}
	return nil
}

// Persist writes the index contents to path as JSON. The file is written to
// a temporary sibling and renamed, so readers never observe a partial
// snapshot.
func (m *Memory) Persist(path string) error {
	m.mu.RLock()
	snap := snapshot{
		Dimension: m.dimension,
		Entries:   append([]Entry(nil), m.entries...),
	}
	m.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding index snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// LoadMemory reads a JSON snapshot written by Persist and returns the
// reconstructed index. Entries keep their persisted order, so search
// tie-breaks survive a persist/load round trip.
func LoadMemory(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding index snapshot: %w", err)
	}
	if snap.Dimension <= 0 {
		return nil, fmt.Errorf("decoding index snapshot: invalid dimension %d", snap.Dimension)
	}

	m := NewMemory(snap.Dimension)
	for _, e := range snap.Entries {
		if len(e.Embedding) != snap.Dimension {
			return nil, fmt.Errorf("%w: snapshot entry %q has dimension %d, expected %d",
				ErrDimensionMismatch, e.ID, len(e.Embedding), snap.Dimension)
		}
		m.byID[e.ID] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return m, nil
}
