// Package splitter turns raw document text into bounded, overlapping
// fragments suitable for embedding and retrieval.
//
// The splitter works hierarchically: text is divided on the coarsest
// separator first (paragraph breaks), and any piece still exceeding the
// chunk size is divided again with the next finer separator, down to a raw
// character cut. The resulting minimal pieces are then merged back together
// greedily up to the chunk size, with the tail of each emitted fragment
// carried over as the prefix of the next so adjacent fragments share
// context.
package splitter

import "strings"

// defaultSeparators is the separator priority order: paragraph, line,
// sentence, word, then raw character cut. The empty string means "cut at
// a fixed width"; with it present no piece is ever atomic.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter splits text into fragments of at most ChunkSize runes with
// Overlap runes shared between adjacent fragments.
//
// Splitting is deterministic: identical input and parameters always produce
// the identical fragment sequence, and the fragment's position in the
// returned slice is its ordinal.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSeparators overrides the separator priority order. If the list does
// not end with the empty string, a piece containing none of the separators
// and longer than the chunk size is emitted as-is (oversized) rather than
// truncated.
func WithSeparators(seps []string) Option {
	return func(s *Splitter) {
		s.separators = seps
	}
}

// New creates a Splitter. chunkSize must be positive; an overlap that is
// negative or not smaller than chunkSize is ignored.
func New(chunkSize, overlap int, opts ...Option) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	s := &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split returns the ordered fragment texts for the given document text.
// Empty or whitespace-only input yields no fragments and no error.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if runeLen(text) <= s.chunkSize {
		return []string{text}
	}

	pieces := s.divide(text, s.separators)
	return s.merge(pieces)
}

// pieceLimit is the maximum piece length that still fits in a fragment
// after the overlap prefix is prepended.
func (s *Splitter) pieceLimit() int {
	limit := s.chunkSize - s.overlap
	if limit < 1 {
		limit = 1
	}
	return limit
}

// divide recursively splits text into pieces no longer than pieceLimit,
// except when the separator list is exhausted without the raw-character
// fallback: such atomic pieces are returned oversized rather than losing
// content.
func (s *Splitter) divide(text string, seps []string) []string {
	if runeLen(text) <= s.pieceLimit() {
		return []string{text}
	}

	for i, sep := range seps {
		if sep == "" {
			return s.hardCut(text)
		}
		if !strings.Contains(text, sep) {
			continue
		}

		parts := strings.Split(text, sep)
		// Reattach the separator to the preceding part so concatenating
		// all pieces reproduces the input byte for byte.
		var out []string
		for j, part := range parts {
			if j < len(parts)-1 {
				part += sep
			}
			if part == "" {
				continue
			}
			if runeLen(part) <= s.pieceLimit() {
				out = append(out, part)
			} else {
				out = append(out, s.divide(part, seps[i+1:])...)
			}
		}
		return out
	}

	// No separator matched: the piece is atomic and emitted as-is.
	return []string{text}
}

// hardCut slices text at fixed rune boundaries. The cut width leaves room
// for the overlap prefix added during merging, so merged fragments stay
// within the chunk size.
func (s *Splitter) hardCut(text string) []string {
	width := s.pieceLimit()
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// merge greedily joins adjacent pieces up to chunkSize, prefixing each new
// fragment with the last overlap runes of the previously emitted one.
func (s *Splitter) merge(pieces []string) []string {
	var (
		fragments []string
		current   string // accumulated fragment, including any overlap prefix
		filled    bool   // whether current holds content beyond the prefix
	)

	emit := func() {
		if !filled {
			return
		}
		fragments = append(fragments, current)
		current = tail(current, s.overlap)
		filled = false
	}

	for _, piece := range pieces {
		if filled && runeLen(current)+runeLen(piece) > s.chunkSize {
			emit()
		}
		if !filled && runeLen(current)+runeLen(piece) > s.chunkSize {
			// The piece does not fit even in a fresh fragment: it is an
			// atomic oversized unit, emitted whole.
			current += piece
			filled = true
			emit()
			continue
		}
		current += piece
		filled = true
	}
	emit()

	return fragments
}

// tail returns the last n runes of text.
func tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

func runeLen(s string) int {
	return len([]rune(s))
}
