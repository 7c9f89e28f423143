// Package index manages the persistent vector index: build-vs-append
// decisions, batched writes and count verification.
package index

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrCountMismatch reports that the post-write count check disagreed with the
// expected total. Writes that reached the index are kept; the caller decides
// how loudly to complain.
var ErrCountMismatch = errors.New("index count mismatch")

// Entry is one unit ready for indexing: text, sanitized scalar metadata and
// its embedding vector.
type Entry struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Embedding []float32
}

// ScoredChunk is a query hit. Score is a similarity in (0, 1], higher is
// closer. Embedding is returned so rerankers can work without a second fetch.
type ScoredChunk struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Embedding []float32
	Score     float64
}

// VectorIndex is the storage surface the manager drives.
type VectorIndex interface {
	// Exists reports whether a populated index is present.
	Exists(ctx context.Context) (bool, error)
	// Create builds a fresh index from the initial entries, dropping any
	// previous contents.
	Create(ctx context.Context, entries []Entry) error
	// Add appends entries to an existing index.
	Add(ctx context.Context, entries []Entry) error
	// Query returns up to limit nearest entries, most similar first.
	Query(ctx context.Context, embedding []float32, limit int) ([]ScoredChunk, error)
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)
}

// Manager decides between incremental append and fresh build, slices writes
// into batches and verifies the final count.
type Manager struct {
	index           VectorIndex
	batchSize       int
	createThreshold int
	forceRecreate   bool
	logger          *log.Logger
}

func NewManager(idx VectorIndex, batchSize, createThreshold int, logger *log.Logger) *Manager {
	if batchSize <= 0 {
		batchSize = 50
	}
	if createThreshold <= 0 {
		createThreshold = 100
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		index:           idx,
		batchSize:       batchSize,
		createThreshold: createThreshold,
		logger:          logger,
	}
}

// ForceRecreate makes the next Upsert rebuild from scratch even when a
// populated index exists.
func (m *Manager) ForceRecreate(force bool) *Manager {
	m.forceRecreate = force
	return m
}

// Upsert writes the entries and returns the verified index count. An existing
// index gets batched appends; otherwise a fresh build seeds the index with
// the first batch (or everything, when small) and appends the rest. A failed
// batch aborts the remaining ones; entries already written stay. When the
// final count disagrees with the expectation the verified count is returned
// together with ErrCountMismatch.
func (m *Manager) Upsert(ctx context.Context, entries []Entry) (int64, error) {
	if len(entries) == 0 {
		return m.index.Count(ctx)
	}

	exists, err := m.index.Exists(ctx)
	if err != nil {
		return 0, fmt.Errorf("check index existence: %w", err)
	}

	var expected int64
	if exists && !m.forceRecreate {
		before, err := m.index.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("count before append: %w", err)
		}
		expected = before + int64(len(entries))
		m.logger.Printf("appending %d entries to existing index of %d", len(entries), before)
		if err := m.addBatches(ctx, entries); err != nil {
			return m.verify(ctx, -1, err)
		}
	} else {
		expected = int64(len(entries))
		if len(entries) > m.createThreshold {
			m.logger.Printf("building index from %d entries in batches of %d", len(entries), m.batchSize)
			first := entries[:m.createThreshold]
			if err := m.index.Create(ctx, first); err != nil {
				return m.verify(ctx, -1, fmt.Errorf("create index: %w", err))
			}
			if err := m.addBatches(ctx, entries[m.createThreshold:]); err != nil {
				return m.verify(ctx, -1, err)
			}
		} else {
			m.logger.Printf("building index from %d entries", len(entries))
			if err := m.index.Create(ctx, entries); err != nil {
				return m.verify(ctx, -1, fmt.Errorf("create index: %w", err))
			}
		}
	}

	return m.verify(ctx, expected, nil)
}

func (m *Manager) addBatches(ctx context.Context, entries []Entry) error {
	for start := 0; start < len(entries); start += m.batchSize {
		end := start + m.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := m.index.Add(ctx, entries[start:end]); err != nil {
			return fmt.Errorf("add batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// verify reads back the index count. A write error takes precedence over
// verification; expected < 0 skips the comparison.
func (m *Manager) verify(ctx context.Context, expected int64, writeErr error) (int64, error) {
	count, countErr := m.index.Count(ctx)
	if writeErr != nil {
		return count, writeErr
	}
	if countErr != nil {
		return 0, fmt.Errorf("verify index count: %w", countErr)
	}
	if expected >= 0 && count != expected {
		return count, fmt.Errorf("%w: expected %d, index reports %d", ErrCountMismatch, expected, count)
	}
	return count, nil
}
