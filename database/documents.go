package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentStore keeps one row per ingested source file, keyed by path, with
// the content hash of the text that was indexed.
type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

func (s *DocumentStore) RecordDocument(ctx context.Context, path, title, sha string) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO law_documents (id, source_path, title, sha256)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (source_path) DO UPDATE SET
            title = EXCLUDED.title,
            sha256 = EXCLUDED.sha256,
            updated_at = NOW()
    `, uuid.New(), path, title, sha)
	if err != nil {
		return fmt.Errorf("record document %s: %w", title, err)
	}
	return nil
}

// Titles lists the titles of all recorded documents.
func (s *DocumentStore) Titles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT title FROM law_documents ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan document title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return titles, nil
}

// DocumentSHA returns the recorded hash for a source path, or "" when the
// path has not been ingested.
func (s *DocumentStore) DocumentSHA(ctx context.Context, path string) (string, error) {
	var sha string
	err := s.pool.QueryRow(ctx, "SELECT sha256 FROM law_documents WHERE source_path = $1", path).Scan(&sha)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("look up document %s: %w", path, err)
	}
	return sha, nil
}
