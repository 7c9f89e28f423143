package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex stores entries in the law_chunks table with a pgvector
// embedding column.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

var _ VectorIndex = (*PostgresIndex)(nil)

// Exists reports a populated index: the table must be present and hold at
// least one row.
func (p *PostgresIndex) Exists(ctx context.Context) (bool, error) {
	var regclass *string
	if err := p.pool.QueryRow(ctx, "SELECT to_regclass('law_chunks')::text").Scan(&regclass); err != nil {
		return false, fmt.Errorf("check law_chunks table: %w", err)
	}
	if regclass == nil {
		return false, nil
	}
	count, err := p.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *PostgresIndex) Create(ctx context.Context, entries []Entry) error {
	if _, err := p.pool.Exec(ctx, "TRUNCATE law_chunks"); err != nil {
		return fmt.Errorf("truncate law_chunks: %w", err)
	}
	return p.Add(ctx, entries)
}

func (p *PostgresIndex) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		meta, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", entry.ID, err)
		}
		batch.Queue(`
            INSERT INTO law_chunks (id, chunk_index, content, metadata, embedding)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (id) DO UPDATE SET
                content = EXCLUDED.content,
                metadata = EXCLUDED.metadata,
                embedding = EXCLUDED.embedding
        `, entry.ID, chunkIndexFrom(entry.Metadata), entry.Text, meta, pgvector.NewVector(entry.Embedding))
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert chunk batch: %w", err)
		}
	}
	return nil
}

func (p *PostgresIndex) Query(ctx context.Context, embedding []float32, limit int) ([]ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT id, content, metadata, embedding,
            (embedding <-> $1::vector) AS distance
        FROM law_chunks
        ORDER BY embedding <-> $1::vector, id
        LIMIT $2
    `, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]ScoredChunk, 0, limit)
	for rows.Next() {
		var item ScoredChunk
		var meta []byte
		var vec pgvector.Vector
		var distance float64
		if scanErr := rows.Scan(&item.ID, &item.Text, &meta, &vec, &distance); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
			}
		}
		item.Embedding = vec.Slice()
		item.Score = 1 / (1 + distance)
		results = append(results, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

func (p *PostgresIndex) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM law_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("count law_chunks: %w", err)
	}
	return count, nil
}

func chunkIndexFrom(meta map[string]any) int {
	switch v := meta["chunk_index"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Clear removes every stored chunk and document record.
func (p *PostgresIndex) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "TRUNCATE law_chunks"); err != nil {
		return fmt.Errorf("truncate law_chunks: %w", err)
	}
	if _, err := p.pool.Exec(ctx, "TRUNCATE law_documents"); err != nil {
		return fmt.Errorf("truncate law_documents: %w", err)
	}
	return nil
}
