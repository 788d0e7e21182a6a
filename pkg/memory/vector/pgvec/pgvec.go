// Package pgvec implements [memory.VectorIndex] against PostgreSQL with the
// pgvector extension. This is the "server" connection mode:
// a remote, persistent ANN backend behind an HNSW cosine index.
package pgvec

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/glyphoxa/pkg/memory"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings"
)

var _ memory.VectorIndex = (*Index)(nil)

const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_vectors (
    record_id       TEXT PRIMARY KEY,
    content         TEXT NOT NULL,
    processing_date TEXT NOT NULL,
    mood            TEXT NOT NULL DEFAULT '',
    tags_csv        TEXT NOT NULL DEFAULT '',
    content_hash    TEXT NOT NULL,
    event_date      TEXT NOT NULL DEFAULT '',
    timestamp       TIMESTAMPTZ NOT NULL,
    embedding       vector(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_vectors_date ON memory_vectors (processing_date);
CREATE INDEX IF NOT EXISTS idx_memory_vectors_embedding
    ON memory_vectors USING hnsw (embedding vector_cosine_ops);
`

// Index is a pgvector-backed [memory.VectorIndex]. Construct with [Open].
type Index struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// Open connects to the PostgreSQL database at dsn, registers pgvector types
// on every connection, and applies the schema for the given embedding
// dimension. Reopening against an existing table with a different
// dimension requires a manual migration.
func Open(ctx context.Context, dsn string, dimensions int, embedder embeddings.Provider) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvec: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvec: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvec: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddl, dimensions)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvec: migrate: %w", err)
	}

	return &Index{pool: pool, embedder: embedder}, nil
}

// Add implements [memory.VectorIndex.Add].
func (ix *Index) Add(ctx context.Context, entry memory.Entry) (string, error) {
	recordID := shortHash(entry.ContentHash)
	vec, err := ix.embedder.Embed(ctx, entry.Text)
	if err != nil {
		return "", fmt.Errorf("pgvec: embed: %w", err)
	}

	const q = `
		INSERT INTO memory_vectors
		    (record_id, content, processing_date, mood, tags_csv, content_hash, event_date, timestamp, embedding)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (record_id) DO NOTHING`

	_, err = ix.pool.Exec(ctx, q,
		recordID, entry.Text, entry.ProcessingDate, entry.Mood, strings.Join(entry.Tags, ","),
		entry.ContentHash, entry.EventDate, entry.Timestamp, pgvector.NewVector(vec))
	if err != nil {
		return "", fmt.Errorf("pgvec: add: %w", err)
	}
	return recordID, nil
}

// Search implements [memory.VectorIndex.Search]. Date filtering is applied
// at the index level (conjunction of dateFrom/dateTo) applied at query time.
func (ix *Index) Search(ctx context.Context, query string, limit int, dateFrom, dateTo string) ([]memory.VectorResult, error) {
	n, err := ix.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []memory.VectorResult{}, nil
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgvec: embed query: %w", err)
	}

	args := []any{pgvector.NewVector(vec)}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conds []string
	if dateFrom != "" {
		conds = append(conds, "processing_date >= "+next(dateFrom))
	}
	if dateTo != "" {
		conds = append(conds, "processing_date <= "+next(dateTo))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT content, processing_date, mood, timestamp, content_hash, embedding <=> $1 AS distance
		FROM memory_vectors
		%s
		ORDER BY distance
		LIMIT %s`, where, limitArg)

	rows, err := ix.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvec: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.VectorResult, error) {
		var r memory.VectorResult
		if err := row.Scan(&r.Content, &r.ProcessingDate, &r.Mood, &r.Timestamp, &r.ContentHash, &r.Distance); err != nil {
			return memory.VectorResult{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvec: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.VectorResult{}
	}
	return results, nil
}

// Count implements [memory.VectorIndex.Count].
func (ix *Index) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := ix.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memory_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvec: count: %w", err)
	}
	return n, nil
}

// Close implements [memory.VectorIndex.Close].
func (ix *Index) Close() error {
	ix.pool.Close()
	return nil
}

func shortHash(contentHash string) string {
	if len(contentHash) >= 16 {
		return contentHash[:16]
	}
	return contentHash
}
