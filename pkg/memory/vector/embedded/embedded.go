// Package embedded implements [memory.VectorIndex] against a local SQLite
// file, with embeddings stored as little-endian float32 BLOBs and similarity
// computed in-process by brute-force cosine distance.
//
// This is the "embedded" connection mode: a persistent
// directory-backed store with no external server dependency.
package embedded

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/glyphoxa/pkg/memory"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings"
)

var _ memory.VectorIndex = (*Index)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS memory_vectors (
    record_id       TEXT PRIMARY KEY,
    content         TEXT NOT NULL,
    processing_date TEXT NOT NULL,
    mood            TEXT NOT NULL DEFAULT '',
    tags_csv        TEXT NOT NULL DEFAULT '',
    content_hash    TEXT NOT NULL,
    event_date      TEXT NOT NULL DEFAULT '',
    timestamp       TEXT NOT NULL,
    embedding       BLOB NOT NULL
);
`

// Index is a SQLite-backed, brute-force [memory.VectorIndex].
type Index struct {
	mu       sync.Mutex
	db       *sql.DB
	embedder embeddings.Provider
}

// Open creates (if needed) the SQLite file at persistDir/vectors.db.
func Open(persistDir string, embedder embeddings.Provider) (*Index, error) {
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("embedded vector index: mkdir %q: %w", persistDir, err)
	}

	path := filepath.Join(persistDir, "vectors.db")
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("embedded vector index: open %q: %w", path, err)
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("embedded vector index: create schema: %w", err)
	}

	return &Index{db: db, embedder: embedder}, nil
}

// Add implements [memory.VectorIndex.Add].
func (ix *Index) Add(ctx context.Context, entry memory.Entry) (string, error) {
	recordID := shortHash(entry.ContentHash)
	vec, err := ix.embedder.Embed(ctx, entry.Text)
	if err != nil {
		return "", fmt.Errorf("embedded vector index: embed: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, err = ix.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memory_vectors
		    (record_id, content, processing_date, mood, tags_csv, content_hash, event_date, timestamp, embedding)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		recordID, entry.Text, entry.ProcessingDate, entry.Mood, strings.Join(entry.Tags, ","),
		entry.ContentHash, entry.EventDate, entry.Timestamp.Format(time.RFC3339), encodeVector(vec),
	)
	if err != nil {
		return "", fmt.Errorf("embedded vector index: add: %w", err)
	}
	return recordID, nil
}

// Search implements [memory.VectorIndex.Search].
func (ix *Index) Search(ctx context.Context, query string, limit int, dateFrom, dateTo string) ([]memory.VectorResult, error) {
	n, err := ix.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []memory.VectorResult{}, nil
	}

	qvec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedded vector index: embed query: %w", err)
	}

	var conds []string
	var args []any
	if dateFrom != "" {
		conds = append(conds, "processing_date >= ?")
		args = append(args, dateFrom)
	}
	if dateTo != "" {
		conds = append(conds, "processing_date <= ?")
		args = append(args, dateTo)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	ix.mu.Lock()
	rows, err := ix.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT content, processing_date, mood, timestamp, content_hash, embedding FROM memory_vectors %s`, where), args...)
	ix.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("embedded vector index: search: %w", err)
	}
	defer rows.Close()

	var results []memory.VectorResult
	for rows.Next() {
		var (
			r    memory.VectorResult
			ts   string
			blob []byte
		)
		if err := rows.Scan(&r.Content, &r.ProcessingDate, &r.Mood, &ts, &r.ContentHash, &blob); err != nil {
			return nil, fmt.Errorf("embedded vector index: scan: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339, ts)
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("embedded vector index: decode vector: %w", err)
		}
		r.Distance = cosineDistance(qvec, vec)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []memory.VectorResult{}
	}
	return results, nil
}

// Count implements [memory.VectorIndex.Count].
func (ix *Index) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := ix.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("embedded vector index: count: %w", err)
	}
	return n, nil
}

// Close implements [memory.VectorIndex.Close].
func (ix *Index) Close() error {
	return ix.db.Close()
}

func shortHash(contentHash string) string {
	if len(contentHash) >= 16 {
		return contentHash[:16]
	}
	return contentHash
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("vector blob too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	if uint32(len(buf)) < 4+4*n {
		return nil, fmt.Errorf("vector blob truncated")
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4+4*i : 8+4*i]))
	}
	return v, nil
}

// cosineDistance returns 1 - cosine_similarity(a,b), clamped to [0,2].
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	d := 1 - sim
	if d < 0 {
		d = 0
	}
	if d > 2 {
		d = 2
	}
	return d
}
