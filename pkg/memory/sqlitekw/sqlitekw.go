// Package sqlitekw implements [memory.KeywordIndex] on top of an embedded
// SQLite database with an FTS5 virtual table for BM25 ranking.
//
// This is the only KeywordIndex variant: the canonical document store is
// always a local embedded relational store, with no remote fallback. The
// content table and its FTS5 shadow table are kept in sync with AFTER
// INSERT/DELETE triggers.
package sqlitekw

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

var _ memory.KeywordIndex = (*Index)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS memories (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    content         TEXT NOT NULL,
    processing_date TEXT NOT NULL,
    mood            TEXT NOT NULL DEFAULT '',
    tags_csv        TEXT NOT NULL DEFAULT '',
    timestamp       TEXT NOT NULL,
    event_date      TEXT NOT NULL DEFAULT '',
    content_hash    TEXT UNIQUE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_processing_date ON memories (processing_date);
CREATE INDEX IF NOT EXISTS idx_memories_event_date ON memories (event_date);

CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
    content,
    processing_date,
    mood,
    content='memories',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
    INSERT INTO memory_fts(rowid, content, processing_date, mood)
    VALUES (new.id, new.content, new.processing_date, new.mood);
END;

CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
    INSERT INTO memory_fts(memory_fts, rowid, content, processing_date, mood)
    VALUES ('delete', old.id, old.content, old.processing_date, old.mood);
END;
`

// Index is a SQLite+FTS5 backed [memory.KeywordIndex]. The underlying
// connection is safe for concurrent reads; writes are serialized with a
// mutex because FTS5 content-table triggers are not safe under concurrent
// writers on some SQLite builds.
type Index struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path, applying
// the FTS5 schema idempotently.
func Open(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitekw: mkdir %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitekw: open %q: %w", path, err)
	}

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitekw: create schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Index implements [memory.KeywordIndex.Index].
func (i *Index) Index(ctx context.Context, entry memory.Entry) (int64, bool, error) {
	hash := entry.ContentHash
	if hash == "" {
		sum := sha256.Sum256([]byte(entry.Text))
		hash = hex.EncodeToString(sum[:])
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	res, err := i.db.ExecContext(ctx,
		`INSERT INTO memories (content, processing_date, mood, tags_csv, timestamp, event_date, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Text, entry.ProcessingDate, entry.Mood, strings.Join(entry.Tags, ","),
		entry.Timestamp.Format(time.RFC3339), entry.EventDate, hash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return -1, true, nil
		}
		return 0, false, fmt.Errorf("sqlitekw: index: %w", err)
	}

	rowid, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("sqlitekw: last insert id: %w", err)
	}
	return rowid, false, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Search implements [memory.KeywordIndex.Search], ranking by FTS5 BM25 with
// the raw (negative) rank converted to a positive score, higher = better.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]memory.KeywordRow, error) {
	if strings.TrimSpace(query) == "" {
		return []memory.KeywordRow{}, nil
	}

	rows, err := i.db.QueryContext(ctx,
		`SELECT m.id, m.content, m.processing_date, m.mood, m.tags_csv, m.timestamp, m.event_date, memory_fts.rank
		 FROM memory_fts
		 JOIN memories m ON m.id = memory_fts.rowid
		 WHERE memory_fts MATCH ?
		 ORDER BY memory_fts.rank
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitekw: search: %w", err)
	}
	defer rows.Close()

	return scanRows(rows, func(r *memory.KeywordRow, negRank float64) { r.Rank = -negRank })
}

// GetByHashes implements [memory.KeywordIndex.GetByHashes].
func (i *Index) GetByHashes(ctx context.Context, hashes []string) (map[string]memory.KeywordRow, error) {
	out := make(map[string]memory.KeywordRow, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes))
	for idx, h := range hashes {
		placeholders[idx] = "?"
		args[idx] = h
	}

	q := fmt.Sprintf(
		`SELECT content_hash, content, processing_date, mood, tags_csv, timestamp, event_date
		 FROM memories WHERE content_hash IN (%s)`, strings.Join(placeholders, ","))

	rows, err := i.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitekw: get by hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			hash, tagsCSV, ts string
			row               memory.KeywordRow
		)
		if err := rows.Scan(&hash, &row.Content, &row.ProcessingDate, &row.Mood, &tagsCSV, &ts, &row.EventDate); err != nil {
			return nil, fmt.Errorf("sqlitekw: scan: %w", err)
		}
		row.Tags = splitTags(tagsCSV)
		row.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out[hash] = row
	}
	return out, rows.Err()
}

// GetByDate implements [memory.KeywordIndex.GetByDate].
func (i *Index) GetByDate(ctx context.Context, date string) ([]memory.KeywordRow, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT id, content, processing_date, mood, tags_csv, timestamp, event_date, 0
		 FROM memories WHERE processing_date = ? ORDER BY timestamp`, date)
	if err != nil {
		return nil, fmt.Errorf("sqlitekw: get by date: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, nil)
}

// GetTimeline implements [memory.KeywordIndex.GetTimeline].
func (i *Index) GetTimeline(ctx context.Context, start, end string, limit int, sortBy memory.SortBy) ([]memory.KeywordRow, error) {
	col := "timestamp"
	if sortBy == memory.SortByEventTime {
		col = "event_date"
	}

	var (
		conds []string
		args  []any
	)
	if start != "" {
		conds = append(conds, "processing_date >= ?")
		args = append(args, start)
	}
	if end != "" {
		conds = append(conds, "processing_date <= ?")
		args = append(args, end)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	q := fmt.Sprintf(
		`SELECT id, content, processing_date, mood, tags_csv, timestamp, event_date, 0
		 FROM memories %s ORDER BY %s DESC LIMIT ?`, where, col)
	args = append(args, limit)

	rows, err := i.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitekw: get timeline: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows, nil)
	if err != nil {
		return nil, err
	}
	// reverse to chronological order within the returned slice
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result, nil
}

// GetDates implements [memory.KeywordIndex.GetDates].
func (i *Index) GetDates(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT DISTINCT processing_date FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("sqlitekw: get dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, rows.Err()
}

// Count implements [memory.KeywordIndex.Count].
func (i *Index) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := i.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitekw: count: %w", err)
	}
	return n, nil
}

// Close implements [memory.KeywordIndex.Close].
func (i *Index) Close() error {
	return i.db.Close()
}

func splitTags(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func scanRows(rows *sql.Rows, rankFn func(r *memory.KeywordRow, rawRank float64)) ([]memory.KeywordRow, error) {
	var out []memory.KeywordRow
	for rows.Next() {
		var (
			tagsCSV, ts string
			rawRank     float64
			row         memory.KeywordRow
		)
		if err := rows.Scan(&row.RowID, &row.Content, &row.ProcessingDate, &row.Mood, &tagsCSV, &ts, &row.EventDate, &rawRank); err != nil {
			return nil, fmt.Errorf("sqlitekw: scan: %w", err)
		}
		row.Tags = splitTags(tagsCSV)
		row.Timestamp, _ = time.Parse(time.RFC3339, ts)
		if rankFn != nil {
			rankFn(&row, rawRank)
		} else {
			row.Rank = 0
		}
		out = append(out, row)
	}
	if out == nil {
		out = []memory.KeywordRow{}
	}
	return out, rows.Err()
}
