// Package ephemeral implements [memory.VectorIndex] entirely in process
// memory, lost on exit. This is the last rung of the vector index fallback
// ladder — the mode that keeps save/search functional with no filesystem or
// network dependency at all.
package ephemeral

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/glyphoxa/pkg/memory"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings"
)

var _ memory.VectorIndex = (*Index)(nil)

type record struct {
	content        string
	processingDate string
	mood           string
	contentHash    string
	timestamp      time.Time
	embedding      []float32
}

// Index is an in-memory [memory.VectorIndex].
type Index struct {
	mu       sync.RWMutex
	records  map[string]record // keyed by record id (ContentHash[:16])
	embedder embeddings.Provider
}

// New creates an empty ephemeral index using embedder to compute vectors.
func New(embedder embeddings.Provider) *Index {
	return &Index{records: make(map[string]record), embedder: embedder}
}

// Add implements [memory.VectorIndex.Add].
func (ix *Index) Add(ctx context.Context, entry memory.Entry) (string, error) {
	recordID := shortHash(entry.ContentHash)
	vec, err := ix.embedder.Embed(ctx, entry.Text)
	if err != nil {
		return "", fmt.Errorf("ephemeral vector index: embed: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.records[recordID]; exists {
		return recordID, nil
	}
	ix.records[recordID] = record{
		content:        entry.Text,
		processingDate: entry.ProcessingDate,
		mood:           entry.Mood,
		contentHash:    entry.ContentHash,
		timestamp:      entry.Timestamp,
		embedding:      vec,
	}
	return recordID, nil
}

// Search implements [memory.VectorIndex.Search].
func (ix *Index) Search(ctx context.Context, query string, limit int, dateFrom, dateTo string) ([]memory.VectorResult, error) {
	ix.mu.RLock()
	n := len(ix.records)
	ix.mu.RUnlock()
	if n == 0 {
		return []memory.VectorResult{}, nil
	}

	qvec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ephemeral vector index: embed query: %w", err)
	}

	ix.mu.RLock()
	results := make([]memory.VectorResult, 0, len(ix.records))
	for _, r := range ix.records {
		if dateFrom != "" && r.processingDate < dateFrom {
			continue
		}
		if dateTo != "" && r.processingDate > dateTo {
			continue
		}
		results = append(results, memory.VectorResult{
			Content:        r.content,
			ProcessingDate: r.processingDate,
			Mood:           r.mood,
			Timestamp:      r.timestamp,
			ContentHash:    r.contentHash,
			Distance:       cosineDistance(qvec, r.embedding),
		})
	}
	ix.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count implements [memory.VectorIndex.Count].
func (ix *Index) Count(ctx context.Context) (int64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return int64(len(ix.records)), nil
}

// Close implements [memory.VectorIndex.Close]. No-op: nothing to release.
func (ix *Index) Close() error { return nil }

func shortHash(contentHash string) string {
	if len(contentHash) >= 16 {
		return contentHash[:16]
	}
	return contentHash
}

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
	if sim > 1 {
		sim = 1
	}
	d := 1 - sim
	if d < 0 {
		d = 0
	}
	return d
}
