package embedded_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/glyphoxa/pkg/memory"
	"github.com/MrWong99/glyphoxa/pkg/memory/vector/embedded"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings/hashembed"
)

func newTestIndex(t *testing.T) *embedded.Index {
	t.Helper()
	ix, err := embedded.Open(t.TempDir(), hashembed.New(32))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestAddAndSearch(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Add(ctx, memory.Entry{
		Text: "met Hung at the cafe", Timestamp: time.Now(),
		ProcessingDate: "2026-01-01", ContentHash: "aaaaaaaaaaaaaaaa",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	count, err := ix.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count = %d, want 1", count)
	}

	results, err := ix.Search(ctx, "met Hung at the cafe", 5, "", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search returned %d results, want 1", len(results))
	}
}

func TestAddIsIdempotentOnRecordID(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	entry := memory.Entry{Text: "same memory", ContentHash: "bbbbbbbbbbbbbbbb", ProcessingDate: "2026-01-01"}
	if _, err := ix.Add(ctx, entry); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if _, err := ix.Add(ctx, entry); err != nil {
		t.Fatalf("second Add: %v", err)
	}

	count, _ := ix.Count(ctx)
	if count != 1 {
		t.Errorf("Count = %d after duplicate Add, want 1", count)
	}
}

func TestSearchFiltersByDateRange(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	ix.Add(ctx, memory.Entry{Text: "old memory", ContentHash: "cccccccccccccccc", ProcessingDate: "2025-01-01"})
	ix.Add(ctx, memory.Entry{Text: "new memory", ContentHash: "dddddddddddddddd", ProcessingDate: "2026-01-01"})

	results, err := ix.Search(ctx, "memory", 10, "2026-01-01", "2026-12-31")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ProcessingDate != "2026-01-01" {
		t.Fatalf("Search with date filter returned %+v", results)
	}
}

func TestSearchOnEmptyIndexReturnsEmptyNotNilError(t *testing.T) {
	ix := newTestIndex(t)
	results, err := ix.Search(context.Background(), "anything", 5, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results on empty index, got %d", len(results))
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ix1, err := embedded.Open(dir, hashembed.New(32))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := ix1.Add(context.Background(), memory.Entry{
		Text: "persisted memory", ContentHash: "eeeeeeeeeeeeeeee", ProcessingDate: "2026-01-01",
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ix1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ix2, err := embedded.Open(dir, hashembed.New(32))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ix2.Close()

	count, err := ix2.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count after reopen = %d, want 1", count)
	}
}
