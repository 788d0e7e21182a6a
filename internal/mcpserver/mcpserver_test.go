package mcpserver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/glyphoxa/internal/markdownlog"
	"github.com/MrWong99/glyphoxa/internal/service"
	"github.com/MrWong99/glyphoxa/pkg/memory"
	"github.com/MrWong99/glyphoxa/pkg/memory/graph/inmemory"
)

type fakeKeywordIndex struct {
	rows map[string]memory.KeywordRow
	next int64
}

func newFakeKeywordIndex() *fakeKeywordIndex {
	return &fakeKeywordIndex{rows: make(map[string]memory.KeywordRow)}
}

func (f *fakeKeywordIndex) Index(_ context.Context, e memory.Entry) (int64, bool, error) {
	if _, ok := f.rows[e.ContentHash]; ok {
		return -1, true, nil
	}
	f.next++
	f.rows[e.ContentHash] = memory.KeywordRow{
		RowID: f.next, Content: e.Text, ProcessingDate: e.ProcessingDate,
		Mood: e.Mood, Tags: e.Tags, Timestamp: e.Timestamp, EventDate: e.EventDate,
	}
	return f.next, false, nil
}

func (f *fakeKeywordIndex) Search(_ context.Context, _ string, _ int) ([]memory.KeywordRow, error) {
	var out []memory.KeywordRow
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeKeywordIndex) GetByHashes(_ context.Context, hashes []string) (map[string]memory.KeywordRow, error) {
	out := make(map[string]memory.KeywordRow)
	for _, h := range hashes {
		if r, ok := f.rows[h]; ok {
			out[h] = r
		}
	}
	return out, nil
}

func (f *fakeKeywordIndex) GetByDate(_ context.Context, _ string) ([]memory.KeywordRow, error) {
	return nil, nil
}

func (f *fakeKeywordIndex) GetTimeline(_ context.Context, _, _ string, _ int, _ memory.SortBy) ([]memory.KeywordRow, error) {
	return nil, nil
}

func (f *fakeKeywordIndex) GetDates(_ context.Context) ([]string, error) { return []string{"2026-01-01"}, nil }
func (f *fakeKeywordIndex) Count(_ context.Context) (int64, error)       { return int64(len(f.rows)), nil }
func (f *fakeKeywordIndex) Close() error                                 { return nil }

type fakeVectorIndex struct{}

func (fakeVectorIndex) Add(_ context.Context, _ memory.Entry) (string, error) { return "rec", nil }
func (fakeVectorIndex) Search(_ context.Context, _ string, _ int, _, _ string) ([]memory.VectorResult, error) {
	return nil, nil
}
func (fakeVectorIndex) Count(_ context.Context) (int64, error) { return 0, nil }
func (fakeVectorIndex) Close() error                           { return nil }

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, _ string, _ []string, _ string) (memory.Extraction, error) {
	return memory.Extraction{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := markdownlog.Open(filepath.Join(t.TempDir(), "memories"))
	svc := service.New(newFakeKeywordIndex(), fakeVectorIndex{}, inmemory.New(), fakeExtractor{}, log,
		service.WithClock(func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) }))
	return New(svc)
}

func TestHandleSaveMemory_RejectsEmptyText(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleSaveMemory(context.Background(), nil, saveMemoryArgs{Text: ""})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if res == nil || !res.IsError {
		t.Fatal("expected IsError result for empty text")
	}
}

func TestHandleSaveMemory_SavesAndSearchFindsIt(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	saveRes, _, err := s.handleSaveMemory(ctx, nil, saveMemoryArgs{Text: "met Hung at the cafe", Mood: "happy"})
	if err != nil || saveRes.IsError {
		t.Fatalf("save failed: err=%v res=%+v", err, saveRes)
	}

	searchRes, out, err := s.handleSearchMemories(ctx, nil, searchMemoriesArgs{Query: "Hung", Limit: 5})
	if err != nil || searchRes.IsError {
		t.Fatalf("search failed: err=%v res=%+v", err, searchRes)
	}
	if out == nil {
		t.Fatal("expected structured search result")
	}
}

func TestHandleListMemoryDates_Delegates(t *testing.T) {
	s := newTestServer(t)
	res, out, err := s.handleListMemoryDates(context.Background(), nil, listMemoryDatesArgs{})
	if err != nil || res.IsError {
		t.Fatalf("unexpected error: err=%v res=%+v", err, res)
	}
	if out == nil {
		t.Fatal("expected structured dates result")
	}
}

func TestHandleRecallRelated_RejectsEmptyEntity(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleRecallRelated(context.Background(), nil, recallRelatedArgs{Entity: ""})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if res == nil || !res.IsError {
		t.Fatal("expected IsError result for empty entity")
	}
}

func TestLastSegment(t *testing.T) {
	got, err := lastSegment("kioku://memories/2026-01-05", "memories/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-01-05" {
		t.Errorf("got %q, want %q", got, "2026-01-05")
	}

	if _, err := lastSegment("kioku://memories/", "memories/"); err == nil {
		t.Error("expected error for empty identifier")
	}

	if _, err := lastSegment("kioku://bogus", "memories/"); err == nil {
		t.Error("expected error for missing segment")
	}
}

func TestReadMemoryResource_UnknownDateReturnsPlaceholderNotError(t *testing.T) {
	s := newTestServer(t)
	req := &mcpsdk.ReadResourceRequest{
		Params: &mcpsdk.ReadResourceParams{URI: "kioku://memories/2099-01-01"},
	}
	res, err := s.readMemoryResource(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(res.Contents))
	}
}

func TestReadEntityResource_UnknownEntityReturnsPlaceholderNotError(t *testing.T) {
	s := newTestServer(t)
	req := &mcpsdk.ReadResourceRequest{
		Params: &mcpsdk.ReadResourceParams{URI: "kioku://entities/nobody"},
	}
	res, err := s.readEntityResource(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(res.Contents))
	}
}
