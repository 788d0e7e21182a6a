package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/glyphoxa/pkg/memory"
	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/provider/llm/mock"
)

func TestLLM_Extract_ParsesCleanJSON(t *testing.T) {
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{
		"entities": [{"name": "Hùng", "type": "PERSON"}, {"name": "stressed", "type": "EMOTION"}],
		"relationships": [{"source": "Hùng", "target": "stressed", "type": "EMOTIONAL", "weight": 0.8, "evidence": "quote"}],
		"event_time": "2026-07-29"
	}`}}
	ex := NewLLM(p)

	got, err := ex.Extract(context.Background(), "text", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Entities) != 2 || len(got.Relationships) != 1 {
		t.Fatalf("got %+v", got)
	}
	if got.EventDate != "2026-07-29" {
		t.Errorf("EventDate = %q, want 2026-07-29", got.EventDate)
	}
	if got.Relationships[0].RelType != memory.RelEmotion {
		t.Errorf("RelType = %v, want EMOTIONAL", got.Relationships[0].RelType)
	}
}

func TestLLM_Extract_StripsMarkdownFence(t *testing.T) {
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: "```json\n{\"entities\": [{\"name\": \"Bob\", \"type\": \"PERSON\"}]}\n```",
	}}
	ex := NewLLM(p)

	got, err := ex.Extract(context.Background(), "text", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Entities) != 1 || got.Entities[0].Name != "Bob" {
		t.Fatalf("got %+v", got)
	}
}

func TestLLM_Extract_ProviderErrorReturnsEmptyNotError(t *testing.T) {
	p := &mock.Provider{CompleteErr: errors.New("boom")}
	ex := NewLLM(p)

	got, err := ex.Extract(context.Background(), "text", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("want nil error, got %v", err)
	}
	if len(got.Entities) != 0 || len(got.Relationships) != 0 {
		t.Fatalf("want empty extraction, got %+v", got)
	}
}

func TestLLM_Extract_MalformedJSONReturnsEmptyNotError(t *testing.T) {
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "not json at all"}}
	ex := NewLLM(p)

	got, err := ex.Extract(context.Background(), "text", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("want nil error, got %v", err)
	}
	if len(got.Entities) != 0 {
		t.Fatalf("want empty extraction, got %+v", got)
	}
}

func TestBuildPrompt_IncludesContextEntities(t *testing.T) {
	prompt := buildPrompt("text", []string{"Alice", "Bob"}, "2026-07-30")
	if !strings.Contains(prompt, "Alice") || !strings.Contains(prompt, "Bob") {
		t.Errorf("prompt missing context entities: %s", prompt)
	}
}

func TestBuildPrompt_OmitsBlockWhenNoContextEntities(t *testing.T) {
	prompt := buildPrompt("text", nil, "2026-07-30")
	if strings.Contains(prompt, "already exist in the knowledge graph") {
		t.Errorf("expected no context block, got: %s", prompt)
	}
}
