package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/glyphoxa/internal/config"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings"
	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

const sampleYAML = `
server:
  log_level: info

user:
  id: alice

paths:
  memory_dir: /data/memories
  data_dir: /data/kioku

vector:
  mode: server
  host: localhost
  port: 8000
  dimensions: 1536

graph:
  host: localhost
  port: 6379

embedder:
  host: http://localhost:11434
  model: nomic-embed-text

llm:
  name: anthropic
  api_key: sk-test
  model: claude-3-haiku-20240307

mcp:
  transport: stdio
`

func TestLoadFromReader_ParsesFullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.User.ID != "alice" {
		t.Errorf("User.ID = %q, want alice", cfg.User.ID)
	}
	if cfg.Vector.Mode != config.ChromaModeServer {
		t.Errorf("Vector.Mode = %q, want server", cfg.Vector.Mode)
	}
	if cfg.Vector.Dimensions != 1536 {
		t.Errorf("Vector.Dimensions = %d, want 1536", cfg.Vector.Dimensions)
	}
	if cfg.LLM.Name != "anthropic" || cfg.LLM.APIKey != "sk-test" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.MCP.Transport != config.TransportStdio {
		t.Errorf("MCP.Transport = %q, want stdio", cfg.MCP.Transport)
	}
}

// ── errTest sentinel, per the teacher's one-per-package convention ──────────

var errTest = errors.New("test error")

func TestRegistry_CreateLLM_UnregisteredNameReturnsWrappedError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want wrapping ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateLLM_UsesRegisteredFactory(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterLLM("fake", func(entry config.ProviderEntry) (llm.Provider, error) {
		return &fakeLLM{model: entry.Model}, nil
	})

	p, err := r.CreateLLM(config.ProviderEntry{Name: "fake", Model: "test-model"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p.(*fakeLLM).model != "test-model" {
		t.Errorf("model = %q, want test-model", p.(*fakeLLM).model)
	}
}

func TestRegistry_CreateLLM_PropagatesFactoryError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, errTest
	})

	_, err := r.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
}

func TestRegistry_CreateEmbeddings_UsesRegisteredFactory(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterEmbeddings("fake", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return &fakeEmbedder{dims: 8}, nil
	})

	p, err := r.CreateEmbeddings(config.ProviderEntry{Name: "fake"})
	if err != nil {
		t.Fatalf("CreateEmbeddings: %v", err)
	}
	if p.Dimensions() != 8 {
		t.Errorf("Dimensions() = %d, want 8", p.Dimensions())
	}
}

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeLLM struct{ model string }

func (f *fakeLLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return nil, errTest
}
func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: ""}, nil
}
func (f *fakeLLM) CountTokens(messages []types.Message) (int, error) { return 0, nil }
func (f *fakeLLM) Capabilities() types.ModelCapabilities             { return types.ModelCapabilities{} }

type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dims), nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int  { return f.dims }
func (f *fakeEmbedder) ModelID() string  { return "fake" }
