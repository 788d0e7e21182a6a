package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/glyphoxa/internal/config"
)

func TestLoadFromReader_DecodesAndValidates(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: info
user:
  id: alice
llm:
  name: anthropic
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.User.ID != "alice" || cfg.LLM.Name != "anthropic" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  unknown_field: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected log_level error, got: %v", err)
	}
}

func TestValidate_RejectsInvalidVectorMode(t *testing.T) {
	t.Parallel()
	yaml := `
vector:
  mode: turbo
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "vector.mode") {
		t.Fatalf("expected vector.mode error, got: %v", err)
	}
}

func TestValidate_StreamableHTTPRequiresListenAddr(t *testing.T) {
	t.Parallel()
	yaml := `
mcp:
  transport: streamable-http
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "listen_addr") {
		t.Fatalf("expected listen_addr error, got: %v", err)
	}
}

func TestValidate_StdioTransportNeedsNoListenAddr(t *testing.T) {
	t.Parallel()
	yaml := `
mcp:
  transport: stdio
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyEnv_OverridesFileValues(t *testing.T) {
	t.Parallel()
	yaml := `
user:
  id: file-user
paths:
  memory_dir: /file/memories
`
	env := map[string]string{
		"KIOKU_USER_ID":    "env-user",
		"KIOKU_MEMORY_DIR": "/env/memories",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	config.ApplyEnv(cfg, lookup)

	if cfg.User.ID != "env-user" {
		t.Errorf("User.ID = %q, want env-user", cfg.User.ID)
	}
	if cfg.Paths.MemoryDir != "/env/memories" {
		t.Errorf("Paths.MemoryDir = %q, want /env/memories", cfg.Paths.MemoryDir)
	}
}

func TestVectorCollectionName(t *testing.T) {
	t.Parallel()
	if got := config.VectorCollectionName(""); got != "memories" {
		t.Errorf("VectorCollectionName(\"\") = %q, want memories", got)
	}
	if got := config.VectorCollectionName("default"); got != "memories" {
		t.Errorf("VectorCollectionName(default) = %q, want memories", got)
	}
	if got := config.VectorCollectionName("alice"); got != "memories_alice" {
		t.Errorf("VectorCollectionName(alice) = %q, want memories_alice", got)
	}
}

func TestGraphName(t *testing.T) {
	t.Parallel()
	if got := config.GraphName(""); got != "kioku_kg" {
		t.Errorf("GraphName(\"\") = %q, want kioku_kg", got)
	}
	if got := config.GraphName("alice"); got != "kioku_kg_alice" {
		t.Errorf("GraphName(alice) = %q, want kioku_kg_alice", got)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	found := false
	for _, n := range llmNames {
		if n == "anthropic" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"anthropic\"")
	}
}
