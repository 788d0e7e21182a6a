package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama", "hashembed"},
}

// Load reads the YAML configuration file at path, applies KIOKU_-prefixed
// environment variable overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// lookupFunc matches os.LookupEnv's signature, parameterized so tests can
// inject a fixed environment without mutating process state.
type lookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg's fields from KIOKU_-prefixed environment variables,
// applied after YAML decode so the file sets defaults and the environment
// wins.
func ApplyEnv(cfg *Config, lookup lookupFunc) {
	if v, ok := lookup("KIOKU_USER_ID"); ok {
		cfg.User.ID = v
	}
	if v, ok := lookup("KIOKU_MEMORY_DIR"); ok {
		cfg.Paths.MemoryDir = v
	}
	if v, ok := lookup("KIOKU_DATA_DIR"); ok {
		cfg.Paths.DataDir = v
	}
	if v, ok := lookup("KIOKU_CHROMA_MODE"); ok {
		cfg.Vector.Mode = ChromaMode(v)
	}
	if v, ok := lookup("KIOKU_CHROMA_HOST"); ok {
		cfg.Vector.Host = v
	}
	if v, ok := lookup("KIOKU_CHROMA_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vector.Port = n
		}
	}
	if v, ok := lookup("KIOKU_CHROMA_PERSIST_DIR"); ok {
		cfg.Vector.PersistDir = v
	}
	if v, ok := lookup("KIOKU_FALKORDB_HOST"); ok {
		cfg.Graph.Host = v
	}
	if v, ok := lookup("KIOKU_FALKORDB_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Graph.Port = n
		}
	}
	if v, ok := lookup("KIOKU_OLLAMA_HOST"); ok {
		cfg.Embedder.Host = v
	}
	if v, ok := lookup("KIOKU_OLLAMA_MODEL"); ok {
		cfg.Embedder.Model = v
	}
	if v, ok := lookup("KIOKU_ANTHROPIC_API_KEY"); ok {
		cfg.LLM.APIKey = v
		if cfg.LLM.Name == "" {
			cfg.LLM.Name = "anthropic"
		}
	}
}

// VectorCollectionName derives the vector collection name from a user id:
// "memories" for the default tenant, "memories_<user>" otherwise.
func VectorCollectionName(userID string) string {
	if userID == "" || userID == "default" {
		return "memories"
	}
	return "memories_" + userID
}

// GraphName derives the graph name from a user id: "kioku_kg" for the
// default tenant, "kioku_kg_<user>" otherwise.
func GraphName(userID string) string {
	if userID == "" || userID == "default" {
		return "kioku_kg"
	}
	return "kioku_kg_" + userID
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.LLM.Name)

	if cfg.Vector.Mode != "" && cfg.Vector.Mode != ChromaModeServer && cfg.Vector.Mode != ChromaModeEmbedded && cfg.Vector.Mode != ChromaModeAuto {
		errs = append(errs, fmt.Errorf("vector.mode %q is invalid; valid values: server, embedded, auto", cfg.Vector.Mode))
	}

	if cfg.Vector.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("vector.dimensions must be non-negative, got %d", cfg.Vector.Dimensions))
	}

	if cfg.MCP.Transport != "" && !cfg.MCP.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("mcp.transport %q is invalid; valid values: stdio, streamable-http", cfg.MCP.Transport))
	}
	if cfg.MCP.Transport == TransportStreamableHTTP && cfg.MCP.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("mcp.listen_addr is required when transport is streamable-http"))
	}

	if cfg.LLM.Name == "" {
		slog.Warn("no LLM provider configured; entity/relationship extraction will fall back to the rule-based extractor")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
