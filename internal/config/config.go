// Package config provides the configuration schema, loader, and provider
// registry for kioku.
package config

// Config is the root configuration structure for kioku. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader], then overridden
// by KIOKU_-prefixed environment variables (see [ApplyEnv]).
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	User     UserConfig     `yaml:"user"`
	Paths    PathsConfig    `yaml:"paths"`
	Vector   VectorConfig   `yaml:"vector"`
	Graph    GraphConfig    `yaml:"graph"`
	Embedder EmbedderConfig `yaml:"embedder"`
	LLM      ProviderEntry  `yaml:"llm"`
	MCP      MCPServerConfig `yaml:"mcp"`
}

// ServerConfig holds logging settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel selects slog verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognized log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Transport selects how kioku's MCP tool server is exposed.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is one of the recognized transports.
func (t Transport) IsValid() bool {
	switch t {
	case TransportStdio, TransportStreamableHTTP:
		return true
	}
	return false
}

// UserConfig names the tenant namespace a single kioku instance serves.
type UserConfig struct {
	// ID is the tenant namespace suffix applied to vector collection and
	// graph names. "default" (or empty) disables the suffix.
	ID string `yaml:"id"`
}

// PathsConfig declares where kioku's on-disk state lives.
type PathsConfig struct {
	// MemoryDir holds the MarkdownLog's *.md files.
	MemoryDir string `yaml:"memory_dir"`

	// DataDir holds the relational/FTS database and any embedded vector
	// index persistence directory.
	DataDir string `yaml:"data_dir"`
}

// ChromaMode selects how [pkg/memory/vector] connects to its backend.
type ChromaMode string

const (
	ChromaModeServer   ChromaMode = "server"
	ChromaModeEmbedded ChromaMode = "embedded"
	ChromaModeAuto     ChromaMode = "auto"
)

// VectorConfig configures the dense-vector ANN backend.
type VectorConfig struct {
	Mode        ChromaMode `yaml:"mode"`
	Host        string     `yaml:"host"`
	Port        int        `yaml:"port"`
	PersistDir  string     `yaml:"persist_dir"`
	Dimensions  int        `yaml:"dimensions"`
}

// GraphConfig configures the knowledge-graph backend.
type GraphConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EmbedderConfig configures the embeddings provider used by VectorIndex.
type EmbedderConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// ProviderEntry is the common configuration block shared by pluggable
// provider types (LLM, embeddings).
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "anthropic", "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`
}

// MCPServerConfig describes the listen settings for kioku's own MCP tool
// server (kioku is the server, never a client, in this role).
type MCPServerConfig struct {
	// Transport is the server transport. Valid values: "stdio", "streamable-http".
	Transport Transport `yaml:"transport"`

	// ListenAddr is the TCP address to listen on when Transport is streamable-http.
	ListenAddr string `yaml:"listen_addr"`
}
