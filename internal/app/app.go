// Package app wires kioku's subsystems into a running application.
//
// App owns the full lifecycle: New connects the keyword, vector, and graph
// backends (each with its own config-selected fallback ladder), constructs
// the extractor, the markdown log, the [service.Service], and the MCP
// server, and Shutdown tears everything down in reverse order.
//
// For testing, inject backend implementations directly via functional
// options (WithKeywordIndex, WithVectorIndex, etc.). When an option is not
// provided, New creates a real implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/glyphoxa/internal/config"
	"github.com/MrWong99/glyphoxa/internal/extractor"
	"github.com/MrWong99/glyphoxa/internal/health"
	"github.com/MrWong99/glyphoxa/internal/markdownlog"
	"github.com/MrWong99/glyphoxa/internal/mcpserver"
	"github.com/MrWong99/glyphoxa/internal/resilience"
	"github.com/MrWong99/glyphoxa/internal/service"
	"github.com/MrWong99/glyphoxa/pkg/memory"
	"github.com/MrWong99/glyphoxa/pkg/memory/graph/inmemory"
	"github.com/MrWong99/glyphoxa/pkg/memory/graph/neo4j"
	"github.com/MrWong99/glyphoxa/pkg/memory/sqlitekw"
	"github.com/MrWong99/glyphoxa/pkg/memory/vector/embedded"
	"github.com/MrWong99/glyphoxa/pkg/memory/vector/ephemeral"
	"github.com/MrWong99/glyphoxa/pkg/memory/vector/pgvec"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings/hashembed"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings/ollama"
	"github.com/MrWong99/glyphoxa/pkg/provider/embeddings/openai"
	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
)

// Providers holds one interface value per pluggable provider slot. Nil means
// the provider is not configured and New falls through to the next rung of
// the relevant fallback ladder. Populated by cmd/kioku/main.go via the
// config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the kioku memory server.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	keyword memory.KeywordIndex
	vector  memory.VectorIndex
	graph   memory.GraphIndex
	svc     *service.Service
	mcp     *mcpserver.Server

	// closers are called in reverse-init order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKeywordIndex injects a keyword index instead of creating one from config.
func WithKeywordIndex(k memory.KeywordIndex) Option {
	return func(a *App) { a.keyword = k }
}

// WithVectorIndex injects a vector index instead of creating one from config.
func WithVectorIndex(v memory.VectorIndex) Option {
	return func(a *App) { a.vector = v }
}

// WithGraphIndex injects a graph index instead of creating one from config.
func WithGraphIndex(g memory.GraphIndex) Option {
	return func(a *App) { a.graph = g }
}

// ─── New ─────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers
// struct comes from cmd/kioku/main.go (populated via the config registry).
// Use Option functions to inject test doubles for any backend.
//
// New performs all initialisation synchronously: embedder ladder, vector
// backend, keyword backend, graph backend, extractor, markdown log,
// service, and MCP server construction.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	embedder, err := a.buildEmbedder()
	if err != nil {
		return nil, fmt.Errorf("app: build embedder: %w", err)
	}

	if err := a.initVector(ctx, embedder); err != nil {
		return nil, fmt.Errorf("app: init vector index: %w", err)
	}
	if err := a.initKeyword(ctx); err != nil {
		return nil, fmt.Errorf("app: init keyword index: %w", err)
	}
	if err := a.initGraph(ctx); err != nil {
		return nil, fmt.Errorf("app: init graph index: %w", err)
	}

	ext := a.buildExtractor()

	log := markdownlog.Open(a.cfg.Paths.MemoryDir)

	a.svc = service.New(a.keyword, a.vector, a.graph, ext, log)
	a.mcp = mcpserver.New(a.svc)

	return a, nil
}

// buildEmbedder assembles the Ollama→OpenAI→hashembed fallback ladder named
// by spec §7. An injected providers.Embeddings, when set, is used as the
// sole primary instead of the ladder (test/override path).
func (a *App) buildEmbedder() (embeddings.Provider, error) {
	if a.providers != nil && a.providers.Embeddings != nil {
		return a.providers.Embeddings, nil
	}

	dims := a.cfg.Vector.Dimensions
	if dims == 0 {
		dims = 768
	}

	var primary embeddings.Provider
	var primaryName string

	if a.cfg.Embedder.Host != "" {
		p, err := ollama.New(a.cfg.Embedder.Host, a.cfg.Embedder.Model)
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: %w", err)
		}
		primary, primaryName = p, "ollama"
	}

	fallback := resilience.NewEmbeddingsFallback(
		orZeroEmbedder(primary, dims),
		orDefault(primaryName, "hashembed"),
		resilience.FallbackConfig{},
	)

	if a.cfg.LLM.APIKey != "" {
		p, err := openai.New(a.cfg.LLM.APIKey, a.cfg.Embedder.Model)
		if err != nil {
			slog.Warn("openai embedder unavailable, skipping fallback rung", "err", err)
		} else if primary != nil {
			fallback.AddFallback("openai", p)
		}
	}
	if primary != nil {
		fallback.AddFallback("hashembed", hashembed.New(dims))
	}

	return fallback, nil
}

// orZeroEmbedder returns provider if non-nil, otherwise a deterministic
// hashembed.Provider so the fallback group always has a usable primary.
func orZeroEmbedder(provider embeddings.Provider, dims int) embeddings.Provider {
	if provider != nil {
		return provider
	}
	return hashembed.New(dims)
}

func orDefault(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// initVector connects the vector backend named by cfg.Vector.Mode:
// "server" (pgvector against a Postgres DSN), "embedded" (on-disk brute
// force), or "auto" — which probes server, then embedded, then an
// in-memory ephemeral index, taking the first rung whose backend opens and
// answers Count() successfully.
func (a *App) initVector(ctx context.Context, embedder embeddings.Provider) error {
	if a.vector != nil {
		return nil
	}

	switch a.cfg.Vector.Mode {
	case config.ChromaModeServer:
		dsn := fmt.Sprintf("host=%s port=%d", a.cfg.Vector.Host, a.cfg.Vector.Port)
		dims := a.cfg.Vector.Dimensions
		if dims == 0 {
			dims = 768
		}
		ix, err := pgvec.Open(ctx, dsn, dims, embedder)
		if err != nil {
			return err
		}
		a.vector = ix
		a.closers = append(a.closers, ix.Close)

	case config.ChromaModeEmbedded:
		ix, err := embedded.Open(a.cfg.Vector.PersistDir, embedder)
		if err != nil {
			return err
		}
		a.vector = ix
		a.closers = append(a.closers, ix.Close)

	default: // auto: probe server, then embedded, then ephemeral; first rung
		// whose backend opens and answers Count() wins.
		if a.cfg.Vector.Host != "" {
			dsn := fmt.Sprintf("host=%s port=%d", a.cfg.Vector.Host, a.cfg.Vector.Port)
			dims := a.cfg.Vector.Dimensions
			if dims == 0 {
				dims = 768
			}
			if ix, err := pgvec.Open(ctx, dsn, dims, embedder); err == nil {
				if _, err := ix.Count(ctx); err == nil {
					a.vector = ix
					a.closers = append(a.closers, ix.Close)
					return nil
				}
				ix.Close()
			}
		}
		if a.cfg.Vector.PersistDir != "" {
			if ix, err := embedded.Open(a.cfg.Vector.PersistDir, embedder); err == nil {
				if _, err := ix.Count(ctx); err == nil {
					a.vector = ix
					a.closers = append(a.closers, ix.Close)
					return nil
				}
				ix.Close()
			}
		}
		a.vector = ephemeral.New(embedder)
	}
	return nil
}

// initKeyword connects the embedded SQLite/FTS5 keyword backend.
func (a *App) initKeyword(_ context.Context) error {
	if a.keyword != nil {
		return nil
	}
	dir := a.cfg.Paths.DataDir
	if dir == "" {
		return fmt.Errorf("paths.data_dir is required when a keyword index is not injected")
	}
	ix, err := sqlitekw.Open(dir + "/kioku.db")
	if err != nil {
		return err
	}
	a.keyword = ix
	a.closers = append(a.closers, ix.Close)
	return nil
}

// initGraph connects the graph backend: Neo4j when cfg.Graph.Host is set,
// the in-process graph otherwise (spec §7's "remote Falkor, else
// in-process" ladder, substituting Neo4j for the unavailable FalkorDB
// client — see DESIGN.md).
func (a *App) initGraph(ctx context.Context) error {
	if a.graph != nil {
		return nil
	}
	if a.cfg.Graph.Host == "" {
		a.graph = inmemory.New()
		return nil
	}
	uri := fmt.Sprintf("neo4j://%s:%d", a.cfg.Graph.Host, a.cfg.Graph.Port)
	ix, err := neo4j.Open(ctx, uri, "", "", "")
	if err != nil {
		slog.Warn("neo4j graph unavailable, falling back to in-process graph", "err", err)
		a.graph = inmemory.New()
		return nil
	}
	a.graph = ix
	a.closers = append(a.closers, ix.Close)
	return nil
}

// buildExtractor returns an LLM-backed extractor when an LLM provider is
// configured, falling back to the dependency-free rule-based extractor
// otherwise (the Extractor contract has no hard dependency on an LLM being
// present).
func (a *App) buildExtractor() extractor.Extractor {
	if a.providers != nil && a.providers.LLM != nil {
		return extractor.NewLLM(a.providers.LLM)
	}
	return extractor.NewRuleBased()
}

// ─── Accessors ───────────────────────────────────────────────────────────

// Service returns the wired business-logic singleton.
func (a *App) Service() *service.Service { return a.svc }

// MCPServer returns the wired MCP tool/resource server.
func (a *App) MCPServer() *mcpserver.Server { return a.mcp }

// HTTPHandler returns an http.Handler serving the MCP protocol over
// streamable HTTP, for callers using [config.TransportStreamableHTTP]
// instead of Run's stdio path.
func (a *App) HTTPHandler() http.Handler { return a.mcp.HTTPHandler() }

// Checkers returns one [health.Checker] per wired backend, suitable for
// [health.New]. Each checker issues a cheap read against its backend.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		{Name: "keyword", Check: func(ctx context.Context) error {
			_, err := a.keyword.Count(ctx)
			return err
		}},
		{Name: "vector", Check: func(ctx context.Context) error {
			_, err := a.vector.Count(ctx)
			return err
		}},
		{Name: "graph", Check: func(ctx context.Context) error {
			_, err := a.graph.GetCanonicalEntities(ctx, 1)
			return err
		}},
	}
}

// KeywordIndex returns the keyword backend. May be nil before New completes.
func (a *App) KeywordIndex() memory.KeywordIndex { return a.keyword }

// VectorIndex returns the vector backend. May be nil before New completes.
func (a *App) VectorIndex() memory.VectorIndex { return a.vector }

// GraphIndex returns the graph backend. May be nil before New completes.
func (a *App) GraphIndex() memory.GraphIndex { return a.graph }

// ─── Run ─────────────────────────────────────────────────────────────────

// Run serves the MCP protocol over transport until ctx is cancelled or the
// transport closes.
func (a *App) Run(ctx context.Context, transport mcpsdk.Transport) error {
	slog.Info("app running")
	return a.mcp.Run(ctx, transport)
}

// ─── Shutdown ──────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
