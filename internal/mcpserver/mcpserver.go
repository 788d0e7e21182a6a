// Package mcpserver exposes [service.Service] as a Model Context Protocol
// server: seven tools (save_memory, search_memories, recall_related,
// explain_connection, list_entities, list_memory_dates, get_timeline) and two
// read-only resources (memories/{date}, entities/{name}).
//
// It is built on the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk)
// and uses only its server side: the module is the server being connected to.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/glyphoxa/internal/observe"
	"github.com/MrWong99/glyphoxa/internal/service"
)

// Server wraps a [service.Service] with an MCP-facing tool and resource
// registry. The zero value is not usable; create instances with [New].
type Server struct {
	svc *service.Service
	mcp *mcpsdk.Server
}

// Implementation identifies this server to connecting MCP clients.
var Implementation = &mcpsdk.Implementation{
	Name:    "kioku",
	Version: "1.0.0",
}

// New builds a ready-to-serve [Server] wired to svc. All tools and both
// resources are registered before New returns.
func New(svc *service.Service) *Server {
	s := &Server{
		svc: svc,
		mcp: mcpsdk.NewServer(Implementation, nil),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves the MCP protocol over transport until ctx is cancelled or the
// transport closes. The typical transport is [mcpsdk.StdioTransport] for a
// subprocess-style server; the streamable HTTP variant does not go through
// Run but is served by the handler from [Server.HTTPHandler].
func (s *Server) Run(ctx context.Context, transport mcpsdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}

// HTTPHandler returns an http.Handler serving this server over the
// streamable HTTP transport, for callers that want to mount it on their own
// [net/http.ServeMux] rather than go through Run.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

// recordToolCall increments the tool-call counter for tool with status "ok"
// or "error". Every tool handler calls it after recording its own duration.
func recordToolCall(ctx context.Context, tool string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observe.DefaultMetrics().RecordToolCall(ctx, tool, status)
}

// toolError formats a handler error as MCP tool call content carrying
// IsError, per the SDK's convention for application-level (as opposed to
// transport-level) failures.
func toolError(err error) (*mcpsdk.CallToolResult, any, error) {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}, nil, nil
}

// toolOK wraps a successful structured result for return to the SDK, which
// serialises it as the tool's StructuredContent.
func toolOK(result any) (*mcpsdk.CallToolResult, any, error) {
	return &mcpsdk.CallToolResult{}, result, nil
}

func wrapErr(tool string, err error) error {
	return fmt.Errorf("mcpserver: %s: %w", tool, err)
}
