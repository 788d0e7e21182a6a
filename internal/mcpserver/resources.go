package mcpserver

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	memoriesURITemplate = "kioku://memories/{date}"
	entitiesURITemplate = "kioku://entities/{name}"
)

// registerResources binds the two read-only resource templates: the raw
// markdown for a processing date, and a rendered profile for an entity.
// Both return a placeholder body rather than an error when the date or
// entity is unknown, matching [service.Service]'s own not-found handling.
func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcpsdk.ResourceTemplate{
		URITemplate: memoriesURITemplate,
		Name:        "memories-by-date",
		Description: "Raw markdown log for a single processing date (YYYY-MM-DD).",
		MIMEType:    "text/markdown",
	}, s.readMemoryResource)

	s.mcp.AddResourceTemplate(&mcpsdk.ResourceTemplate{
		URITemplate: entitiesURITemplate,
		Name:        "entity-profile",
		Description: "Rendered knowledge-graph profile for a single entity.",
		MIMEType:    "text/markdown",
	}, s.readEntityResource)
}

func (s *Server) readMemoryResource(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	date, err := lastSegment(req.Params.URI, "memories/")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: memories resource: %w", err)
	}

	content, err := s.svc.ReadMemoryResource(date)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: memories resource: %w", err)
	}

	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{
			{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     content,
			},
		},
	}, nil
}

func (s *Server) readEntityResource(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	name, err := lastSegment(req.Params.URI, "entities/")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: entities resource: %w", err)
	}

	content, err := s.svc.ReadEntityResource(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: entities resource: %w", err)
	}

	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{
			{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     content,
			},
		},
	}, nil
}

// lastSegment extracts the path component following prefix from a resolved
// resource URI, e.g. "kioku://memories/2026-01-05" with prefix "memories/"
// yields "2026-01-05".
func lastSegment(uri, prefix string) (string, error) {
	idx := strings.Index(uri, prefix)
	if idx < 0 {
		return "", fmt.Errorf("malformed resource URI %q: missing %q segment", uri, prefix)
	}
	seg := uri[idx+len(prefix):]
	if seg == "" {
		return "", fmt.Errorf("malformed resource URI %q: empty identifier", uri)
	}
	return seg, nil
}
