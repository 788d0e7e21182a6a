// Package extractor turns free-form memory text into the entities and
// relationships that populate the knowledge graph.
//
// Two implementations are provided: [LLM], which prompts a chat completion
// model for structured JSON, and [RuleBased], a dependency-free heuristic
// fallback used when no LLM provider is configured or reachable. Extraction
// failure is never propagated as a fatal error from either implementation —
// the caller always gets a (possibly empty) [memory.Extraction] so a write
// never blocks on the graph leg.
package extractor

import (
	"context"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

// Extractor produces graph data from memory text.
type Extractor interface {
	// Extract analyzes text and returns the entities, relationships, and
	// optional inferred event date found in it. contextEntities are
	// existing canonical entity names offered for disambiguation.
	// processingDate is used to resolve relative time expressions.
	Extract(ctx context.Context, text string, contextEntities []string, processingDate string) (memory.Extraction, error)
}
