package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/glyphoxa/internal/observe"
	"github.com/MrWong99/glyphoxa/pkg/memory"
	"github.com/MrWong99/glyphoxa/pkg/provider/llm"
	"github.com/MrWong99/glyphoxa/pkg/types"
)

var _ Extractor = (*LLM)(nil)

// LLM extracts entities and relationships by prompting a chat completion
// model for a JSON object and parsing its response.
type LLM struct {
	provider llm.Provider
}

// NewLLM wraps provider as an [Extractor].
func NewLLM(provider llm.Provider) *LLM {
	return &LLM{provider: provider}
}

const promptTemplate = `Extract entities, relationships, and event time from this personal diary entry.

Return a JSON object with:
- "entities": array of objects with "name" (string) and "type" ("PERSON"|"PLACE"|"EVENT"|"EMOTION"|"TOPIC"|"PRODUCT")
- "relationships": array of objects with "source" (string), "target" (string), "type" ("CAUSAL"|"EMOTIONAL"|"TEMPORAL"|"TOPICAL"|"INVOLVES"), "weight" (0.0-1.0), "evidence" (string)
- "event_time": string (YYYY-MM-DD), the date the event ACTUALLY happened (not when it was recorded). Resolve relative time expressions ("yesterday", "last week", "last year", a bare month name, an age) relative to the processing date. If unclear or happening today, return null.

Rules:
- Extract ALL people, places, emotions, events, and topics mentioned
- "weight" reflects how strong the connection is (0.1=weak, 1.0=very strong)
- "evidence" is the exact quote from the text that supports this relationship
- Keep entity names short and consistent
%s- Return ONLY valid JSON, no markdown, no explanation

Processing date: %s

Text: %s`

func buildPrompt(text string, contextEntities []string, processingDate string) string {
	contextBlock := ""
	if len(contextEntities) > 0 {
		list := contextEntities
		if len(list) > 30 {
			list = list[:30]
		}
		contextBlock = fmt.Sprintf(
			"- IMPORTANT: these entities already exist in the knowledge graph: [%s]. "+
				"If the text refers to one of these (synonym, nickname, abbreviation, pronoun), "+
				"use the EXISTING canonical name instead of creating a new one.\n",
			strings.Join(list, ", "),
		)
	}
	date := processingDate
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf(promptTemplate, contextBlock, date, text)
}

// Extract implements [Extractor]. Any failure (provider error or malformed
// response) is logged and swallowed, returning a zero-value
// [memory.Extraction] rather than an error: a failed extraction must not
// block the write path.
func (l *LLM) Extract(ctx context.Context, text string, contextEntities []string, processingDate string) (memory.Extraction, error) {
	prompt := buildPrompt(text, contextEntities, processingDate)

	resp, err := l.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		observe.Logger(ctx).Warn("entity extraction request failed", "error", err)
		return memory.Extraction{}, nil
	}

	extraction, err := parseResponse(resp.Content)
	if err != nil {
		observe.Logger(ctx).Warn("entity extraction response unparsable", "error", err)
		return memory.Extraction{}, nil
	}
	return extraction, nil
}

type rawEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type rawRelationship struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	RelType  string  `json:"type"`
	Weight   float64 `json:"weight"`
	Evidence string  `json:"evidence"`
}

type rawExtraction struct {
	Entities      []rawEntity       `json:"entities"`
	Relationships []rawRelationship `json:"relationships"`
	EventTime     *string           `json:"event_time"`
}

// parseResponse extracts the JSON object from a chat completion's raw text,
// tolerating a markdown code fence and preamble/trailing text around it.
func parseResponse(text string) (memory.Extraction, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx != -1 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return memory.Extraction{}, fmt.Errorf("extractor: no JSON object found in response")
	}
	text = text[start : end+1]

	var raw rawExtraction
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return memory.Extraction{}, fmt.Errorf("extractor: unmarshal: %w", err)
	}

	out := memory.Extraction{}
	for _, e := range raw.Entities {
		if e.Name == "" || e.Type == "" {
			continue
		}
		out.Entities = append(out.Entities, memory.Entity{
			Name: e.Name,
			Type: memory.EntityType(e.Type),
		})
	}
	for _, r := range raw.Relationships {
		if r.Source == "" || r.Target == "" {
			continue
		}
		relType := r.RelType
		if relType == "" {
			relType = string(memory.RelTopical)
		}
		weight := r.Weight
		if weight == 0 {
			weight = 0.5
		}
		out.Relationships = append(out.Relationships, memory.Relationship{
			SourceName: r.Source,
			TargetName: r.Target,
			RelType:    memory.RelationType(relType),
			Weight:     weight,
			Evidence:   r.Evidence,
		})
	}
	if raw.EventTime != nil {
		out.EventDate = *raw.EventTime
	}
	return out, nil
}
