package extractor

import (
	"context"
	"strings"
	"unicode"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

var _ Extractor = (*RuleBased)(nil)

// RuleBased is a dependency-free heuristic extractor used when no LLM
// provider is configured or reachable. It trades recall and precision for
// zero latency and zero external calls.
type RuleBased struct{}

// NewRuleBased constructs a RuleBased extractor.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

var emotionKeywords = []string{
	"vui", "buồn", "stressed", "happy", "căng thẳng", "khỏe", "trầm cảm", "lo lắng",
}

// capitalizedStopwords are common Vietnamese words that happen to be
// capitalized at the start of a sentence, excluded from the person heuristic.
var capitalizedStopwords = map[string]bool{
	"hôm": true, "sáng": true, "tối": true, "đọc": true,
	"cảm": true, "bị": true, "đi": true, "gọi": true,
}

// Extract implements [Extractor] with a keyword and capitalization heuristic:
// known emotion words become EMOTION entities, capitalized alphabetic words
// (outside a small stopword list) become PERSON entities, and an EMOTIONAL
// relationship is recorded between every detected person and every detected
// emotion. It never returns an error.
func (RuleBased) Extract(ctx context.Context, text string, contextEntities []string, processingDate string) (memory.Extraction, error) {
	lower := strings.ToLower(text)

	var entities []memory.Entity
	for _, kw := range emotionKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			entities = append(entities, memory.Entity{Name: kw, Type: memory.EntityEmotion})
		}
	}

	for _, w := range strings.Fields(text) {
		if !isCapitalizedWord(w) {
			continue
		}
		if capitalizedStopwords[strings.ToLower(w)] {
			continue
		}
		entities = append(entities, memory.Entity{Name: w, Type: memory.EntityPerson})
	}

	var relationships []memory.Relationship
	evidence := text
	if len(evidence) > 100 {
		evidence = evidence[:100]
	}
	for _, p := range entities {
		if p.Type != memory.EntityPerson {
			continue
		}
		for _, e := range entities {
			if e.Type != memory.EntityEmotion {
				continue
			}
			relationships = append(relationships, memory.Relationship{
				SourceName: p.Name,
				TargetName: e.Name,
				RelType:    memory.RelEmotion,
				Weight:     0.6,
				Evidence:   evidence,
			})
		}
	}

	return memory.Extraction{Entities: entities, Relationships: relationships}, nil
}

// isCapitalizedWord reports whether w is a purely alphabetic word of more
// than one rune starting with an uppercase letter.
func isCapitalizedWord(w string) bool {
	runes := []rune(w)
	if len(runes) <= 1 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
