// Package graphsearch implements the knowledge-graph read leg of a search
// request: turning free-form query text (or an explicit entity list) into
// seed entities, traversing outward from each, and emitting one search hit
// per discovered edge.
package graphsearch

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

// maxSeeds bounds how many ranked seed entities are traversed, to avoid a
// combinatorial explosion of edges from a broad query.
const maxSeeds = 5

// seedsPerToken bounds how many entity matches are kept per query token.
const seedsPerToken = 3

// traverseMaxHops is the fixed hop radius used for the read-leg traversal.
const traverseMaxHops = 2

var stopwords = map[string]bool{
	"là": true, "và": true, "của": true, "có": true, "cho": true, "với": true,
	"được": true, "này": true, "đó": true, "các": true, "một": true,
	"những": true, "trong": true, "để": true, "từ": true, "theo": true,
	"về": true, "hay": true, "hoặc": true, "nhưng": true, "mà": true,
	"nếu": true, "khi": true, "thì": true, "đã": true, "sẽ": true,
	"đang": true, "rồi": true, "nào": true, "gì": true, "thế": true,
	"sao": true, "tại": true, "vì": true, "bị": true, "do": true,
	"qua": true, "lại": true, "như": true, "hơn": true, "nhất": true,
	"rất": true, "quá": true, "cũng": true, "vẫn": true, "còn": true,
	"chỉ": true, "tôi": true, "anh": true, "em": true, "bạn": true,
	"mình": true, "chúng": true, "họ": true, "ai": true,
	"the": true, "is": true, "are": true, "was": true, "were": true,
	"what": true, "who": true, "how": true, "why": true,
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)

// Search finds graph hits related to query, or directly to entities when
// supplied (bypassing tokenization). limit bounds both the per-seed
// traversal size and the final result count.
func Search(ctx context.Context, idx memory.GraphIndex, query string, limit int, entities []string) ([]memory.SearchHit, error) {
	seeds, err := collectSeeds(ctx, idx, query, entities)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return []memory.SearchHit{}, nil
	}

	sort.SliceStable(seeds, func(i, j int) bool {
		return seeds[i].MentionCount > seeds[j].MentionCount
	})
	if len(seeds) > maxSeeds {
		seeds = seeds[:maxSeeds]
	}

	seenHashes := make(map[string]bool)
	var hits []memory.SearchHit

	for _, seed := range seeds {
		result, err := idx.Traverse(ctx, seed.Name, traverseMaxHops, limit)
		if err != nil {
			return nil, err
		}
		for _, edge := range result.Edges {
			dedupKey := edge.SourceHash
			if dedupKey == "" {
				dedupKey = edge.Evidence
			}
			if dedupKey == "" || seenHashes[dedupKey] {
				continue
			}
			seenHashes[dedupKey] = true
			hits = append(hits, memory.SearchHit{
				Content:     edge.Evidence,
				Score:       edge.Weight,
				Source:      "graph",
				ContentHash: edge.SourceHash,
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func collectSeeds(ctx context.Context, idx memory.GraphIndex, query string, entities []string) ([]memory.Entity, error) {
	seedMap := make(map[string]memory.Entity)

	if len(entities) > 0 {
		for _, name := range entities {
			found, err := idx.SearchEntities(ctx, name, seedsPerToken)
			if err != nil {
				return nil, err
			}
			addSeeds(seedMap, found)
		}
		return seedMapValues(seedMap), nil
	}

	for _, token := range meaningfulTokens(query) {
		found, err := idx.SearchEntities(ctx, token, seedsPerToken)
		if err != nil {
			return nil, err
		}
		addSeeds(seedMap, found)
	}
	return seedMapValues(seedMap), nil
}

func addSeeds(seedMap map[string]memory.Entity, found []memory.Entity) {
	for _, e := range found {
		if _, ok := seedMap[e.Name]; !ok {
			seedMap[e.Name] = e
		}
	}
}

func seedMapValues(seedMap map[string]memory.Entity) []memory.Entity {
	out := make([]memory.Entity, 0, len(seedMap))
	for _, e := range seedMap {
		out = append(out, e)
	}
	return out
}

// meaningfulTokens tokenizes query on Unicode word boundaries, lowercases,
// and drops stopwords and tokens shorter than 2 characters.
func meaningfulTokens(query string) []string {
	tokens := wordPattern.FindAllString(strings.ToLower(query), -1)
	var out []string
	for _, t := range tokens {
		if stopwords[t] || len([]rune(t)) < 2 {
			continue
		}
		out = append(out, t)
	}
	return out
}
