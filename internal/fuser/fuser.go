// Package fuser merges ranked result lists from independent search backends
// into a single ranking via Reciprocal Rank Fusion (RRF).
package fuser

import (
	"sort"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

// DefaultK is the standard RRF constant.
const DefaultK = 60

// Fuse merges one or more ordered hit lists into a single list ranked by
// accumulated RRF score, truncated to limit. Each hit at zero-based rank r
// within its source list contributes 1/(k+r+1) to its group; the grouping
// key is Content (exact match). The first-seen representative of each group
// is emitted with Score overwritten by the accumulated sum. Ties preserve
// the order groups were first encountered (stable).
func Fuse(k, limit int, lists ...[]memory.SearchHit) []memory.SearchHit {
	if k <= 0 {
		k = DefaultK
	}

	type group struct {
		hit   memory.SearchHit
		score float64
	}

	order := make([]string, 0)
	groups := make(map[string]*group)

	for _, list := range lists {
		for rank, hit := range list {
			contribution := 1.0 / float64(k+rank+1)
			g, ok := groups[hit.Content]
			if !ok {
				g = &group{hit: hit}
				groups[hit.Content] = g
				order = append(order, hit.Content)
			}
			g.score += contribution
		}
	}

	ranked := make([]*group, 0, len(order))
	for _, key := range order {
		ranked = append(ranked, groups[key])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]memory.SearchHit, len(ranked))
	for i, g := range ranked {
		hit := g.hit
		hit.Score = g.score
		out[i] = hit
	}
	return out
}
