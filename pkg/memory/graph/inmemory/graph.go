// Package inmemory implements [memory.GraphIndex] entirely in process
// memory. This is the fallback rung of the knowledge-graph backend ladder,
// used when no remote graph database is reachable at construction time.
//
// Per the node/edge model, edges are kept as a flat ordered slice rather than
// pointer-linked adjacency lists, so no node ever holds a reference to
// another: the adjacency structure needed for BFS and shortest-path is built
// on demand inside each traversal call.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a name that does
// not contain the query substring to still count as a match. Catches typos
// and casing/spacing drift a plain Contains misses.
const fuzzyThreshold = 0.85

var _ memory.GraphIndex = (*Index)(nil)

type node struct {
	name         string // first-seen casing
	entityType   memory.EntityType
	mentionCount int
	firstSeen    string
	lastSeen     string
}

type edge struct {
	srcNorm, dstNorm string
	relType          memory.RelationType
	weight           float64
	evidence         string
	eventDate        string
	sourceHash       string
}

// Index is an in-memory [memory.GraphIndex].
type Index struct {
	mu    sync.RWMutex
	nodes map[string]*node // keyed by normalized name
	edges []edge
}

// New creates an empty in-memory graph index.
func New() *Index {
	return &Index{nodes: make(map[string]*node)}
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// Upsert implements [memory.GraphIndex.Upsert].
func (ix *Index) Upsert(ctx context.Context, extraction memory.Extraction, date string, timestamp time.Time, sourceHash string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, e := range extraction.Entities {
		norm := normalizeName(e.Name)
		if norm == "" {
			continue
		}
		if n, ok := ix.nodes[norm]; ok {
			n.mentionCount++
			n.lastSeen = date
		} else {
			ix.nodes[norm] = &node{
				name:         e.Name,
				entityType:   e.Type,
				mentionCount: 1,
				firstSeen:    date,
				lastSeen:     date,
			}
		}
	}

	for _, r := range extraction.Relationships {
		srcNorm, dstNorm := normalizeName(r.SourceName), normalizeName(r.TargetName)
		if srcNorm == "" || dstNorm == "" {
			continue
		}
		found := false
		for i := range ix.edges {
			ed := &ix.edges[i]
			if ed.srcNorm == srcNorm && ed.dstNorm == dstNorm && ed.relType == r.RelType {
				ed.weight = (ed.weight + r.Weight) / 2
				ed.evidence = r.Evidence
				ed.eventDate = r.EventDate
				ed.sourceHash = sourceHash
				found = true
				break
			}
		}
		if !found {
			ix.edges = append(ix.edges, edge{
				srcNorm: srcNorm, dstNorm: dstNorm, relType: r.RelType,
				weight: r.Weight, evidence: r.Evidence, eventDate: r.EventDate, sourceHash: sourceHash,
			})
		}
	}
	return nil
}

func (ix *Index) entity(norm string) memory.Entity {
	n := ix.nodes[norm]
	if n == nil {
		return memory.Entity{}
	}
	return memory.Entity{
		Name:         n.name,
		Type:         n.entityType,
		MentionCount: n.mentionCount,
		FirstSeen:    n.firstSeen,
		LastSeen:     n.lastSeen,
	}
}

func (ix *Index) relationship(e edge) memory.Relationship {
	return memory.Relationship{
		SourceName: ix.entity(e.srcNorm).Name,
		TargetName: ix.entity(e.dstNorm).Name,
		RelType:    e.relType,
		Weight:     e.weight,
		Evidence:   e.evidence,
		EventDate:  e.eventDate,
		SourceHash: e.sourceHash,
	}
}

// SearchEntities implements [memory.GraphIndex.SearchEntities]. Exact
// substring matches rank first by mention count; names that only pass the
// fuzzy threshold are appended after, ranked by similarity.
func (ix *Index) SearchEntities(ctx context.Context, query string, limit int) ([]memory.Entity, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	needle := normalizeName(query)
	var exact []memory.Entity
	type scored struct {
		entity memory.Entity
		score  float64
	}
	var fuzzy []scored
	for norm := range ix.nodes {
		if strings.Contains(norm, needle) {
			exact = append(exact, ix.entity(norm))
			continue
		}
		if score := matchr.JaroWinkler(needle, norm, false); score >= fuzzyThreshold {
			fuzzy = append(fuzzy, scored{entity: ix.entity(norm), score: score})
		}
	}
	sort.Slice(exact, func(i, j int) bool { return exact[i].MentionCount > exact[j].MentionCount })
	sort.Slice(fuzzy, func(i, j int) bool { return fuzzy[i].score > fuzzy[j].score })

	out := exact
	for _, s := range fuzzy {
		out = append(out, s.entity)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []memory.Entity{}
	}
	return out, nil
}

// adjacency builds an undirected adjacency list on demand.
func (ix *Index) adjacency() map[string][]edge {
	adj := make(map[string][]edge)
	for _, e := range ix.edges {
		adj[e.srcNorm] = append(adj[e.srcNorm], e)
		reverse := e
		reverse.srcNorm, reverse.dstNorm = e.dstNorm, e.srcNorm
		adj[e.dstNorm] = append(adj[e.dstNorm], reverse)
	}
	return adj
}

// Traverse implements [memory.GraphIndex.Traverse] as an undirected BFS.
func (ix *Index) Traverse(ctx context.Context, name string, maxHops, limit int) (memory.TraversalResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	start := normalizeName(name)
	out := memory.TraversalResult{Nodes: []memory.Entity{}, Edges: []memory.GraphEdge{}}
	if _, ok := ix.nodes[start]; !ok {
		return out, nil
	}

	adj := ix.adjacency()
	visited := map[string]int{start: 0}
	queue := []string{start}
	seenEdges := map[string]bool{}

	for len(queue) > 0 && len(out.Nodes) < limit {
		cur := queue[0]
		queue = queue[1:]
		depth := visited[cur]
		if depth >= maxHops {
			continue
		}
		for _, e := range adj[cur] {
			if _, ok := visited[e.dstNorm]; !ok {
				visited[e.dstNorm] = depth + 1
				queue = append(queue, e.dstNorm)
				out.Nodes = append(out.Nodes, ix.entity(e.dstNorm))
			}
			key := e.srcNorm + "|" + e.dstNorm + "|" + string(e.relType)
			revKey := e.dstNorm + "|" + e.srcNorm + "|" + string(e.relType)
			if !seenEdges[key] && !seenEdges[revKey] {
				seenEdges[key] = true
				out.Edges = append(out.Edges, memory.GraphEdge{Relationship: ix.relationship(e)})
			}
			if len(out.Nodes) >= limit {
				break
			}
		}
	}
	return out, nil
}

// FindPath implements [memory.GraphIndex.FindPath]: a directed BFS shortest
// path capped at 5 hops, falling back to an undirected BFS when no directed
// path is found.
func (ix *Index) FindPath(ctx context.Context, a, b string) (memory.PathResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	aNorm, bNorm := normalizeName(a), normalizeName(b)
	if _, ok := ix.nodes[aNorm]; !ok {
		return memory.PathResult{}, nil
	}
	if _, ok := ix.nodes[bNorm]; !ok {
		return memory.PathResult{}, nil
	}

	directed := make(map[string][]edge)
	for _, e := range ix.edges {
		directed[e.srcNorm] = append(directed[e.srcNorm], e)
	}

	if path := ix.bfsPath(directed, aNorm, bNorm, 5); len(path) > 0 {
		return ix.pathResult(path), nil
	}
	return ix.pathResult(ix.bfsPath(ix.adjacency(), aNorm, bNorm, 5)), nil
}

// bfsPath returns the sequence of edges from a to b within maxHops, or nil.
func (ix *Index) bfsPath(adj map[string][]edge, a, b string, maxHops int) []edge {
	type step struct {
		norm string
		via  edge
		prev int
	}
	trail := []step{{norm: a, prev: -1}}
	visited := map[string]int{a: 0}
	head := 0
	for head < len(trail) {
		cur := trail[head]
		head++
		if cur.norm == b && cur.prev != -1 {
			var path []edge
			for i := head - 1; i != -1; {
				s := trail[i]
				if s.prev == -1 {
					break
				}
				path = append([]edge{s.via}, path...)
				i = s.prev
			}
			return path
		}
		depth := 0
		for i := cur.prev; i != -1; {
			depth++
			i = trail[i].prev
		}
		if depth >= maxHops {
			continue
		}
		for _, e := range adj[cur.norm] {
			if _, ok := visited[e.dstNorm]; ok {
				continue
			}
			visited[e.dstNorm] = len(trail)
			trail = append(trail, step{norm: e.dstNorm, via: e, prev: head - 1})
		}
	}
	return nil
}

func (ix *Index) pathResult(path []edge) memory.PathResult {
	if len(path) == 0 {
		return memory.PathResult{}
	}
	out := memory.PathResult{}
	out.Nodes = append(out.Nodes, ix.entity(path[0].srcNorm))
	out.Path = append(out.Path, ix.entity(path[0].srcNorm).Name)
	for _, e := range path {
		out.Edges = append(out.Edges, memory.GraphEdge{Relationship: ix.relationship(e)})
		out.Nodes = append(out.Nodes, ix.entity(e.dstNorm))
		out.Path = append(out.Path, ix.entity(e.dstNorm).Name)
	}
	return out
}

// GetCanonicalEntities implements [memory.GraphIndex.GetCanonicalEntities].
func (ix *Index) GetCanonicalEntities(ctx context.Context, limit int) ([]memory.Entity, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []memory.Entity
	for norm := range ix.nodes {
		out = append(out, ix.entity(norm))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MentionCount > out[j].MentionCount })
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []memory.Entity{}
	}
	return out, nil
}

// Close implements [memory.GraphIndex.Close]. No-op: nothing to release.
func (ix *Index) Close() error { return nil }
