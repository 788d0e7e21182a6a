// Package neo4j implements [memory.GraphIndex] against a Neo4j (or
// Bolt-compatible FalkorDB-class) graph database. This is the "remote"
// connection mode of the knowledge-graph backend ladder: a persistent,
// queryable graph store reachable over the network.
//
// Entities are stored as (:Entity) nodes keyed by a lower-cased name_norm
// property; relationships are stored as a single :RELATES edge type carrying
// a rel_type property, since Cypher relationship types cannot be
// parameterized in a MERGE.
package neo4j

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

var _ memory.GraphIndex = (*Index)(nil)

// Index is a Neo4j-backed [memory.GraphIndex]. Construct with [Open].
type Index struct {
	driver   neo4j.DriverWithContext
	database string
}

// Open connects to uri using basic auth and verifies connectivity.
func Open(ctx context.Context, uri, user, password, database string) (*Index, error) {
	if user == "" {
		user = "neo4j"
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j graph index: init driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j graph index: verify connectivity: %w", err)
	}

	ix := &Index{driver: driver, database: database}
	if err := ix.ensureConstraint(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return ix, nil
}

// OpenFromEnv reads NEO4J_URI/NEO4J_USER/NEO4J_PASSWORD/NEO4J_DATABASE,
// returning (nil, nil) when NEO4J_URI is unset so callers can fall through to
// the in-process fallback.
func OpenFromEnv(ctx context.Context) (*Index, error) {
	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, nil
	}
	timeoutSec := 10
	if v := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()
	return Open(connectCtx,
		uri,
		strings.TrimSpace(os.Getenv("NEO4J_USER")),
		strings.TrimSpace(os.Getenv("NEO4J_PASSWORD")),
		strings.TrimSpace(os.Getenv("NEO4J_DATABASE")),
	)
}

func (ix *Index) ensureConstraint(ctx context.Context) error {
	session := ix.session(ctx)
	defer session.Close(ctx)

	res, err := session.Run(ctx,
		`CREATE CONSTRAINT entity_name_norm_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.name_norm IS UNIQUE`, nil)
	if err != nil {
		return fmt.Errorf("neo4j graph index: constraint: %w", err)
	}
	_, err = res.Consume(ctx)
	return err
}

func (ix *Index) session(ctx context.Context) neo4j.SessionWithContext {
	return ix.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: ix.database})
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// Upsert implements [memory.GraphIndex.Upsert].
func (ix *Index) Upsert(ctx context.Context, extraction memory.Extraction, date string, timestamp time.Time, sourceHash string) error {
	session := ix.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range extraction.Entities {
			norm := normalizeName(e.Name)
			if norm == "" {
				continue
			}
			res, err := tx.Run(ctx, `
MERGE (e:Entity {name_norm: $name_norm})
ON CREATE SET e.name = $name, e.type = $type, e.mention_count = 1,
              e.first_seen = $date, e.last_seen = $date
ON MATCH SET  e.mention_count = e.mention_count + 1, e.last_seen = $date
`, map[string]any{
				"name_norm": norm,
				"name":      e.Name,
				"type":      string(e.Type),
				"date":      date,
			})
			if err != nil {
				return nil, fmt.Errorf("upsert entity %q: %w", e.Name, err)
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		for _, r := range extraction.Relationships {
			srcNorm, dstNorm := normalizeName(r.SourceName), normalizeName(r.TargetName)
			if srcNorm == "" || dstNorm == "" {
				continue
			}
			res, err := tx.Run(ctx, `
MATCH (a:Entity {name_norm: $src}), (b:Entity {name_norm: $dst})
MERGE (a)-[rel:RELATES {rel_type: $rel_type}]->(b)
SET rel.weight = CASE WHEN rel.weight IS NULL THEN $weight ELSE (rel.weight + $weight) / 2.0 END,
    rel.evidence = $evidence,
    rel.event_date = $event_date,
    rel.source_hash = $source_hash
`, map[string]any{
				"src":         srcNorm,
				"dst":         dstNorm,
				"rel_type":    string(r.RelType),
				"weight":      r.Weight,
				"evidence":    r.Evidence,
				"event_date":  r.EventDate,
				"source_hash": sourceHash,
			})
			if err != nil {
				return nil, fmt.Errorf("upsert relationship %s->%s: %w", r.SourceName, r.TargetName, err)
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func scanEntity(rec *neo4j.Record, key string) (memory.Entity, error) {
	node, ok := rec.Get(key)
	if !ok {
		return memory.Entity{}, fmt.Errorf("neo4j graph index: missing column %q", key)
	}
	n, ok := node.(neo4j.Node)
	if !ok {
		return memory.Entity{}, fmt.Errorf("neo4j graph index: column %q is not a node", key)
	}
	return entityFromProps(n.Props), nil
}

func entityFromProps(props map[string]any) memory.Entity {
	get := func(k string) string {
		if v, ok := props[k].(string); ok {
			return v
		}
		return ""
	}
	count := 0
	switch v := props["mention_count"].(type) {
	case int64:
		count = int(v)
	case int:
		count = v
	}
	return memory.Entity{
		Name:         get("name"),
		Type:         memory.EntityType(get("type")),
		MentionCount: count,
		FirstSeen:    get("first_seen"),
		LastSeen:     get("last_seen"),
	}
}

// SearchEntities implements [memory.GraphIndex.SearchEntities].
func (ix *Index) SearchEntities(ctx context.Context, query string, limit int) ([]memory.Entity, error) {
	session := ix.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
MATCH (e:Entity)
WHERE e.name_norm CONTAINS $needle
RETURN e
ORDER BY e.mention_count DESC
LIMIT $limit
`, map[string]any{"needle": normalizeName(query), "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j graph index: search entities: %w", err)
	}

	var out []memory.Entity
	for result.Next(ctx) {
		e, err := scanEntity(result.Record(), "e")
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []memory.Entity{}
	}
	return out, nil
}

// Traverse implements [memory.GraphIndex.Traverse] via an undirected
// variable-length path match.
func (ix *Index) Traverse(ctx context.Context, name string, maxHops, limit int) (memory.TraversalResult, error) {
	session := ix.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, fmt.Sprintf(`
MATCH p = (start:Entity {name_norm: $name})-[:RELATES*1..%d]-(reached:Entity)
WITH DISTINCT reached, relationships(p) AS rels
LIMIT $limit
UNWIND rels AS r
RETURN DISTINCT reached, r, startNode(r) AS src, endNode(r) AS dst
`, maxHops), map[string]any{"name": normalizeName(name), "limit": limit})
	if err != nil {
		return memory.TraversalResult{}, fmt.Errorf("neo4j graph index: traverse: %w", err)
	}

	out := memory.TraversalResult{Nodes: []memory.Entity{}, Edges: []memory.GraphEdge{}}
	seen := map[string]bool{}
	for result.Next(ctx) {
		rec := result.Record()
		reached, err := scanEntity(rec, "reached")
		if err != nil {
			return memory.TraversalResult{}, err
		}
		if !seen[strings.ToLower(reached.Name)] {
			seen[strings.ToLower(reached.Name)] = true
			out.Nodes = append(out.Nodes, reached)
		}
		edge, err := edgeFromRecord(rec)
		if err != nil {
			return memory.TraversalResult{}, err
		}
		out.Edges = append(out.Edges, edge)
	}
	if err := result.Err(); err != nil {
		return memory.TraversalResult{}, err
	}
	return out, nil
}

func edgeFromRecord(rec *neo4j.Record) (memory.GraphEdge, error) {
	rawRel, ok := rec.Get("r")
	if !ok {
		return memory.GraphEdge{}, fmt.Errorf("neo4j graph index: missing relationship column")
	}
	rel, ok := rawRel.(neo4j.Relationship)
	if !ok {
		return memory.GraphEdge{}, fmt.Errorf("neo4j graph index: column is not a relationship")
	}
	src, _ := scanEntity(rec, "src")
	dst, _ := scanEntity(rec, "dst")

	get := func(k string) string {
		if v, ok := rel.Props[k].(string); ok {
			return v
		}
		return ""
	}
	weight := 0.0
	if v, ok := rel.Props["weight"].(float64); ok {
		weight = v
	}

	return memory.GraphEdge{Relationship: memory.Relationship{
		SourceName: src.Name,
		TargetName: dst.Name,
		RelType:    memory.RelationType(get("rel_type")),
		Weight:     weight,
		Evidence:   get("evidence"),
		EventDate:  get("event_date"),
		SourceHash: get("source_hash"),
	}}, nil
}

// FindPath implements [memory.GraphIndex.FindPath]: directed shortest path up
// to length 5, falling back to an undirected search when no directed path
// exists.
func (ix *Index) FindPath(ctx context.Context, a, b string) (memory.PathResult, error) {
	session := ix.session(ctx)
	defer session.Close(ctx)

	path, err := ix.shortestPath(ctx, session, a, b, "RELATES*1..5", false)
	if err != nil {
		return memory.PathResult{}, err
	}
	if len(path.Path) > 0 {
		return path, nil
	}
	return ix.shortestPath(ctx, session, a, b, "RELATES*1..5", true)
}

func (ix *Index) shortestPath(ctx context.Context, session neo4j.SessionWithContext, a, b, rel string, undirected bool) (memory.PathResult, error) {
	pattern := fmt.Sprintf("-[:%s]->", rel)
	if undirected {
		pattern = fmt.Sprintf("-[:%s]-", rel)
	}
	query := fmt.Sprintf(`
MATCH p = shortestPath((x:Entity {name_norm: $a})%s(y:Entity {name_norm: $b}))
RETURN p
LIMIT 1
`, pattern)

	result, err := session.Run(ctx, query, map[string]any{"a": normalizeName(a), "b": normalizeName(b)})
	if err != nil {
		return memory.PathResult{}, fmt.Errorf("neo4j graph index: find path: %w", err)
	}
	if !result.Next(ctx) {
		return memory.PathResult{}, result.Err()
	}

	rawPath, ok := result.Record().Get("p")
	if !ok {
		return memory.PathResult{}, nil
	}
	p, ok := rawPath.(neo4j.Path)
	if !ok {
		return memory.PathResult{}, fmt.Errorf("neo4j graph index: column is not a path")
	}

	out := memory.PathResult{}
	for _, n := range p.Nodes {
		out.Nodes = append(out.Nodes, entityFromProps(n.Props))
		out.Path = append(out.Path, entityFromProps(n.Props).Name)
	}
	for _, r := range p.Relationships {
		get := func(k string) string {
			if v, ok := r.Props[k].(string); ok {
				return v
			}
			return ""
		}
		weight := 0.0
		if v, ok := r.Props["weight"].(float64); ok {
			weight = v
		}
		out.Edges = append(out.Edges, memory.GraphEdge{Relationship: memory.Relationship{
			RelType:    memory.RelationType(get("rel_type")),
			Weight:     weight,
			Evidence:   get("evidence"),
			EventDate:  get("event_date"),
			SourceHash: get("source_hash"),
		}})
	}
	return out, nil
}

// GetCanonicalEntities implements [memory.GraphIndex.GetCanonicalEntities].
func (ix *Index) GetCanonicalEntities(ctx context.Context, limit int) ([]memory.Entity, error) {
	session := ix.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
MATCH (e:Entity)
RETURN e
ORDER BY e.mention_count DESC
LIMIT $limit
`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j graph index: get canonical entities: %w", err)
	}

	var out []memory.Entity
	for result.Next(ctx) {
		e, err := scanEntity(result.Record(), "e")
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []memory.Entity{}
	}
	return out, nil
}

// Close implements [memory.GraphIndex.Close].
func (ix *Index) Close() error {
	return ix.driver.Close(context.Background())
}
