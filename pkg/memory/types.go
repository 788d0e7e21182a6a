// Package memory defines the domain types and backend interfaces shared by
// every indexing/retrieval component: the canonical entry and entity shapes,
// and the three pluggable store contracts (KeywordIndex, VectorIndex,
// GraphIndex) that the service fans writes and reads out to.
//
// Each interface has a closed set of concrete implementations selected at
// construction time (see the vector and graph sub-packages); callers never
// branch on implementation type once a [KeywordIndex], [VectorIndex], or
// [GraphIndex] value is in hand.
package memory

import (
	"context"
	"time"
)

// EntityType enumerates the closed set of knowledge-graph node kinds.
type EntityType string

const (
	EntityPerson  EntityType = "PERSON"
	EntityPlace   EntityType = "PLACE"
	EntityEvent   EntityType = "EVENT"
	EntityEmotion EntityType = "EMOTION"
	EntityTopic   EntityType = "TOPIC"
	EntityProduct EntityType = "PRODUCT"
)

// RelationType enumerates the closed set of knowledge-graph edge kinds.
type RelationType string

const (
	RelCausal   RelationType = "CAUSAL"
	RelEmotion  RelationType = "EMOTIONAL"
	RelTemporal RelationType = "TEMPORAL"
	RelTopical  RelationType = "TOPICAL"
	RelInvolves RelationType = "INVOLVES"
)

// Entry is the user-facing unit of writing. It is created once by the write
// path and never mutated afterward; its identity is ContentHash.
type Entry struct {
	Text           string
	Timestamp      time.Time
	ProcessingDate string // YYYY-MM-DD, configured timezone
	EventDate      string // YYYY-MM-DD, optional
	Mood           string
	Tags           []string
	ContentHash    string // hex SHA-256 of Text
}

// Entity is a node in the knowledge graph. Name comparison is
// case-insensitive; storage preserves first-seen casing.
type Entity struct {
	Name         string
	Type         EntityType
	MentionCount int
	FirstSeen    string // YYYY-MM-DD
	LastSeen     string // YYYY-MM-DD
}

// Relationship is a directed edge between two entities. Edge identity is
// (SourceName, TargetName, RelType).
type Relationship struct {
	SourceName string
	TargetName string
	RelType    RelationType
	Weight     float64
	Evidence   string
	EventDate  string
	SourceHash string // ContentHash of the entry that produced this edge
}

// Extraction is the output of the Extractor: the entities and typed
// relationships found in one entry's text, plus an optional inferred event
// date.
type Extraction struct {
	Entities      []Entity
	Relationships []Relationship
	EventDate     string
}

// KeywordRow is one row of the canonical text store, as returned by search
// and lookup operations on a [KeywordIndex].
type KeywordRow struct {
	RowID          int64
	Content        string
	ProcessingDate string
	Mood           string
	Tags           []string
	Timestamp      time.Time
	EventDate      string
	Rank           float64 // BM25 score, higher is better
}

// SortBy selects the ordering column for [KeywordIndex.GetTimeline].
type SortBy string

const (
	SortByProcessingTime SortBy = "processing_time"
	SortByEventTime      SortBy = "event_time"
)

// KeywordIndex is the canonical document store and lexical ranked retrieval
// backend, keyed by content hash. It is always a local embedded
// FTS-capable relational store. There is no remote variant.
//
// Implementations must allow concurrent reads and serialize writes
// internally; schema creation must be idempotent.
type KeywordIndex interface {
	// Index inserts entry and returns its rowid. Returns dup=true (and
	// rowid -1) when entry.ContentHash already exists; this is not an error.
	Index(ctx context.Context, entry Entry) (rowid int64, dup bool, err error)

	// Search ranks entries by BM25 against query, best match first.
	Search(ctx context.Context, query string, limit int) ([]KeywordRow, error)

	// GetByHashes batch-looks-up rows by content hash.
	GetByHashes(ctx context.Context, hashes []string) (map[string]KeywordRow, error)

	// GetByDate returns all rows for a single processing date.
	GetByDate(ctx context.Context, date string) ([]KeywordRow, error)

	// GetTimeline returns rows within [start,end] (either bound may be
	// empty, meaning unbounded), ordered ascending by sortBy, truncated to
	// limit.
	GetTimeline(ctx context.Context, start, end string, limit int, sortBy SortBy) ([]KeywordRow, error)

	// GetDates returns the distinct processing dates present, descending.
	GetDates(ctx context.Context) ([]string, error)

	// Count returns the number of rows.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying connection.
	Close() error
}

// VectorResult is one hit from a [VectorIndex] search.
type VectorResult struct {
	Content        string
	ProcessingDate string
	Mood           string
	Timestamp      time.Time
	ContentHash    string
	Distance       float64 // cosine distance in [0,2]; similarity = max(0, 1-distance)
}

// VectorIndex is the dense-vector approximate-nearest-neighbor retrieval
// backend. Implementations are idempotent on ContentHash[:16].
type VectorIndex interface {
	// Add computes entry's embedding via the injected embeddings provider
	// and stores it, returning the record id (ContentHash[:16]).
	Add(ctx context.Context, entry Entry) (recordID string, err error)

	// Search embeds query and returns the topK nearest entries, optionally
	// filtered to [dateFrom,dateTo] (either may be empty) applied at the
	// index level.
	Search(ctx context.Context, query string, limit int, dateFrom, dateTo string) ([]VectorResult, error)

	// Count returns the number of stored records. If zero, Search must
	// return an empty result without invoking the embedder.
	Count(ctx context.Context) (int64, error)

	// Close releases any underlying connection.
	Close() error
}

// GraphEdge is one edge returned by traversal or path search. It carries
// only the [Relationship]; endpoint entities are reported separately in the
// result's Nodes.
type GraphEdge struct {
	Relationship
}

// TraversalResult is the output of [GraphIndex.Traverse]: the set of reached
// nodes and every traversed edge.
type TraversalResult struct {
	Nodes []Entity
	Edges []GraphEdge
}

// PathResult is the output of [GraphIndex.FindPath].
type PathResult struct {
	Nodes []Entity
	Edges []GraphEdge
	Path  []string // ordered entity names, empty when no path exists
}

// GraphIndex is the persisted entity/relationship graph: traversal and
// shortest-path queries over entities mentioned across entries.
type GraphIndex interface {
	// Upsert merges extraction's entities and relationships into the graph.
	// Entities are matched case-insensitively on Name; mention_count is
	// monotonically incremented. Relationships are matched on
	// (source,target,rel_type); weight becomes the mean of old and new.
	Upsert(ctx context.Context, extraction Extraction, date string, timestamp time.Time, sourceHash string) error

	// SearchEntities returns entities whose name contains query
	// (case-insensitive substring), ordered by mention_count desc.
	SearchEntities(ctx context.Context, query string, limit int) ([]Entity, error)

	// Traverse performs an undirected BFS from the case-insensitive match of
	// name up to maxHops, returning every reached node and traversed edge.
	Traverse(ctx context.Context, name string, maxHops, limit int) (TraversalResult, error)

	// FindPath returns the shortest directed path from a to b (length <= 5);
	// if none exists, falls back to an undirected search. No path is not an
	// error: Path is empty.
	FindPath(ctx context.Context, a, b string) (PathResult, error)

	// GetCanonicalEntities returns the top entities by mention_count desc.
	GetCanonicalEntities(ctx context.Context, limit int) ([]Entity, error)

	// Close releases any underlying connection.
	Close() error
}

// SearchHit is the common shape emitted by every search leg (keyword,
// vector, graph) before fusion, and by fuser.Fuse after it. The grouping
// key for fusion purposes is Content (exact match).
type SearchHit struct {
	Content        string
	ProcessingDate string
	Mood           string
	Timestamp      time.Time
	Score          float64 // meaning depends on Source before fusion; RRF sum after
	Source         string  // "bm25", "vector", or "graph"
	ContentHash    string
}
