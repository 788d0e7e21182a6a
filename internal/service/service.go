// Package service implements the Kioku business logic: the single write
// path and the several read operations shared by every transport (MCP
// server, CLI). It owns no transport-specific concerns — callers pass
// plain Go values in and get plain Go values back.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/glyphoxa/internal/extractor"
	"github.com/MrWong99/glyphoxa/internal/fuser"
	"github.com/MrWong99/glyphoxa/internal/graphsearch"
	"github.com/MrWong99/glyphoxa/internal/kerr"
	"github.com/MrWong99/glyphoxa/internal/markdownlog"
	"github.com/MrWong99/glyphoxa/internal/observe"
	"github.com/MrWong99/glyphoxa/pkg/memory"
)

// Per-backend call deadlines. Each suspension point on the write and read
// paths gets its own timeout so a single slow dependency degrades its own
// leg instead of the whole request.
const (
	extractorTimeout   = 10 * time.Second
	keywordTimeout     = 1 * time.Second
	vectorTimeout      = 2 * time.Second
	graphTimeout       = 2 * time.Second
	contextEntityLimit = 50
)

var punctuationPattern = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]`)

// Service is the core business-logic singleton: one instance per process,
// constructed once at startup and shared across every concurrent caller.
type Service struct {
	keyword   memory.KeywordIndex
	vector    memory.VectorIndex
	graph     memory.GraphIndex
	extractor extractor.Extractor
	log       *markdownlog.Log
	clock     func() time.Time
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithClock overrides the time source used for timestamps. Tests use this
// to produce deterministic processing dates.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// New wires the backend instances into a ready-to-use Service.
func New(keyword memory.KeywordIndex, vector memory.VectorIndex, graph memory.GraphIndex, ext extractor.Extractor, log *markdownlog.Log, opts ...Option) *Service {
	s := &Service{
		keyword:   keyword,
		vector:    vector,
		graph:     graph,
		extractor: ext,
		log:       log,
		clock:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ─── Write path ──────────────────────────────────────────────────────────

// SaveResult is returned by [Service.Save].
type SaveResult struct {
	Status         string
	Timestamp      time.Time
	ProcessingDate string
	EventDate      string
}

// Save writes one memory entry. The markdown append is the durable,
// source-of-truth step: its failure is the only one surfaced to the
// caller. Every other step (graph upsert, keyword index, vector index)
// logs and continues on failure, per the ordering contract: extract →
// markdown → keyword → vector.
func (s *Service) Save(ctx context.Context, text, mood string, tags []string) (SaveResult, error) {
	if strings.TrimSpace(text) == "" {
		return SaveResult{}, fmt.Errorf("%w: text must not be empty", kerr.ErrInvalidInput)
	}

	timestamp := s.clock()
	processingDate := timestamp.Format("2006-01-02")
	sum := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(sum[:])

	contextEntities := s.canonicalEntityNames(ctx)

	extractCtx, cancel := context.WithTimeout(ctx, extractorTimeout)
	extraction, err := s.extractor.Extract(extractCtx, text, contextEntities, processingDate)
	cancel()
	if err != nil {
		observe.Logger(ctx).Warn("extraction failed, continuing with empty extraction", "err", err)
		extraction = memory.Extraction{}
	}

	if len(extraction.Entities) > 0 || len(extraction.Relationships) > 0 {
		graphCtx, cancel := context.WithTimeout(ctx, graphTimeout)
		if err := s.graph.Upsert(graphCtx, extraction, processingDate, timestamp, contentHash); err != nil {
			observe.Logger(ctx).Warn("graph upsert failed", "err", err)
		}
		cancel()
	}

	if err := s.log.Append(processingDate, text, timestamp, mood, tags, extraction.EventDate); err != nil {
		return SaveResult{}, fmt.Errorf("markdownlog append: %w", err)
	}

	entry := memory.Entry{
		Text:           text,
		Timestamp:      timestamp,
		ProcessingDate: processingDate,
		EventDate:      extraction.EventDate,
		Mood:           mood,
		Tags:           tags,
		ContentHash:    contentHash,
	}

	kwCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
	if _, _, err := s.keyword.Index(kwCtx, entry); err != nil {
		observe.Logger(ctx).Warn("keyword index failed", "err", err)
	}
	cancel()

	vecCtx, cancel := context.WithTimeout(ctx, vectorTimeout)
	if _, err := s.vector.Add(vecCtx, entry); err != nil {
		observe.Logger(ctx).Warn("vector index failed", "err", err)
	}
	cancel()

	return SaveResult{
		Status:         "saved",
		Timestamp:      timestamp,
		ProcessingDate: processingDate,
		EventDate:      extraction.EventDate,
	}, nil
}

// canonicalEntityNames fetches up to contextEntityLimit canonical entity
// names from the graph for use as extraction disambiguation context. A
// lookup failure is logged and treated as no context, not a write failure.
func (s *Service) canonicalEntityNames(ctx context.Context) []string {
	graphCtx, cancel := context.WithTimeout(ctx, graphTimeout)
	defer cancel()
	entities, err := s.graph.GetCanonicalEntities(graphCtx, contextEntityLimit)
	if err != nil {
		observe.Logger(ctx).Warn("canonical entity lookup failed", "err", err)
		return nil
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return names
}

// ─── Read path ───────────────────────────────────────────────────────────

// SearchResult is returned by [Service.Search].
type SearchResult struct {
	Query   string
	Count   int
	Results []memory.SearchHit
}

// Search runs the tri-hybrid read path: keyword, vector, and graph legs
// dispatched in parallel, fused by RRF, optionally windowed by date, and
// hydrated against the keyword index for authoritative content.
func (s *Service) Search(ctx context.Context, query string, limit int, dateFrom, dateTo string, entities []string) (SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	fanout := limit * 3

	lexicalQuery := punctuationPattern.ReplaceAllString(query, " ")
	if len(entities) > 0 {
		lexicalQuery = strings.Join(entities, " ")
	}

	var keywordHits, vectorHits, graphHits []memory.SearchHit

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		keywordHits = s.searchKeywordLeg(egCtx, lexicalQuery, fanout)
		return nil
	})
	eg.Go(func() error {
		vectorHits = s.searchVectorLeg(egCtx, query, fanout, dateFrom, dateTo, entities)
		return nil
	})
	eg.Go(func() error {
		graphHits = s.searchGraphLeg(egCtx, query, fanout, entities)
		return nil
	})
	_ = eg.Wait() // each leg swallows its own backend error and degrades to empty

	fused := fuser.Fuse(fuser.DefaultK, limit, keywordHits, vectorHits, graphHits)

	if dateFrom != "" || dateTo != "" {
		fused = filterByDateWindow(fused, dateFrom, dateTo)
	}

	hydrated := s.hydrate(ctx, fused)

	return SearchResult{Query: query, Count: len(hydrated), Results: hydrated}, nil
}

func (s *Service) searchKeywordLeg(ctx context.Context, query string, limit int) []memory.SearchHit {
	kwCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
	defer cancel()

	rows, err := s.keyword.Search(kwCtx, query, limit)
	if err != nil {
		observe.Logger(ctx).Warn("keyword search leg failed", "err", err)
		return nil
	}

	hits := make([]memory.SearchHit, len(rows))
	for i, r := range rows {
		hits[i] = memory.SearchHit{
			Content:        r.Content,
			ProcessingDate: r.ProcessingDate,
			Mood:           r.Mood,
			Timestamp:      r.Timestamp,
			Score:          r.Rank,
			Source:         "bm25",
		}
	}
	return hits
}

func (s *Service) searchVectorLeg(ctx context.Context, query string, limit int, dateFrom, dateTo string, entities []string) []memory.SearchHit {
	vecCtx, cancel := context.WithTimeout(ctx, vectorTimeout)
	defer cancel()

	results, err := s.vector.Search(vecCtx, query, limit, dateFrom, dateTo)
	if err != nil {
		observe.Logger(ctx).Warn("vector search leg failed", "err", err)
		return nil
	}

	hits := make([]memory.SearchHit, 0, len(results))
	for _, r := range results {
		if len(entities) > 0 && !containsAnyFold(r.Content, entities) {
			continue
		}
		similarity := 1 - r.Distance
		if similarity < 0 {
			similarity = 0
		}
		hits = append(hits, memory.SearchHit{
			Content:        r.Content,
			ProcessingDate: r.ProcessingDate,
			Mood:           r.Mood,
			Timestamp:      r.Timestamp,
			Score:          similarity,
			Source:         "vector",
			ContentHash:    r.ContentHash,
		})
	}
	return hits
}

func (s *Service) searchGraphLeg(ctx context.Context, query string, limit int, entities []string) []memory.SearchHit {
	graphCtx, cancel := context.WithTimeout(ctx, graphTimeout)
	defer cancel()

	hits, err := graphsearch.Search(graphCtx, s.graph, query, limit, entities)
	if err != nil {
		observe.Logger(ctx).Warn("graph search leg failed", "err", err)
		return nil
	}
	return hits
}

func containsAnyFold(content string, needles []string) bool {
	lc := strings.ToLower(content)
	for _, n := range needles {
		if strings.Contains(lc, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func filterByDateWindow(hits []memory.SearchHit, from, to string) []memory.SearchHit {
	out := make([]memory.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.ProcessingDate == "" {
			out = append(out, h)
			continue
		}
		if from != "" && h.ProcessingDate < from {
			continue
		}
		if to != "" && h.ProcessingDate > to {
			continue
		}
		out = append(out, h)
	}
	return out
}

// hydrate overwrites content/processing_date/mood on every hit whose
// content hash resolves in the keyword index with the authoritative row.
// Hits without a content hash (the keyword leg's own results, which are
// already authoritative) pass through unchanged.
func (s *Service) hydrate(ctx context.Context, hits []memory.SearchHit) []memory.SearchHit {
	hashes := make([]string, 0, len(hits))
	seen := make(map[string]bool)
	for _, h := range hits {
		if h.ContentHash != "" && !seen[h.ContentHash] {
			seen[h.ContentHash] = true
			hashes = append(hashes, h.ContentHash)
		}
	}
	if len(hashes) == 0 {
		return hits
	}

	kwCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
	defer cancel()
	rows, err := s.keyword.GetByHashes(kwCtx, hashes)
	if err != nil {
		observe.Logger(ctx).Warn("hydration lookup failed", "err", err)
		return hits
	}

	out := make([]memory.SearchHit, len(hits))
	for i, h := range hits {
		if row, ok := rows[h.ContentHash]; ok {
			h.Content = row.Content
			h.ProcessingDate = row.ProcessingDate
			h.Mood = row.Mood
		}
		out[i] = h
	}
	return out
}

// ─── Graph-backed operations ─────────────────────────────────────────────

// RecallResult is returned by [Service.RecallRelated].
type RecallResult struct {
	Entity         string
	ConnectedCount int
	Nodes          []memory.Entity
	Relationships  []memory.Relationship
	SourceMemories []memory.KeywordRow
}

// RecallRelated traverses the knowledge graph from entity and hydrates the
// source memory for every discovered edge via its source hash.
func (s *Service) RecallRelated(ctx context.Context, entity string, maxHops, limit int) (RecallResult, error) {
	if strings.TrimSpace(entity) == "" {
		return RecallResult{}, fmt.Errorf("%w: entity must not be empty", kerr.ErrInvalidInput)
	}
	if maxHops <= 0 {
		maxHops = 2
	}
	if limit <= 0 {
		limit = 10
	}

	graphCtx, cancel := context.WithTimeout(ctx, graphTimeout)
	result, err := s.graph.Traverse(graphCtx, entity, maxHops, limit)
	cancel()
	if err != nil {
		return RecallResult{}, fmt.Errorf("traverse: %w", err)
	}

	rels := make([]memory.Relationship, len(result.Edges))
	for i, e := range result.Edges {
		rels[i] = e.Relationship
	}

	return RecallResult{
		Entity:         entity,
		ConnectedCount: len(result.Nodes),
		Nodes:          result.Nodes,
		Relationships:  rels,
		SourceMemories: s.hydrateSourceMemories(ctx, result.Edges),
	}, nil
}

// ExplainResult is returned by [Service.ExplainConnection].
type ExplainResult struct {
	From           string
	To             string
	Connected      bool
	Path           []string
	Nodes          []memory.Entity
	Relationships  []memory.Relationship
	SourceMemories []memory.KeywordRow
}

// ExplainConnection finds the shortest path between a and b and hydrates
// the source memory for every edge on it. No path is not an error.
func (s *Service) ExplainConnection(ctx context.Context, a, b string) (ExplainResult, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return ExplainResult{}, fmt.Errorf("%w: entity names must not be empty", kerr.ErrInvalidInput)
	}

	graphCtx, cancel := context.WithTimeout(ctx, graphTimeout)
	result, err := s.graph.FindPath(graphCtx, a, b)
	cancel()
	if err != nil {
		return ExplainResult{}, fmt.Errorf("find path: %w", err)
	}

	rels := make([]memory.Relationship, len(result.Edges))
	for i, e := range result.Edges {
		rels[i] = e.Relationship
	}

	return ExplainResult{
		From:           a,
		To:             b,
		Connected:      len(result.Path) > 0,
		Path:           result.Path,
		Nodes:          result.Nodes,
		Relationships:  rels,
		SourceMemories: s.hydrateSourceMemories(ctx, result.Edges),
	}, nil
}

// hydrateSourceMemories resolves the distinct, first-seen-ordered source
// hashes on edges against the keyword index.
func (s *Service) hydrateSourceMemories(ctx context.Context, edges []memory.GraphEdge) []memory.KeywordRow {
	hashes := make([]string, 0, len(edges))
	seen := make(map[string]bool)
	for _, e := range edges {
		if e.SourceHash != "" && !seen[e.SourceHash] {
			seen[e.SourceHash] = true
			hashes = append(hashes, e.SourceHash)
		}
	}
	if len(hashes) == 0 {
		return nil
	}

	kwCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
	defer cancel()
	rows, err := s.keyword.GetByHashes(kwCtx, hashes)
	if err != nil {
		observe.Logger(ctx).Warn("source memory hydration failed", "err", err)
		return nil
	}

	out := make([]memory.KeywordRow, 0, len(hashes))
	for _, h := range hashes {
		if row, ok := rows[h]; ok {
			out = append(out, row)
		}
	}
	return out
}

// ListEntities returns the top canonical entities by mention count.
func (s *Service) ListEntities(ctx context.Context, limit int) ([]memory.Entity, error) {
	if limit <= 0 {
		limit = 20
	}
	graphCtx, cancel := context.WithTimeout(ctx, graphTimeout)
	defer cancel()
	return s.graph.GetCanonicalEntities(graphCtx, limit)
}

// ─── Keyword-backed operations ───────────────────────────────────────────

// ListDates returns every distinct processing date with at least one
// memory, descending.
func (s *Service) ListDates(ctx context.Context) ([]string, error) {
	kwCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
	defer cancel()
	return s.keyword.GetDates(kwCtx)
}

// TimelineResult is returned by [Service.GetTimeline].
type TimelineResult struct {
	Count    int
	Timeline []memory.KeywordRow
}

// GetTimeline returns memories in [start,end] ordered chronologically by
// sortBy, bounded to the limit most recent entries.
func (s *Service) GetTimeline(ctx context.Context, start, end string, limit int, sortBy memory.SortBy) (TimelineResult, error) {
	if limit <= 0 {
		limit = 50
	}
	if sortBy == "" {
		sortBy = memory.SortByProcessingTime
	}

	kwCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
	defer cancel()
	rows, err := s.keyword.GetTimeline(kwCtx, start, end, limit, sortBy)
	if err != nil {
		return TimelineResult{}, fmt.Errorf("get timeline: %w", err)
	}
	return TimelineResult{Count: len(rows), Timeline: rows}, nil
}

// ─── Resources ───────────────────────────────────────────────────────────

// ReadMemoryResource returns the raw markdown for a single processing
// date, or a human-readable placeholder when no entries exist for it.
func (s *Service) ReadMemoryResource(date string) (string, error) {
	content, err := s.log.ReadFile(date)
	if err != nil {
		return fmt.Sprintf("No memories found for date %s.", date), nil
	}
	return content, nil
}

// ReadEntityResource renders a human-readable profile of entity from the
// knowledge graph: identity facts plus a description of each relationship.
func (s *Service) ReadEntityResource(ctx context.Context, entity string) (string, error) {
	graphCtx, cancel := context.WithTimeout(ctx, graphTimeout)
	defer cancel()
	result, err := s.graph.Traverse(graphCtx, entity, 2, 50)
	if err != nil {
		return "", fmt.Errorf("traverse: %w", err)
	}
	// Traverse reports only the reached nodes, not the start node itself.
	matches, err := s.graph.SearchEntities(graphCtx, entity, 50)
	if err != nil {
		return "", fmt.Errorf("search entities: %w", err)
	}
	var root memory.Entity
	for _, n := range matches {
		if strings.EqualFold(n.Name, entity) {
			root = n
			break
		}
	}
	if root.Name == "" {
		return fmt.Sprintf("Entity '%s' not found in the knowledge graph.", entity), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Entity Profile: %s (%s)\n", root.Name, root.Type)
	fmt.Fprintf(&b, "- **First mentioned:** %s\n", root.FirstSeen)
	fmt.Fprintf(&b, "- **Last mentioned:** %s\n", root.LastSeen)
	fmt.Fprintf(&b, "- **Total mentions:** %d\n\n", root.MentionCount)
	b.WriteString("## Known Relationships\n")

	if len(result.Edges) == 0 {
		b.WriteString("No known relationships.\n")
	} else {
		for _, e := range result.Edges {
			strength := "Weakly"
			switch {
			case e.Weight >= 0.8:
				strength = "Strongly"
			case e.Weight >= 0.5:
				strength = "Moderately"
			}
			fmt.Fprintf(&b, "- **%s %s** to `%s`\n", strength, strings.ToLower(string(e.RelType)), e.TargetName)
			if e.Evidence != "" {
				fmt.Fprintf(&b, "  > *%q*\n", e.Evidence)
			}
		}
	}

	b.WriteString("\nThese details are generated from traversing the knowledge graph memory.\n")
	return b.String(), nil
}

// ─── Maintenance ─────────────────────────────────────────────────────────

// Stats aggregates the per-backend counts required by the keyword and
// vector contracts into a single snapshot.
type Stats struct {
	KeywordCount int64
	VectorCount  int64
}

// Stats fetches keyword and vector counts in parallel.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		kwCtx, cancel := context.WithTimeout(egCtx, keywordTimeout)
		defer cancel()
		n, err := s.keyword.Count(kwCtx)
		if err != nil {
			return fmt.Errorf("keyword count: %w", err)
		}
		stats.KeywordCount = n
		return nil
	})
	eg.Go(func() error {
		vecCtx, cancel := context.WithTimeout(egCtx, vectorTimeout)
		defer cancel()
		n, err := s.vector.Count(vecCtx)
		if err != nil {
			return fmt.Errorf("vector count: %w", err)
		}
		stats.VectorCount = n
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// ReindexResult is returned by [Service.Reindex].
type ReindexResult struct {
	EntriesReplayed int
}

// Reindex replays every markdown log entry through the keyword, vector,
// and graph writes. An entry whose content hash the keyword index already
// holds is skipped entirely, so its vector and graph writes are not
// repeated. Markdown itself is never rewritten: it
// is already the source these writes are replayed from.
func (s *Service) Reindex(ctx context.Context) (ReindexResult, error) {
	dates, err := s.log.ListDates()
	if err != nil {
		return ReindexResult{}, fmt.Errorf("reindex: list dates: %w", err)
	}

	var result ReindexResult
	for _, date := range dates {
		entries, err := s.log.ReadEntries(date)
		if err != nil {
			observe.Logger(ctx).Warn("reindex: read entries failed", "date", date, "err", err)
			continue
		}
		for _, e := range entries {
			if err := s.replayEntry(ctx, date, e); err != nil {
				observe.Logger(ctx).Warn("reindex: replay entry failed", "date", date, "err", err)
				continue
			}
			result.EntriesReplayed++
		}
	}
	return result, nil
}

func (s *Service) replayEntry(ctx context.Context, processingDate string, e markdownlog.Entry) error {
	timestamp, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		timestamp = s.clock()
	}
	sum := sha256.Sum256([]byte(e.Text))
	contentHash := hex.EncodeToString(sum[:])

	entry := memory.Entry{
		Text:           e.Text,
		Timestamp:      timestamp,
		ProcessingDate: processingDate,
		EventDate:      e.EventDate,
		Mood:           e.Mood,
		Tags:           e.Tags,
		ContentHash:    contentHash,
	}

	kwCtx, cancel := context.WithTimeout(ctx, keywordTimeout)
	_, dup, err := s.keyword.Index(kwCtx, entry)
	cancel()
	if err != nil {
		return fmt.Errorf("keyword index: %w", err)
	}
	if dup {
		return nil
	}

	vecCtx, cancel := context.WithTimeout(ctx, vectorTimeout)
	if _, err := s.vector.Add(vecCtx, entry); err != nil {
		observe.Logger(ctx).Warn("reindex: vector add failed", "err", err)
	}
	cancel()

	contextEntities := s.canonicalEntityNames(ctx)
	extractCtx, cancel := context.WithTimeout(ctx, extractorTimeout)
	extraction, err := s.extractor.Extract(extractCtx, e.Text, contextEntities, processingDate)
	cancel()
	if err != nil {
		extraction = memory.Extraction{}
	}

	if len(extraction.Entities) > 0 || len(extraction.Relationships) > 0 {
		graphCtx, cancel := context.WithTimeout(ctx, graphTimeout)
		if err := s.graph.Upsert(graphCtx, extraction, processingDate, timestamp, contentHash); err != nil {
			observe.Logger(ctx).Warn("reindex: graph upsert failed", "err", err)
		}
		cancel()
	}
	return nil
}
