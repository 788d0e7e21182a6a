package mcpserver

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/glyphoxa/internal/observe"
	"github.com/MrWong99/glyphoxa/pkg/memory"
)

// saveMemoryArgs is the input schema for the save_memory tool. The SDK
// derives the JSON Schema sent to clients from these field tags.
type saveMemoryArgs struct {
	Text string   `json:"text" jsonschema:"the memory text to save"`
	Mood string   `json:"mood,omitempty" jsonschema:"optional mood label"`
	Tags []string `json:"tags,omitempty" jsonschema:"optional freeform tags"`
}

type searchMemoriesArgs struct {
	Query    string   `json:"query" jsonschema:"free-text search query"`
	Limit    int      `json:"limit,omitempty" jsonschema:"max results, default 10"`
	DateFrom string   `json:"date_from,omitempty" jsonschema:"inclusive lower bound, YYYY-MM-DD"`
	DateTo   string   `json:"date_to,omitempty" jsonschema:"inclusive upper bound, YYYY-MM-DD"`
	Entities []string `json:"entities,omitempty" jsonschema:"entity names to search around; vector hits are kept only if they mention at least one"`
}

type recallRelatedArgs struct {
	Entity  string `json:"entity" jsonschema:"entity name to traverse from"`
	MaxHops int    `json:"max_hops,omitempty" jsonschema:"traversal depth, default 2"`
	Limit   int    `json:"limit,omitempty" jsonschema:"max connected nodes, default 10"`
}

type explainConnectionArgs struct {
	A string `json:"a" jsonschema:"first entity name"`
	B string `json:"b" jsonschema:"second entity name"`
}

type listEntitiesArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"max entities, default 20"`
}

type listMemoryDatesArgs struct{}

type getTimelineArgs struct {
	Start  string `json:"start,omitempty" jsonschema:"inclusive lower bound, YYYY-MM-DD"`
	End    string `json:"end,omitempty" jsonschema:"inclusive upper bound, YYYY-MM-DD"`
	Limit  int    `json:"limit,omitempty" jsonschema:"max entries, default 50"`
	SortBy string `json:"sort_by,omitempty" jsonschema:"processing_time or event_time"`
}

// registerTools binds the seven memory operations to the underlying
// [mcpsdk.Server]. Each handler times its call, records a tool-call metric,
// and converts a handler error into a CallToolResult with IsError set
// rather than a transport-level error, so a single failed call degrades
// gracefully for the calling agent instead of tearing down the session.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "save_memory",
		Description: "Save a new memory entry. Runs entity/relationship extraction, appends to the durable markdown log, and indexes the entry for lexical, vector, and graph search.",
	}, s.handleSaveMemory)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "search_memories",
		Description: "Search memories using a fused lexical + vector + knowledge-graph search. Optionally restrict by date window or by entities mentioned.",
	}, s.handleSearchMemories)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "recall_related",
		Description: "Traverse the knowledge graph from an entity and return connected entities, relationships, and the memories they were extracted from.",
	}, s.handleRecallRelated)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "explain_connection",
		Description: "Find the shortest path between two entities in the knowledge graph and the memories supporting each edge on it.",
	}, s.handleExplainConnection)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "list_entities",
		Description: "List canonical entities ranked by mention count.",
	}, s.handleListEntities)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "list_memory_dates",
		Description: "List every processing date that has at least one saved memory.",
	}, s.handleListMemoryDates)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get_timeline",
		Description: "Return memories within a date window ordered chronologically by processing time or event time.",
	}, s.handleGetTimeline)
}

func (s *Server) handleSaveMemory(ctx context.Context, _ *mcpsdk.CallToolRequest, args saveMemoryArgs) (*mcpsdk.CallToolResult, any, error) {
	t0 := newTimer()
	result, err := s.svc.Save(ctx, args.Text, args.Mood, args.Tags)
	observe.DefaultMetrics().ToolExecutionDuration.Record(ctx, t0.elapsed())
	recordToolCall(ctx, "save_memory", err)
	if err != nil {
		return toolError(wrapErr("save_memory", err))
	}
	return toolOK(result)
}

func (s *Server) handleSearchMemories(ctx context.Context, _ *mcpsdk.CallToolRequest, args searchMemoriesArgs) (*mcpsdk.CallToolResult, any, error) {
	t0 := newTimer()
	result, err := s.svc.Search(ctx, args.Query, args.Limit, args.DateFrom, args.DateTo, args.Entities)
	observe.DefaultMetrics().ToolExecutionDuration.Record(ctx, t0.elapsed())
	recordToolCall(ctx, "search_memories", err)
	if err != nil {
		return toolError(wrapErr("search_memories", err))
	}
	return toolOK(result)
}

func (s *Server) handleRecallRelated(ctx context.Context, _ *mcpsdk.CallToolRequest, args recallRelatedArgs) (*mcpsdk.CallToolResult, any, error) {
	t0 := newTimer()
	result, err := s.svc.RecallRelated(ctx, args.Entity, args.MaxHops, args.Limit)
	observe.DefaultMetrics().ToolExecutionDuration.Record(ctx, t0.elapsed())
	recordToolCall(ctx, "recall_related", err)
	if err != nil {
		return toolError(wrapErr("recall_related", err))
	}
	return toolOK(result)
}

func (s *Server) handleExplainConnection(ctx context.Context, _ *mcpsdk.CallToolRequest, args explainConnectionArgs) (*mcpsdk.CallToolResult, any, error) {
	t0 := newTimer()
	result, err := s.svc.ExplainConnection(ctx, args.A, args.B)
	observe.DefaultMetrics().ToolExecutionDuration.Record(ctx, t0.elapsed())
	recordToolCall(ctx, "explain_connection", err)
	if err != nil {
		return toolError(wrapErr("explain_connection", err))
	}
	return toolOK(result)
}

func (s *Server) handleListEntities(ctx context.Context, _ *mcpsdk.CallToolRequest, args listEntitiesArgs) (*mcpsdk.CallToolResult, any, error) {
	t0 := newTimer()
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	entities, err := s.svc.ListEntities(ctx, limit)
	observe.DefaultMetrics().ToolExecutionDuration.Record(ctx, t0.elapsed())
	recordToolCall(ctx, "list_entities", err)
	if err != nil {
		return toolError(wrapErr("list_entities", err))
	}
	return toolOK(struct {
		Count    int             `json:"count"`
		Entities []memory.Entity `json:"entities"`
	}{Count: len(entities), Entities: entities})
}

func (s *Server) handleListMemoryDates(ctx context.Context, _ *mcpsdk.CallToolRequest, _ listMemoryDatesArgs) (*mcpsdk.CallToolResult, any, error) {
	t0 := newTimer()
	dates, err := s.svc.ListDates(ctx)
	observe.DefaultMetrics().ToolExecutionDuration.Record(ctx, t0.elapsed())
	recordToolCall(ctx, "list_memory_dates", err)
	if err != nil {
		return toolError(wrapErr("list_memory_dates", err))
	}
	return toolOK(struct {
		Count int      `json:"count"`
		Dates []string `json:"dates"`
	}{Count: len(dates), Dates: dates})
}

func (s *Server) handleGetTimeline(ctx context.Context, _ *mcpsdk.CallToolRequest, args getTimelineArgs) (*mcpsdk.CallToolResult, any, error) {
	t0 := newTimer()
	sortBy := memory.SortBy(args.SortBy)
	if sortBy != memory.SortByEventTime {
		sortBy = memory.SortByProcessingTime
	}
	result, err := s.svc.GetTimeline(ctx, args.Start, args.End, args.Limit, sortBy)
	observe.DefaultMetrics().ToolExecutionDuration.Record(ctx, t0.elapsed())
	recordToolCall(ctx, "get_timeline", err)
	if err != nil {
		return toolError(wrapErr("get_timeline", err))
	}
	return toolOK(result)
}
