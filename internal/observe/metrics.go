// Package observe provides application-wide observability primitives for
// Kioku: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Kioku metrics.
const meterName = "github.com/MrWong99/glyphoxa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SaveDuration tracks the full write-path latency: extract, markdown
	// append, keyword index, vector index.
	SaveDuration metric.Float64Histogram

	// SearchDuration tracks the full read-path latency: fan-out, fusion,
	// hydration.
	SearchDuration metric.Float64Histogram

	// SearchLegDuration tracks a single backend leg's latency within a
	// search call. Use with attribute.String("leg", "keyword"|"vector"|"graph").
	SearchLegDuration metric.Float64Histogram

	// ExtractionDuration tracks LLM-backed entity/relationship extraction
	// latency.
	ExtractionDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts calls made to a backend (keyword, vector,
	// graph, extractor). Use with attributes:
	//   attribute.String("backend", ...), attribute.String("op", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// MemoriesSaved counts successful Save calls.
	MemoriesSaved metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts backend errors. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("op", ...)
	BackendErrors metric.Int64Counter

	// DegradedLegs counts search legs that swallowed a backend error and
	// degraded to an empty result, per spec's per-leg degradation rule. Use
	// with attribute.String("leg", "keyword"|"vector"|"graph").
	DegradedLegs metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds), tuned for
// backend calls expected to complete within the per-leg timeouts declared in
// internal/service.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SaveDuration, err = m.Float64Histogram("kioku.save.duration",
		metric.WithDescription("Latency of the full memory write path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("kioku.search.duration",
		metric.WithDescription("Latency of the full tri-hybrid search read path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchLegDuration, err = m.Float64Histogram("kioku.search.leg.duration",
		metric.WithDescription("Latency of a single search backend leg (keyword, vector, graph)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("kioku.extraction.duration",
		metric.WithDescription("Latency of LLM-backed entity and relationship extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("kioku.tool_execution.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("kioku.backend.requests",
		metric.WithDescription("Total backend calls by backend, operation, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("kioku.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesSaved, err = m.Int64Counter("kioku.memories.saved",
		metric.WithDescription("Total memory entries successfully appended to the log."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("kioku.backend.errors",
		metric.WithDescription("Total backend errors by backend and operation."),
	); err != nil {
		return nil, err
	}
	if met.DegradedLegs, err = m.Int64Counter("kioku.search.leg.degraded",
		metric.WithDescription("Total search legs that degraded to an empty result after a backend error."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("kioku.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackendRequest is a convenience method that records a backend
// request counter increment with the standard attribute set.
func (m *Metrics) RecordBackendRequest(ctx context.Context, backend, op, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordMemorySaved is a convenience method that records a successful save.
func (m *Metrics) RecordMemorySaved(ctx context.Context) {
	m.MemoriesSaved.Add(ctx, 1)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, backend, op string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("op", op),
		),
	)
}

// RecordDegradedLeg is a convenience method that records a search leg
// degrading to an empty result after its backend call failed.
func (m *Metrics) RecordDegradedLeg(ctx context.Context, leg string) {
	m.DegradedLegs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("leg", leg)),
	)
}
