// Package observability provides monitoring and debugging capabilities for
// butlerd through Prometheus metrics and OpenTelemetry tracing.
//
// # Overview
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Tracing - Distributed request tracing with OpenTelemetry
//
// Structured logging is handled directly with log/slog at call sites
// (internal/agent, internal/alerting, internal/webhook, etc. all take a
// plain *slog.Logger); this package does not wrap it.
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - LLM API request latency
//   - Tool execution performance
//   - Error rates by component and type
//   - Active session counts
//   - HTTP request/response metrics
//   - Database query performance
//   - Webhook ingestion and message-queue depth
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	// Track LLM requests
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
//	// Track tool execution
//	start = time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("web_search", "success", time.Since(start).Seconds())
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track requests across components:
//   - End-to-end request visualization
//   - Performance bottleneck identification
//   - Error correlation across a conversation turn
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "butlerd",
//	    ServiceVersion: buildinfo.Version,
//	    Endpoint:       "localhost:4317", // OTLP collector; empty disables export
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	// Trace tool execution
//	ctx, toolSpan := tracer.TraceToolExecution(ctx, "web_search")
//	defer toolSpan.End()
//	if err != nil {
//	    tracer.RecordError(toolSpan, err)
//	}
//
// # Performance
//
// The observability system is designed for minimal overhead:
//   - Metrics use lock-free counters where possible
//   - Tracing supports sampling to reduce overhead
//
// # Configuration
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Tracing - configurable sampling, endpoint, attributes
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "butlerd",
//	    ServiceVersion: version,
//	    Environment:    env,
//	    Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// Metrics can be verified using prometheus/testutil; tracing works with a
// no-op exporter in tests (an empty Endpoint skips exporter construction
// entirely, so NewTracer is always safe to call).
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# LLM request latency (95th percentile)
//	histogram_quantile(0.95, rate(butler_llm_request_duration_seconds_bucket[5m]))
//
//	# Error rate
//	rate(butler_errors_total[5m])
//
//	# Tool execution time
//	rate(butler_tool_execution_duration_seconds_sum[5m]) /
//	rate(butler_tool_execution_duration_seconds_count[5m])
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High error rate: butler_errors_total > threshold
//   - High LLM latency: p95 latency > 10s
//   - Session accumulation: butler_active_sessions growing unbounded
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
