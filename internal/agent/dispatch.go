package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// maxAuditResultBytes caps the result summary persisted to the audit log.
const maxAuditResultBytes = 500

// AuditRecorder is the narrow audit-write surface the dispatcher needs.
// internal/audit.ToolUsageRecorder implements it. Write failures must never
// be allowed to fail a tool dispatch; the dispatcher discards the returned
// error.
type AuditRecorder interface {
	RecordToolUsage(ctx context.Context, rec ToolUsageRecord) error
}

// ToolMetricsRecorder is the narrow metrics surface the dispatcher needs.
// internal/observability.Metrics implements it via RecordToolExecution.
type ToolMetricsRecorder interface {
	RecordToolExecution(toolName, status string, durationSeconds float64)
}

// ToolTracer is the narrow tracing surface the dispatcher needs.
// internal/observability.Tracer implements it.
type ToolTracer interface {
	TraceToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span)
	RecordError(span trace.Span, err error)
}

// ToolUsageRecord mirrors the persisted ToolUsage row (spec §3): who called
// what, with what parameters, how long it took, and whether it failed.
type ToolUsageRecord struct {
	UserID        string
	ToolName      string
	Parameters    json.RawMessage
	ResultSummary string
	Error         string
	DurationMS    int64
	Channel       string
	CreatedAt     time.Time
}

// Dispatcher resolves tool names against the tool set passed to each
// Execute call (the tools the caller is authorized to use) and logs every
// invocation to an audit sink. One Dispatcher is shared across turns.
type Dispatcher struct {
	audit   AuditRecorder
	metrics ToolMetricsRecorder
	tracer  ToolTracer
}

// NewDispatcher builds a Dispatcher. audit may be nil, in which case audit
// writes are skipped entirely (used in tests).
func NewDispatcher(audit AuditRecorder) *Dispatcher {
	return &Dispatcher{audit: audit}
}

// WithMetrics attaches a ToolMetricsRecorder, returning the same Dispatcher
// for chaining at construction time. Metrics recording is skipped entirely
// when unset (the default, used in tests).
func (d *Dispatcher) WithMetrics(metrics ToolMetricsRecorder) *Dispatcher {
	d.metrics = metrics
	return d
}

// WithTracer attaches a ToolTracer, returning the same Dispatcher for
// chaining. Tracing is skipped entirely when unset (the default).
func (d *Dispatcher) WithTracer(tracer ToolTracer) *Dispatcher {
	d.tracer = tracer
	return d
}

// Execute implements execute_and_log_tool (spec §4.2): resolve name against
// tools, overwrite any user_id field in inputs with the authenticated
// userID, run the tool, and record an audit row. It never returns an error
// to the caller — every failure mode is folded into the returned string, so
// a bad tool call can never abort the conversation turn.
func (d *Dispatcher) Execute(ctx context.Context, name string, inputs json.RawMessage, tools map[string]Tool, userID, channel string) string {
	tool, ok := tools[name]
	if !ok {
		d.record(ctx, ToolUsageRecord{
			UserID:     userID,
			ToolName:   name,
			Parameters: inputs,
			Error:      "unknown tool",
			Channel:    channel,
			CreatedAt:  now(),
		})
		d.recordMetrics(name, "unknown", 0)
		return fmt.Sprintf("Unknown tool: %s", name)
	}

	inputs = injectUserID(tool, inputs, userID)

	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.TraceToolExecution(ctx, name)
		defer span.End()
	}

	start := time.Now()
	result, err := tool.Execute(ctx, inputs)
	duration := time.Since(start)

	if err != nil {
		if d.tracer != nil {
			d.tracer.RecordError(span, err)
		}
		d.record(ctx, ToolUsageRecord{
			UserID:        userID,
			ToolName:      name,
			Parameters:    inputs,
			ResultSummary: "",
			Error:         err.Error(),
			DurationMS:    duration.Milliseconds(),
			Channel:       channel,
			CreatedAt:     now(),
		})
		d.recordMetrics(name, "error", duration.Seconds())
		return fmt.Sprintf("Error executing %s: %s", name, err.Error())
	}

	d.record(ctx, ToolUsageRecord{
		UserID:        userID,
		ToolName:      name,
		Parameters:    inputs,
		ResultSummary: truncate(result, maxAuditResultBytes),
		DurationMS:    duration.Milliseconds(),
		Channel:       channel,
		CreatedAt:     now(),
	})
	d.recordMetrics(name, "success", duration.Seconds())
	return result
}

func (d *Dispatcher) recordMetrics(toolName, status string, durationSeconds float64) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordToolExecution(toolName, status, durationSeconds)
}

func (d *Dispatcher) record(ctx context.Context, rec ToolUsageRecord) {
	if d.audit == nil {
		return
	}
	// Audit-log write failures are swallowed: the user turn must never
	// break because the audit trail couldn't be written.
	_ = d.audit.RecordToolUsage(ctx, rec)
}

// injectUserID overwrites the tool's declared user-id field in inputs with
// the authenticated caller's id, preventing the LLM from impersonating
// another user via a forged parameter. The field is declared either via the
// UserScopedTool interface or, by default, named "user_id" in the tool's
// JSON schema properties.
func injectUserID(tool Tool, inputs json.RawMessage, userID string) json.RawMessage {
	field := "user_id"
	if ust, ok := tool.(UserScopedTool); ok {
		field = ust.UserIDField()
		if field == "" {
			return inputs
		}
	} else if !schemaHasField(tool.Schema(), field) {
		return inputs
	}

	var m map[string]json.RawMessage
	if len(inputs) == 0 {
		inputs = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(inputs, &m); err != nil {
		return inputs
	}
	if m == nil {
		m = make(map[string]json.RawMessage)
	}
	encodedUserID, err := json.Marshal(userID)
	if err != nil {
		return inputs
	}
	m[field] = encodedUserID
	out, err := json.Marshal(m)
	if err != nil {
		return inputs
	}
	return out
}

func schemaHasField(schema map[string]any, field string) bool {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = props[field]
	return ok
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}

var now = time.Now
