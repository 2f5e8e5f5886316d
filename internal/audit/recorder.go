package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/noble1911/butler/internal/agent"
	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

// ToolUsageRecorder implements agent.AuditRecorder against the durable
// ToolUsage table (spec §3), while also forwarding each call to an optional
// Logger so the structured operational trail and the queryable audit trail
// stay in sync - the same "both exist side by side" split the teacher's
// audit package already draws between its file/slog sink and its event
// taxonomy.
type ToolUsageRecorder struct {
	store  storage.ToolUsageStore
	logger *Logger
}

// NewToolUsageRecorder builds a ToolUsageRecorder. logger may be nil, in
// which case only the durable row is written.
func NewToolUsageRecorder(store storage.ToolUsageStore, logger *Logger) *ToolUsageRecorder {
	return &ToolUsageRecorder{store: store, logger: logger}
}

// RecordToolUsage persists one ToolUsage row. A write failure is returned
// to the caller (internal/agent.Dispatcher discards it) and
// also emitted as a structured event when a Logger is attached, matching
// the teacher's "log to slog on DB write failure" convention.
func (r *ToolUsageRecorder) RecordToolUsage(ctx context.Context, rec agent.ToolUsageRecord) error {
	row := &models.ToolUsage{
		UserID:     rec.UserID,
		ToolName:   rec.ToolName,
		Parameters: string(rec.Parameters),
		Result:     rec.ResultSummary,
		Error:      rec.Error,
		DurationMs: rec.DurationMS,
		Channel:    models.Channel(rec.Channel),
		CreatedAt:  rec.CreatedAt,
	}

	err := r.store.CreateUsage(ctx, row)

	if r.logger != nil {
		sessionKey := fmt.Sprintf("user:%s", rec.UserID)
		duration := time.Duration(rec.DurationMS) * time.Millisecond
		if rec.Error != "" {
			r.logger.LogToolCompletion(ctx, rec.ToolName, "", false, rec.Error, duration, sessionKey)
		} else {
			r.logger.LogToolCompletion(ctx, rec.ToolName, "", true, rec.ResultSummary, duration, sessionKey)
		}
		if err != nil {
			r.logger.LogError(ctx, EventAgentError, "persist_tool_usage", err.Error(), map[string]any{"tool": rec.ToolName}, sessionKey)
		}
	}

	return err
}
