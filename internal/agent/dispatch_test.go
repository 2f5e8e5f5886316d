package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type recordingAudit struct {
	records []ToolUsageRecord
}

func (r *recordingAudit) RecordToolUsage(ctx context.Context, rec ToolUsageRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type failingAudit struct{}

func (failingAudit) RecordToolUsage(ctx context.Context, rec ToolUsageRecord) error {
	return errors.New("write failed")
}

type echoUserIDTool struct{}

func (echoUserIDTool) Name() string        { return "echo" }
func (echoUserIDTool) Description() string { return "echoes user_id back" }
func (echoUserIDTool) Schema() map[string]any {
	return map[string]any{"properties": map[string]any{"user_id": map[string]any{"type": "string"}}}
}
func (echoUserIDTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var m map[string]string
	_ = json.Unmarshal(input, &m)
	return m["user_id"], nil
}

type erroringTool struct{}

func (erroringTool) Name() string                     { return "boom" }
func (erroringTool) Description() string              { return "always fails" }
func (erroringTool) Schema() map[string]any           { return map[string]any{} }
func (erroringTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return "", errors.New("kaboom")
}

func TestDispatcher_UnknownTool(t *testing.T) {
	audit := &recordingAudit{}
	d := NewDispatcher(audit)

	result := d.Execute(context.Background(), "nonexistent", nil, map[string]Tool{}, "u1", "pwa")
	if result != "Unknown tool: nonexistent" {
		t.Errorf("result = %q, want %q", result, "Unknown tool: nonexistent")
	}
	if len(audit.records) != 1 || audit.records[0].Error != "unknown tool" {
		t.Errorf("expected one audit record with error 'unknown tool', got %+v", audit.records)
	}
}

func TestDispatcher_InjectsAuthenticatedUserID(t *testing.T) {
	audit := &recordingAudit{}
	d := NewDispatcher(audit)
	tools := map[string]Tool{"echo": echoUserIDTool{}}

	input := json.RawMessage(`{"user_id":"attacker"}`)
	result := d.Execute(context.Background(), "echo", input, tools, "real-user", "pwa")

	if result != "real-user" {
		t.Errorf("result = %q, want %q (impersonation not prevented)", result, "real-user")
	}
}

func TestDispatcher_ToolError(t *testing.T) {
	audit := &recordingAudit{}
	d := NewDispatcher(audit)
	tools := map[string]Tool{"boom": erroringTool{}}

	result := d.Execute(context.Background(), "boom", nil, tools, "u1", "pwa")
	want := "Error executing boom: kaboom"
	if result != want {
		t.Errorf("result = %q, want %q", result, want)
	}
	if len(audit.records) != 1 || audit.records[0].Error != "kaboom" {
		t.Errorf("expected audit record with error 'kaboom', got %+v", audit.records)
	}
}

func TestDispatcher_SwallowsAuditWriteFailures(t *testing.T) {
	d := NewDispatcher(failingAudit{})
	tools := map[string]Tool{"echo": echoUserIDTool{}}

	result := d.Execute(context.Background(), "echo", json.RawMessage(`{}`), tools, "u1", "pwa")
	if result != "u1" {
		t.Errorf("result = %q, want %q (audit failure should not affect the turn)", result, "u1")
	}
}
