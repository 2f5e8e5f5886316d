package health

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/noble1911/butler/internal/storage"
)

type fakePinger struct {
	err   error
	stats storage.PoolStats
}

func (f fakePinger) Ping(ctx context.Context) error       { return f.err }
func (f fakePinger) Stats() storage.PoolStats             { return f.stats }

func TestToolReportsReachableStorage(t *testing.T) {
	tool := NewTool(fakePinger{stats: storage.PoolStats{OpenConnections: 3, InUse: 1, Idle: 2}}, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(result, "reachable") || !strings.Contains(result, "open connections: 3") {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestToolReportsUnreachableStorage(t *testing.T) {
	tool := NewTool(fakePinger{err: errors.New("connection refused")}, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(result, "unreachable") {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestToolUnavailableWithoutStore(t *testing.T) {
	tool := NewTool(nil, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "storage is not configured" {
		t.Fatalf("unexpected result: %q", result)
	}
}
