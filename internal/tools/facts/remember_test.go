package facts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/noble1911/butler/internal/memory"
	"github.com/noble1911/butler/internal/storage"
)

func TestRememberToolStoresFact(t *testing.T) {
	store := storage.NewMemoryStore()
	fs := memory.NewFactStore(store.Users, store.Facts, nil)
	tool := NewRememberTool(fs)

	params := json.RawMessage(`{"user_id":"u1","fact":"likes tea","category":"preference"}`)
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result == "" {
		t.Fatal("expected non-empty result")
	}

	facts, err := store.Facts.ListByUser(context.Background(), "u1", time.Now().UTC())
	if err != nil {
		t.Fatalf("list facts: %v", err)
	}
	if len(facts) != 1 || facts[0].Fact != "likes tea" {
		t.Fatalf("unexpected facts: %+v", facts)
	}
}

func TestRememberToolRequiresFact(t *testing.T) {
	store := storage.NewMemoryStore()
	fs := memory.NewFactStore(store.Users, store.Facts, nil)
	tool := NewRememberTool(fs)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"user_id":"u1","category":"preference"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "fact is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestRememberToolRequiresUserID(t *testing.T) {
	store := storage.NewMemoryStore()
	fs := memory.NewFactStore(store.Users, store.Facts, nil)
	tool := NewRememberTool(fs)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"fact":"likes tea","category":"preference"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "user_id is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestRememberToolUnavailableWithoutStore(t *testing.T) {
	tool := NewRememberTool(nil)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"user_id":"u1","fact":"x","category":"other"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "memory is not configured" {
		t.Fatalf("unexpected result: %q", result)
	}
}
