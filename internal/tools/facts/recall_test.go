package facts

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/noble1911/butler/internal/memory"
	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

func TestRecallToolReturnsRememberedFacts(t *testing.T) {
	store := storage.NewMemoryStore()
	fs := memory.NewFactStore(store.Users, store.Facts, nil)
	if _, err := fs.Remember(context.Background(), "u1", "likes tea", models.FactPreference, 0.8, models.FactSourceExplicit); err != nil {
		t.Fatalf("remember: %v", err)
	}

	tool := NewRecallTool(fs)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(result, "likes tea") {
		t.Fatalf("expected recalled fact in result, got %q", result)
	}
}

func TestRecallToolRequiresUserID(t *testing.T) {
	store := storage.NewMemoryStore()
	fs := memory.NewFactStore(store.Users, store.Facts, nil)
	tool := NewRecallTool(fs)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "user_id is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestRecallToolUnavailableWithoutStore(t *testing.T) {
	tool := NewRecallTool(nil)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "memory is not configured" {
		t.Fatalf("unexpected result: %q", result)
	}
}
