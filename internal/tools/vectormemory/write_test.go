package vectormemory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/noble1911/butler/pkg/models"
)

type fakeIndexer struct {
	entries []*models.MemoryEntry
	err     error
}

func (f *fakeIndexer) Index(_ context.Context, entries []*models.MemoryEntry) error {
	f.entries = entries
	return f.err
}

func TestWriteToolUserScopeStoresUserID(t *testing.T) {
	indexer := &fakeIndexer{}
	tool := NewWriteTool(indexer)

	params := json.RawMessage(`{"user_id":"u1","content":"hello","tags":["summary"]}`)
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result == "" {
		t.Fatal("expected non-empty result")
	}
	if len(indexer.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(indexer.entries))
	}
	entry := indexer.entries[0]
	if entry.UserID != "u1" {
		t.Errorf("UserID = %q, want %q", entry.UserID, "u1")
	}
	if len(entry.Metadata.Tags) != 1 || entry.Metadata.Tags[0] != "summary" {
		t.Errorf("Tags = %v, want [summary]", entry.Metadata.Tags)
	}
}

func TestWriteToolGlobalScopeHasNoUserID(t *testing.T) {
	indexer := &fakeIndexer{}
	tool := NewWriteTool(indexer)

	params := json.RawMessage(`{"user_id":"u1","content":"shared fact","scope":"global"}`)
	if _, err := tool.Execute(context.Background(), params); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if indexer.entries[0].UserID != "" {
		t.Errorf("expected empty UserID for global scope, got %q", indexer.entries[0].UserID)
	}
}

func TestWriteToolRequiresContent(t *testing.T) {
	tool := NewWriteTool(&fakeIndexer{})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "content is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestWriteToolRequiresUserIDForUserScope(t *testing.T) {
	tool := NewWriteTool(&fakeIndexer{})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"content":"hello"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "user_id is required for user scope" {
		t.Fatalf("unexpected result: %q", result)
	}
}
