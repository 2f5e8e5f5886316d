package vectormemory

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/noble1911/butler/pkg/models"
)

type fakeSearcher struct {
	lastSearch  *models.SearchRequest
	response    *models.SearchResponse
	searchError error
}

func (f *fakeSearcher) Search(_ context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	f.lastSearch = req
	return f.response, f.searchError
}

func TestSearchToolDefaultsToUserScope(t *testing.T) {
	mgr := &fakeSearcher{
		response: &models.SearchResponse{
			Results: []*models.SearchResult{
				{Entry: &models.MemoryEntry{ID: "m1", Content: "hello"}, Score: 0.9},
			},
		},
	}
	tool := NewSearchTool(mgr, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"hello","user_id":"u1"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(result, "\"m1\"") {
		t.Fatalf("unexpected result: %q", result)
	}
	if mgr.lastSearch.Scope != models.ScopeUser {
		t.Errorf("Scope = %q, want %q", mgr.lastSearch.Scope, models.ScopeUser)
	}
	if mgr.lastSearch.ScopeID != "u1" {
		t.Errorf("ScopeID = %q, want %q", mgr.lastSearch.ScopeID, "u1")
	}
}

func TestSearchToolGlobalScope(t *testing.T) {
	mgr := &fakeSearcher{response: &models.SearchResponse{}}
	tool := NewSearchTool(mgr, nil)

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"hello","scope":"global"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if mgr.lastSearch.Scope != models.ScopeGlobal {
		t.Errorf("Scope = %q, want %q", mgr.lastSearch.Scope, models.ScopeGlobal)
	}
	if mgr.lastSearch.ScopeID != "" {
		t.Errorf("expected empty scope id for global scope, got %q", mgr.lastSearch.ScopeID)
	}
}

func TestSearchToolRequiresUserIDForUserScope(t *testing.T) {
	tool := NewSearchTool(&fakeSearcher{}, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"hello"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "user_id is required for user scope" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	tool := NewSearchTool(&fakeSearcher{}, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "query is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestSearchToolUnavailableWithoutManager(t *testing.T) {
	tool := NewSearchTool(nil, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"hello","user_id":"u1"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "vector memory is unavailable" {
		t.Fatalf("unexpected result: %q", result)
	}
}
