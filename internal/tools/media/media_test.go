package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMovieSearchToolReturnsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]movieResult{
			{Title: "Inception", Year: 2010, TmdbID: 27205, HasFile: false},
		})
	}))
	defer server.Close()

	tool, err := NewMovieSearchTool(BackendConfig{BaseURL: server.URL, APIKey: "key"})
	if err != nil {
		t.Fatalf("NewMovieSearchTool: %v", err)
	}

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"title":"Inception"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(result, "Inception") || !strings.Contains(result, "not in library") {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestMovieAddToolRequiresDestination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach server without a configured destination")
	}))
	defer server.Close()

	tool, err := NewMovieAddTool(BackendConfig{BaseURL: server.URL, APIKey: "key"}, "", 0)
	if err != nil {
		t.Fatalf("NewMovieAddTool: %v", err)
	}

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"tmdb_id":27205,"title":"Inception"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "movie library destination is not configured" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestSeriesSearchToolReturnsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]seriesResult{
			{Title: "Severance", Year: 2022, TvdbID: 371980, Status: "continuing"},
		})
	}))
	defer server.Close()

	tool, err := NewSeriesSearchTool(BackendConfig{BaseURL: server.URL, APIKey: "key"})
	if err != nil {
		t.Fatalf("NewSeriesSearchTool: %v", err)
	}

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"title":"Severance"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(result, "Severance") {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestRequestToolValidatesMediaType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach server with an invalid media_type")
	}))
	defer server.Close()

	tool, err := NewRequestTool(BackendConfig{BaseURL: server.URL, APIKey: "key"})
	if err != nil {
		t.Fatalf("NewRequestTool: %v", err)
	}

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"tmdb_id":27205,"media_type":"album"}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != `media_type must be "movie" or "tv"` {
		t.Fatalf("unexpected result: %q", result)
	}
}
