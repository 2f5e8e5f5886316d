package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// seriesResult is the subset of Sonarr's /series/lookup response this tool
// surfaces.
type seriesResult struct {
	Title    string `json:"title"`
	Year     int    `json:"year"`
	TvdbID   int    `json:"tvdbId"`
	Status   string `json:"status"`
}

// SeriesSearchTool looks up TV series by title via Sonarr.
type SeriesSearchTool struct {
	client *client
}

// NewSeriesSearchTool builds a SeriesSearchTool against a Sonarr instance.
func NewSeriesSearchTool(cfg BackendConfig) (*SeriesSearchTool, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &SeriesSearchTool{client: c}, nil
}

func (t *SeriesSearchTool) Name() string { return "series_search" }

func (t *SeriesSearchTool) Description() string {
	return "Searches for a TV series by title and reports its tracking status."
}

func (t *SeriesSearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string", "description": "Series title to search for."},
		},
		"required": []string{"title"},
	}
}

type seriesSearchInput struct {
	Title string `json:"title"`
}

func (t *SeriesSearchTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var input seriesSearchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if strings.TrimSpace(input.Title) == "" {
		return "title is required", nil
	}

	q := url.Values{"term": {input.Title}}
	raw, err := t.client.get(ctx, "/api/v3/series/lookup", q)
	if err != nil {
		return "", fmt.Errorf("search series: %w", err)
	}

	var results []seriesResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return "", fmt.Errorf("decode series search response: %w", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No series found matching %q.", input.Title), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n\n", len(results))
	for i, s := range results {
		fmt.Fprintf(&sb, "%d. %s (%d) [tvdb:%d] - %s\n", i+1, s.Title, s.Year, s.TvdbID, s.Status)
	}
	return sb.String(), nil
}
