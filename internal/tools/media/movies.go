package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// movieResult is the subset of Radarr's /movie/lookup response this tool
// surfaces.
type movieResult struct {
	Title    string `json:"title"`
	Year     int    `json:"year"`
	TmdbID   int    `json:"tmdbId"`
	Overview string `json:"overview"`
	HasFile  bool   `json:"hasFile"`
}

// MovieSearchTool looks up movies by title via Radarr (original_source's
// radarr.py's "search_movie" action).
type MovieSearchTool struct {
	client *client
}

// NewMovieSearchTool builds a MovieSearchTool against a Radarr instance.
func NewMovieSearchTool(cfg BackendConfig) (*MovieSearchTool, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MovieSearchTool{client: c}, nil
}

func (t *MovieSearchTool) Name() string { return "movie_search" }

func (t *MovieSearchTool) Description() string {
	return "Searches for a movie by title and reports whether it is already in the library."
}

func (t *MovieSearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string", "description": "Movie title to search for."},
		},
		"required": []string{"title"},
	}
}

type movieSearchInput struct {
	Title string `json:"title"`
}

func (t *MovieSearchTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var input movieSearchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if strings.TrimSpace(input.Title) == "" {
		return "title is required", nil
	}

	q := url.Values{"term": {input.Title}}
	raw, err := t.client.get(ctx, "/api/v3/movie/lookup", q)
	if err != nil {
		return "", fmt.Errorf("search movies: %w", err)
	}

	var results []movieResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return "", fmt.Errorf("decode movie search response: %w", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No movies found matching %q.", input.Title), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d result(s):\n\n", len(results))
	for i, m := range results {
		status := "not in library"
		if m.HasFile {
			status = "downloaded"
		}
		fmt.Fprintf(&sb, "%d. %s (%d) [tmdb:%d] - %s\n", i+1, m.Title, m.Year, m.TmdbID, status)
	}
	return sb.String(), nil
}

// MovieAddTool adds a movie to Radarr's monitored library by TMDB id.
type MovieAddTool struct {
	client     *client
	rootFolder string
	profileID  int
}

// NewMovieAddTool builds a MovieAddTool. rootFolder and profileID are
// Radarr's required destination/quality settings for a new movie; an
// operator configures both once via environment, mirroring
// original_source's cached root-folder/quality-profile auto-detection.
func NewMovieAddTool(cfg BackendConfig, rootFolder string, profileID int) (*MovieAddTool, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MovieAddTool{client: c, rootFolder: rootFolder, profileID: profileID}, nil
}

func (t *MovieAddTool) Name() string { return "movie_add" }

func (t *MovieAddTool) Description() string {
	return "Adds a movie to the library for download, by TMDB id (from movie_search)."
}

func (t *MovieAddTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tmdb_id": map[string]any{"type": "integer", "description": "TMDB id, from movie_search results."},
			"title":   map[string]any{"type": "string", "description": "Movie title (for the library entry)."},
			"year":    map[string]any{"type": "integer", "description": "Release year."},
		},
		"required": []string{"tmdb_id", "title"},
	}
}

type movieAddInput struct {
	TmdbID int    `json:"tmdb_id"`
	Title  string `json:"title"`
	Year   int    `json:"year"`
}

type movieAddPayload struct {
	Title            string `json:"title"`
	TmdbID           int    `json:"tmdbId"`
	Year             int    `json:"year"`
	RootFolderPath   string `json:"rootFolderPath"`
	QualityProfileID int    `json:"qualityProfileId"`
	Monitored        bool   `json:"monitored"`
	AddOptions       struct {
		SearchForMovie bool `json:"searchForMovie"`
	} `json:"addOptions"`
}

func (t *MovieAddTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var input movieAddInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if input.TmdbID <= 0 || strings.TrimSpace(input.Title) == "" {
		return "tmdb_id and title are required", nil
	}
	if t.rootFolder == "" || t.profileID <= 0 {
		return "movie library destination is not configured", nil
	}

	payload := movieAddPayload{
		Title:            input.Title,
		TmdbID:           input.TmdbID,
		Year:             input.Year,
		RootFolderPath:   t.rootFolder,
		QualityProfileID: t.profileID,
		Monitored:        true,
	}
	payload.AddOptions.SearchForMovie = true

	if _, err := t.client.post(ctx, "/api/v3/movie", payload); err != nil {
		return "", fmt.Errorf("add movie: %w", err)
	}
	return fmt.Sprintf("Added %q (%d) to the library and queued a search.", input.Title, input.Year), nil
}
