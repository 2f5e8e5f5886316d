package media

import (
	"context"
	"encoding/json"
	"fmt"
)

// RequestTool files a new-media request against Overseerr/Jellyseerr,
// grounded on original_source/butler/tools/seerr.py: a request carries a
// TMDB id and a media type, and the server handles sourcing it to
// whichever *arr backend owns that type.
type RequestTool struct {
	client *client
}

// NewRequestTool builds a RequestTool against an Overseerr/Jellyseerr instance.
func NewRequestTool(cfg BackendConfig) (*RequestTool, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &RequestTool{client: c}, nil
}

func (t *RequestTool) Name() string { return "media_request" }

func (t *RequestTool) Description() string {
	return "Files a request to add a movie or TV series to the media library (by TMDB id)."
}

func (t *RequestTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tmdb_id":    map[string]any{"type": "integer", "description": "TMDB id, from movie_search or series_search."},
			"media_type": map[string]any{"type": "string", "enum": []string{"movie", "tv"}},
		},
		"required": []string{"tmdb_id", "media_type"},
	}
}

type requestInput struct {
	TmdbID    int    `json:"tmdb_id"`
	MediaType string `json:"media_type"`
}

type requestPayload struct {
	MediaID   int    `json:"mediaId"`
	MediaType string `json:"mediaType"`
}

func (t *RequestTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var input requestInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if input.TmdbID <= 0 {
		return "tmdb_id is required", nil
	}
	if input.MediaType != "movie" && input.MediaType != "tv" {
		return "media_type must be \"movie\" or \"tv\"", nil
	}

	if _, err := t.client.post(ctx, "/api/v1/request", requestPayload{MediaID: input.TmdbID, MediaType: input.MediaType}); err != nil {
		return "", fmt.Errorf("file media request: %w", err)
	}
	return fmt.Sprintf("Requested %s (tmdb:%d).", input.MediaType, input.TmdbID), nil
}
