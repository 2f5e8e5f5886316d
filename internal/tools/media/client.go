// Package media implements the movies/TV/requests media-management tools
// (Radarr, Sonarr, Overseerr/Jellyseerr), grounded on
// original_source/butler/tools/{radarr,sonarr,seerr}.py: each backend is a
// thin REST client authenticated with an X-Api-Key header, sharing one
// HTTP-client helper the way the teacher's tool packages share client.go
// helpers (see internal/tools/homeassistant/client.go).
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = int64(1 << 20)
)

// BackendConfig configures one *arr-family or Overseerr-family instance.
type BackendConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// client is the shared REST helper every backend-specific tool embeds.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(cfg BackendConfig) (*client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("media: base_url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("media: api_key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &client{baseURL: baseURL, apiKey: cfg.APIKey, http: httpClient}, nil
}

func (c *client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.doJSON(ctx, http.MethodGet, endpoint, nil)
}

func (c *client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("media: encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	return c.doJSON(ctx, http.MethodPost, c.baseURL+path, body)
}

func (c *client) doJSON(ctx context.Context, method, endpoint string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("media: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media: read response: %w", err)
	}
	if int64(len(data)) > defaultMaxResponseBytes {
		return nil, fmt.Errorf("media: response too large")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("media: %s", msg)
	}
	return json.RawMessage(data), nil
}
