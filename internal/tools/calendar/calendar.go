// Package calendar implements a calendar/email-backed tool against a
// generic OAuth2 REST calendar API, grounded on
// original_source/butler/api/oauth.py's token-refresh flow and the
// teacher's oauth2.Config usage (formerly internal/auth/oauth.go, which
// implemented the out-of-scope login/provisioning flow and was removed;
// its token-refresh pattern is adapted here instead, scoped to a single
// domain tool rather than a login service).
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/noble1911/butler/internal/storage"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultMaxResponseBytes = int64(1 << 20)
	provider                = "calendar"
)

// Config configures the OAuth2 client and the calendar REST API's base URL.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	BaseURL      string // e.g. https://www.googleapis.com/calendar/v3
	HTTPClient   *http.Client
}

// Client issues calendar API requests on behalf of a user, refreshing and
// persisting that user's OAuth token as needed.
type Client struct {
	oauthCfg oauth2.Config
	baseURL  string
	tokens   storage.OAuthTokenStore
	http     *http.Client
}

// NewClient builds a Client. tokens must be non-nil; per-user credentials
// are read from and written back to it.
func NewClient(cfg Config, tokens storage.OAuthTokenStore) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("calendar: base_url is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("calendar: token store is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		oauthCfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		http:    httpClient,
	}, nil
}

// httpClientFor builds an http.Client that auto-refreshes userID's stored
// token, persisting the refreshed token back to storage (preserving the
// existing refresh token when the provider response omits one, per spec
// §3) before the first request it's used for.
func (c *Client) httpClientFor(ctx context.Context, userID string) (*http.Client, error) {
	stored, err := c.tokens.GetToken(ctx, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("load calendar credentials: %w", err)
	}

	base := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Expiry:       stored.Expiry,
	}
	source := c.oauthCfg.TokenSource(ctx, base)

	refreshed, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh calendar token: %w", err)
	}
	if refreshed.AccessToken != stored.AccessToken {
		updated := *stored
		updated.AccessToken = refreshed.AccessToken
		updated.Expiry = refreshed.Expiry
		if refreshed.RefreshToken != "" {
			updated.RefreshToken = refreshed.RefreshToken
		}
		if err := c.tokens.Upsert(ctx, &updated); err != nil {
			return nil, fmt.Errorf("persist refreshed calendar token: %w", err)
		}
	}

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(refreshed)), nil
}

// Event is the subset of a calendar API event this tool surfaces.
type Event struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location,omitempty"`
}

type listEventsResponse struct {
	Items []Event `json:"items"`
}

// ListEvents fetches events for userID between from and to (RFC3339).
func (c *Client) ListEvents(ctx context.Context, userID string, from, to time.Time) ([]Event, error) {
	httpClient, err := c.httpClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("timeMin", from.UTC().Format(time.RFC3339))
	q.Set("timeMax", to.UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/calendars/primary/events?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build calendar request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read calendar response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("calendar API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out listEventsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode calendar response: %w", err)
	}
	return out.Items, nil
}
