package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

func TestListEventsRefreshesExpiredTokenAndFetches(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "refreshed-token",
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	}))
	defer tokenServer.Close()

	var gotAuth string
	calServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []Event{{ID: "1", Summary: "Dentist", Start: "09:00", End: "09:30"}},
		})
	}))
	defer calServer.Close()

	store := storage.NewMemoryStore()
	if err := store.OAuthTokens.Upsert(context.Background(), &models.OAuthToken{
		UserID:       "u1",
		Provider:     "calendar",
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	client, err := NewClient(Config{
		TokenURL: tokenServer.URL,
		BaseURL:  calServer.URL,
	}, store.OAuthTokens)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	events, err := client.ListEvents(context.Background(), "u1", time.Now(), time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Summary != "Dentist" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if !strings.Contains(gotAuth, "refreshed-token") {
		t.Fatalf("expected refreshed token in request, got %q", gotAuth)
	}

	stored, err := store.OAuthTokens.GetToken(context.Background(), "u1", "calendar")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if stored.AccessToken != "refreshed-token" {
		t.Fatalf("expected persisted refreshed token, got %q", stored.AccessToken)
	}
}

func TestListEventsToolRequiresUserID(t *testing.T) {
	tool := NewListEventsTool(nil)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if result != "calendar is not configured" {
		t.Fatalf("unexpected result: %q", result)
	}
}
