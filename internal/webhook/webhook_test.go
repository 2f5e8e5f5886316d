package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[string]string
	fail bool
}

func (f *fakeSender) Send(ctx context.Context, userID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[userID] = message
	return nil
}

func newTestHandler(t *testing.T, secret string, sender Sender) (*Handler, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewHandler(secret, store.Webhooks, store.Users, sender, nil), store
}

func post(h *Handler, secret string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/home-assistant", bytes.NewReader(b))
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	req.SetPathValue("source", "home-assistant")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTPRejectsWhenNotConfigured(t *testing.T) {
	h, _ := newTestHandler(t, "", &fakeSender{})
	rec := post(h, "anything", map[string]any{"event_type": "state_changed"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no secret configured, got %d", rec.Code)
	}
}

func TestServeHTTPRejectsBadSecret(t *testing.T) {
	h, _ := newTestHandler(t, "correct-secret", &fakeSender{})
	rec := post(h, "wrong-secret", map[string]any{"event_type": "state_changed"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on bad secret, got %d", rec.Code)
	}
}

func TestServeHTTPNotifiesEligiblePhoneUsers(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	h, store := newTestHandler(t, "correct-secret", sender)

	user := &models.User{ID: "u1", Name: "Ada", Phone: "+15551234567"}
	if err := store.Users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	noPhone := &models.User{ID: "u2", Name: "No Phone"}
	if err := store.Users.Create(ctx, noPhone); err != nil {
		t.Fatalf("create user: %v", err)
	}

	rec := post(h, "correct-secret", map[string]any{
		"event_type":    "automation_triggered",
		"entity_id":     "automation.morning",
		"new_state":     "triggered",
		"attributes":    map[string]any{"friendly_name": "Morning Routine"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one phone-bearing user notified, got %d", len(sender.sent))
	}
	if _, ok := sender.sent["u1"]; !ok {
		t.Fatalf("expected u1 to be notified, got %v", sender.sent)
	}
}

func TestServeHTTPSkipsNotifyWhenNotRequested(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	h, store := newTestHandler(t, "correct-secret", sender)

	if err := store.Users.Create(ctx, &models.User{ID: "u1", Name: "Ada", Phone: "+15551234567"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	rec := post(h, "correct-secret", map[string]any{
		"event_type": "state_changed",
		"entity_id":  "sensor.temperature",
		"new_state":  "21",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 0 {
		t.Fatalf("expected no notifications for a non-notify event, got %d", len(sender.sent))
	}
}

func TestComposeMessagePrefersExplicitMessage(t *testing.T) {
	event := &models.WebhookEvent{
		EventType:  "state_changed",
		EntityID:   "sensor.door",
		Attributes: map[string]any{"message": "the door is open"},
	}
	if got := composeMessage(event); got != "the door is open" {
		t.Fatalf("expected explicit message to win, got %q", got)
	}
}

func TestComposeMessageDerivesFromTransition(t *testing.T) {
	event := &models.WebhookEvent{
		EventType:  "state_changed",
		EntityID:   "sensor.door",
		OldState:   "closed",
		NewState:   "open",
		Attributes: map[string]any{"friendly_name": "Front Door"},
	}
	want := "state_changed: Front Door changed from closed to open"
	if got := composeMessage(event); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
