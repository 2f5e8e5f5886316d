// Package webhook implements the single shared-secret ingestion contract
// spec §4.7 describes: POST /api/webhooks/<source>, one header-carried
// secret, one event shape persisted and optionally fanned out to every
// eligible user.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/noble1911/butler/internal/cache"
	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

// maxBodyBytes bounds the request body the same way the teacher's hook
// gateway does, to keep a misbehaving source from exhausting memory.
const maxBodyBytes = 256 * 1024

// dedupeWindow suppresses repeat notifications for the same event signature
// within this window. Automations commonly retry a webhook delivery on
// timeout; without this, a flaky network link turns one state change into
// several identical messages.
const dedupeWindow = 30 * time.Second

// Sender delivers a composed notification message to one user.
type Sender interface {
	Send(ctx context.Context, userID, message string) error
}

// inboundEvent is the wire shape a webhook source posts.
type inboundEvent struct {
	EventType  string         `json:"event_type"`
	EntityID   string         `json:"entity_id"`
	OldState   string         `json:"old_state"`
	NewState   string         `json:"new_state"`
	Attributes map[string]any `json:"attributes"`
}

// Handler serves POST /api/webhooks/<source> for every configured source.
// There is exactly one shared secret for the whole process - spec §4.7 is
// explicit that per-source secrets are out of scope.
type Handler struct {
	Secret string
	Events storage.WebhookEventStore
	Users  storage.UserStore
	Sender Sender
	Logger *slog.Logger
	dedupe *cache.DedupeCache
}

// NewHandler builds a Handler; secret must be non-empty (enforced by
// internal/config.Validate before this is ever constructed).
func NewHandler(secret string, events storage.WebhookEventStore, users storage.UserStore, sender Sender, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Secret: secret,
		Events: events,
		Users:  users,
		Sender: sender,
		Logger: logger,
		dedupe: cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: dedupeWindow, MaxSize: 4096}),
	}
}

const secretHeader = "X-Webhook-Secret"

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.Secret == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(h.Secret)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBodyBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var in inboundEvent
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if in.EventType == "" {
		http.Error(w, "event_type is required", http.StatusBadRequest)
		return
	}

	source := r.PathValue("source")
	if in.Attributes == nil {
		in.Attributes = map[string]any{}
	}
	in.Attributes["_source"] = source

	if err := h.process(r.Context(), in); err != nil {
		h.Logger.Error("process webhook event", "error", err, "event_type", in.EventType)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// process implements spec §4.7's four numbered steps.
func (h *Handler) process(ctx context.Context, in inboundEvent) error {
	event := &models.WebhookEvent{
		EventType:  in.EventType,
		EntityID:   in.EntityID,
		OldState:   in.OldState,
		NewState:   in.NewState,
		Attributes: in.Attributes,
	}
	id, err := h.Events.CreateEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("persist webhook event: %w", err)
	}
	event.ID = id

	if !shouldNotify(event) {
		return h.Events.MarkProcessed(ctx, id, false)
	}

	dedupeKey := fmt.Sprintf("%s|%s|%s|%s", event.Attributes["_source"], event.EventType, event.EntityID, event.NewState)
	if h.dedupe != nil && h.dedupe.Check(dedupeKey) {
		h.Logger.Debug("suppressed duplicate webhook notification", "event_type", event.EventType, "entity_id", event.EntityID)
		return h.Events.MarkProcessed(ctx, id, false)
	}

	message := composeMessage(event)
	anySucceeded, err := h.fanOut(ctx, message)
	if err != nil {
		h.Logger.Error("fan out webhook notification", "error", err)
	}
	return h.Events.MarkProcessed(ctx, id, anySucceeded)
}

// shouldNotify implements spec §4.7 step 2: explicit attributes.notify, or
// an automation_triggered event, which is always noteworthy.
func shouldNotify(event *models.WebhookEvent) bool {
	if event.EventType == "automation_triggered" {
		return true
	}
	if v, ok := event.Attributes["notify"].(bool); ok {
		return v
	}
	return false
}

// composeMessage implements spec §4.7 step 3's message derivation: an
// explicit attributes.message always wins; otherwise a default built from
// event type, friendly name, and state transition.
func composeMessage(event *models.WebhookEvent) string {
	if msg, ok := event.Attributes["message"].(string); ok && msg != "" {
		return msg
	}
	name := event.EntityID
	if friendly, ok := event.Attributes["friendly_name"].(string); ok && friendly != "" {
		name = friendly
	}
	if event.OldState != "" && event.NewState != "" {
		return fmt.Sprintf("%s: %s changed from %s to %s", event.EventType, name, event.OldState, event.NewState)
	}
	if event.NewState != "" {
		return fmt.Sprintf("%s: %s is now %s", event.EventType, name, event.NewState)
	}
	return fmt.Sprintf("%s: %s", event.EventType, name)
}

// fanOut delivers message to every user with a configured phone number,
// the eligibility rule spec §4.7 names. It reports whether any delivery
// succeeded so callers can set notification_sent accurately even when some
// users' channels are unreachable.
func (h *Handler) fanOut(ctx context.Context, message string) (bool, error) {
	users, err := h.Users.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list users: %w", err)
	}
	var anySucceeded bool
	var lastErr error
	for _, u := range users {
		if u.Phone == "" {
			continue
		}
		if err := h.Sender.Send(ctx, u.ID, message); err != nil {
			lastErr = err
			h.Logger.Warn("deliver webhook notification", "user_id", u.ID, "error", err)
			continue
		}
		anySucceeded = true
	}
	return anySucceeded, lastErr
}
