package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noble1911/butler/internal/datetime"
	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

// ListTool lists a user's pending reminders.
type ListTool struct {
	store storage.ScheduledTaskStore
	users storage.UserStore
}

// NewListTool builds a ListTool. users is used to render reminder times in
// the caller's configured timezone; a nil UserStore falls back to UTC.
func NewListTool(store storage.ScheduledTaskStore, users storage.UserStore) *ListTool {
	return &ListTool{store: store, users: users}
}

func (t *ListTool) Name() string { return "reminder_list" }

func (t *ListTool) Description() string {
	return "List the caller's reminders."
}

func (t *ListTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":            map[string]any{"type": "string", "description": "Injected automatically; do not set."},
			"include_fired": map[string]any{"type": "boolean", "description": "Include already-fired (disabled) one-shot reminders, default false"},
		},
	}
}

func (t *ListTool) UserIDField() string { return "user_id" }

type listInput struct {
	UserID       string `json:"user_id"`
	IncludeFired bool   `json:"include_fired"`
}

// Execute implements agent.Tool.
func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var input listInput
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return "", fmt.Errorf("parse input: %w", err)
		}
	}

	tasks, err := t.store.ListByOwner(ctx, input.UserID)
	if err != nil {
		return "", fmt.Errorf("list reminders: %w", err)
	}

	var reminders []*models.ScheduledTask
	for _, task := range tasks {
		if task.Action.Type != models.ActionReminder {
			continue
		}
		if !input.IncludeFired && !task.Enabled {
			continue
		}
		reminders = append(reminders, task)
	}

	if len(reminders) == 0 {
		return "No reminders found.", nil
	}

	tz := t.userTimezone(ctx, input.UserID)
	format := datetime.ResolveUserTimeFormat(datetime.TimeFormatAuto)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d reminder(s):\n\n", len(reminders))
	for i, r := range reminders {
		fmt.Fprintf(&sb, "%d. ID: %s\n   Message: %s\n", i+1, r.ID, r.Action.Message)
		if r.NextRun != nil {
			when := datetime.FormatUserTime(*r.NextRun, tz, format)
			if when == "" {
				when = r.NextRun.Format(time.RFC3339)
			}
			if d := time.Until(*r.NextRun); d > 0 {
				fmt.Fprintf(&sb, "   Fires: %s (%s)\n", when, datetime.FormatRelativeTime(*r.NextRun, time.Now()))
			} else {
				fmt.Fprintf(&sb, "   Fires: %s\n", when)
			}
		} else {
			sb.WriteString("   Status: fired\n")
		}
	}
	return sb.String(), nil
}

// userTimezone looks up the caller's configured timezone, falling back to
// the host timezone (then UTC) when unset or when no UserStore is wired.
func (t *ListTool) userTimezone(ctx context.Context, userID string) string {
	if t.users == nil {
		return datetime.ResolveUserTimezone("")
	}
	user, err := t.users.Get(ctx, userID)
	if err != nil {
		return datetime.ResolveUserTimezone("")
	}
	return datetime.ResolveUserTimezone(user.Notify.Timezone)
}
