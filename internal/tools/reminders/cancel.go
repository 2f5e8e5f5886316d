package reminders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

// CancelTool cancels a reminder by ID.
type CancelTool struct {
	store storage.ScheduledTaskStore
}

// NewCancelTool builds a CancelTool.
func NewCancelTool(store storage.ScheduledTaskStore) *CancelTool {
	return &CancelTool{store: store}
}

func (t *CancelTool) Name() string { return "reminder_cancel" }

func (t *CancelTool) Description() string {
	return "Cancel a reminder by its ID."
}

func (t *CancelTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":     map[string]any{"type": "string", "description": "Injected automatically; do not set."},
			"reminder_id": map[string]any{"type": "string", "description": "The ID of the reminder to cancel"},
		},
		"required": []string{"reminder_id"},
	}
}

func (t *CancelTool) UserIDField() string { return "user_id" }

type cancelInput struct {
	UserID     string `json:"user_id"`
	ReminderID string `json:"reminder_id"`
}

// Execute implements agent.Tool.
func (t *CancelTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var input cancelInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if input.ReminderID == "" {
		return "reminder_id is required", nil
	}

	task, err := t.store.GetTask(ctx, input.ReminderID)
	if err != nil {
		if err == storage.ErrNotFound {
			return "reminder not found", nil
		}
		return "", fmt.Errorf("get reminder: %w", err)
	}
	if task.OwnerUserID != input.UserID {
		return "reminder not found", nil
	}
	if task.Action.Type != models.ActionReminder {
		return "not a reminder", nil
	}
	if !task.Enabled {
		return "reminder already cancelled", nil
	}

	task.Enabled = false
	task.NextRun = nil
	if err := t.store.UpdateTask(ctx, task); err != nil {
		return "", fmt.Errorf("cancel reminder: %w", err)
	}
	return fmt.Sprintf("Reminder cancelled: %s", task.Action.Message), nil
}
