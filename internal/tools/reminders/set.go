// Package reminders exposes tools for creating and managing user reminders,
// implemented as one-shot entries in storage.ScheduledTaskStore.
package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

// SetTool creates a reminder that fires once at a specified time.
type SetTool struct {
	store storage.ScheduledTaskStore
}

// NewSetTool builds a SetTool.
func NewSetTool(store storage.ScheduledTaskStore) *SetTool {
	return &SetTool{store: store}
}

func (t *SetTool) Name() string { return "reminder_set" }

func (t *SetTool) Description() string {
	return "Set a reminder to send a message at a specified time. Accepts relative times like 'in 5 minutes' or an ISO8601 timestamp."
}

func (t *SetTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "description": "Injected automatically; do not set."},
			"message": map[string]any{"type": "string", "description": "The reminder message to send when triggered"},
			"when":    map[string]any{"type": "string", "description": "When to send the reminder: 'in X minutes/hours/days', or an ISO8601 timestamp"},
			"category": map[string]any{"type": "string", "description": "Notification category for rate-limit/quiet-hours gating, defaults to \"reminders\""},
		},
		"required": []string{"message", "when"},
	}
}

func (t *SetTool) UserIDField() string { return "user_id" }

type setInput struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	When     string `json:"when"`
	Category string `json:"category"`
}

// Execute implements agent.Tool.
func (t *SetTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var input setInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if input.Message == "" {
		return "message is required", nil
	}
	if input.When == "" {
		return "when is required", nil
	}

	triggerAt, err := parseWhen(input.When)
	if err != nil {
		return fmt.Sprintf("invalid time: %v", err), nil
	}
	if triggerAt.Before(time.Now()) {
		return "cannot set a reminder in the past", nil
	}

	category := input.Category
	if category == "" {
		category = "reminders"
	}

	task := &models.ScheduledTask{
		ID:          uuid.NewString(),
		OwnerUserID: input.UserID,
		Name:        formatReminderName(input.Message),
		Action:      models.ActionPayload{Type: models.ActionReminder, Message: input.Message, Category: category},
		Enabled:     true,
		NextRun:     &triggerAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := t.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("create reminder: %w", err)
	}

	duration := time.Until(triggerAt).Round(time.Second)
	return fmt.Sprintf("Reminder set for %s (in %s)\nID: %s\nMessage: %s",
		triggerAt.Format("Mon Jan 2 3:04 PM"), formatDuration(duration), task.ID, input.Message), nil
}

// parseWhen parses a time specification into an absolute time. Supports
// "in X <unit>" relative forms and a handful of absolute formats.
func parseWhen(when string) (time.Time, error) {
	when = strings.TrimSpace(strings.ToLower(when))

	if strings.HasPrefix(when, "in ") {
		return parseRelativeTime(strings.TrimPrefix(when, "in "))
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"Jan 2 15:04",
		"Jan 2 3:04 PM",
		"3:04 PM",
		"15:04",
	}
	for _, format := range formats {
		if parsed, err := time.Parse(format, when); err == nil {
			if parsed.Year() == 0 {
				now := time.Now()
				parsed = time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.Local)
				if parsed.Before(now) {
					parsed = parsed.Add(24 * time.Hour)
				}
			}
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse time: %s", when)
}

var relativeTimePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(seconds?|minutes?|mins?|hours?|hrs?|days?|weeks?)$`)

func parseRelativeTime(s string) (time.Time, error) {
	matches := relativeTimePattern.FindStringSubmatch(strings.TrimSpace(strings.ToLower(s)))
	if matches == nil {
		return time.Time{}, fmt.Errorf("invalid relative time: %s", s)
	}
	amount, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid number: %s", matches[1])
	}

	var duration time.Duration
	switch unit := matches[2]; {
	case strings.HasPrefix(unit, "second"):
		duration = time.Duration(amount * float64(time.Second))
	case strings.HasPrefix(unit, "min"):
		duration = time.Duration(amount * float64(time.Minute))
	case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
		duration = time.Duration(amount * float64(time.Hour))
	case strings.HasPrefix(unit, "day"):
		duration = time.Duration(amount * float64(24*time.Hour))
	case strings.HasPrefix(unit, "week"):
		duration = time.Duration(amount * float64(7*24*time.Hour))
	default:
		return time.Time{}, fmt.Errorf("unknown unit: %s", unit)
	}
	return time.Now().Add(duration), nil
}

func formatReminderName(message string) string {
	if len(message) > 50 {
		return fmt.Sprintf("Reminder: %s...", message[:47])
	}
	return fmt.Sprintf("Reminder: %s", message)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	if d < 24*time.Hour {
		hrs := d.Hours()
		if hrs < 2 {
			return "1 hour"
		}
		return fmt.Sprintf("%.1f hours", hrs)
	}
	days := d.Hours() / 24
	if days < 2 {
		return "1 day"
	}
	return fmt.Sprintf("%.1f days", days)
}
