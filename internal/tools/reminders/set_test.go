package reminders

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/noble1911/butler/internal/storage"
)

func TestParseWhenRelativeTime(t *testing.T) {
	tests := []struct {
		input    string
		minDelta time.Duration
		maxDelta time.Duration
	}{
		{"in 5 minutes", 4 * time.Minute, 6 * time.Minute},
		{"in 1 hour", 59 * time.Minute, 61 * time.Minute},
		{"in 30 seconds", 25 * time.Second, 35 * time.Second},
		{"in 1 day", 23 * time.Hour, 25 * time.Hour},
		{"in 10 mins", 9 * time.Minute, 11 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := parseWhen(tt.input)
			if err != nil {
				t.Fatalf("parseWhen(%q) failed: %v", tt.input, err)
			}
			delta := time.Until(result)
			if delta < tt.minDelta || delta > tt.maxDelta {
				t.Errorf("parseWhen(%q) = %v from now, want between %v and %v", tt.input, delta, tt.minDelta, tt.maxDelta)
			}
		})
	}
}

func TestParseWhenInvalidInput(t *testing.T) {
	for _, input := range []string{"", "now", "yesterday", "in", "in 5", "in minutes"} {
		t.Run(input, func(t *testing.T) {
			if _, err := parseWhen(input); err == nil {
				t.Errorf("parseWhen(%q) should have failed", input)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30 seconds"},
		{1 * time.Minute, "1 minute"},
		{5 * time.Minute, "5 minutes"},
		{1 * time.Hour, "1 hour"},
		{2 * time.Hour, "2.0 hours"},
		{24 * time.Hour, "1 day"},
		{48 * time.Hour, "2.0 days"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.input); got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSetToolExecuteCreatesReminder(t *testing.T) {
	store := storage.NewMemoryStore()
	tool := NewSetTool(store.Tasks)

	params := json.RawMessage(`{"user_id": "u1", "message": "take out the trash", "when": "in 5 minutes"}`)
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result, "Reminder set") {
		t.Fatalf("unexpected result: %q", result)
	}

	tasks, err := store.Tasks.ListByOwner(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
}

func TestSetToolExecuteMissingMessage(t *testing.T) {
	tool := NewSetTool(storage.NewMemoryStore().Tasks)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"when": "in 5 minutes"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "message is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestSetToolExecuteMissingWhen(t *testing.T) {
	tool := NewSetTool(storage.NewMemoryStore().Tasks)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"message": "test"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "when is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestSetToolExecuteRejectsPastTime(t *testing.T) {
	tool := NewSetTool(storage.NewMemoryStore().Tasks)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"message": "test", "when": "2020-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "cannot set a reminder in the past" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestListToolExecuteFiltersByOwnerAndStatus(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	setTool := NewSetTool(store.Tasks)

	if _, err := setTool.Execute(ctx, json.RawMessage(`{"user_id": "u1", "message": "a", "when": "in 5 minutes"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := setTool.Execute(ctx, json.RawMessage(`{"user_id": "u2", "message": "b", "when": "in 5 minutes"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	listTool := NewListTool(store.Tasks, store.Users)
	result, err := listTool.Execute(ctx, json.RawMessage(`{"user_id": "u1"}`))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(result, "Found 1 reminder") {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestCancelToolExecuteCancelsOwnReminder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	setTool := NewSetTool(store.Tasks)

	if _, err := setTool.Execute(ctx, json.RawMessage(`{"user_id": "u1", "message": "a", "when": "in 5 minutes"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	tasks, err := store.Tasks.ListByOwner(ctx, "u1")
	if err != nil || len(tasks) != 1 {
		t.Fatalf("list by owner: %v, %d", err, len(tasks))
	}

	cancelTool := NewCancelTool(store.Tasks)
	params, _ := json.Marshal(map[string]string{"user_id": "u1", "reminder_id": tasks[0].ID})
	result, err := cancelTool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(result, "cancelled") {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestCancelToolExecuteRefusesOtherUsersReminder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	setTool := NewSetTool(store.Tasks)

	if _, err := setTool.Execute(ctx, json.RawMessage(`{"user_id": "u1", "message": "a", "when": "in 5 minutes"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	tasks, _ := store.Tasks.ListByOwner(ctx, "u1")

	cancelTool := NewCancelTool(store.Tasks)
	params, _ := json.Marshal(map[string]string{"user_id": "u2", "reminder_id": tasks[0].ID})
	result, err := cancelTool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if result != "reminder not found" {
		t.Fatalf("expected not found for another user's reminder, got %q", result)
	}
}

func TestCancelToolExecuteEmptyReminderID(t *testing.T) {
	tool := NewCancelTool(storage.NewMemoryStore().Tasks)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"reminder_id": ""}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "reminder_id is required" {
		t.Fatalf("unexpected result: %q", result)
	}
}
