package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ListEventsTool exposes Client.ListEvents to the conversation loop.
type ListEventsTool struct {
	client *Client
}

// NewListEventsTool wraps a Client as an agent.Tool.
func NewListEventsTool(client *Client) *ListEventsTool {
	return &ListEventsTool{client: client}
}

func (t *ListEventsTool) Name() string { return "calendar_list_events" }

func (t *ListEventsTool) Description() string {
	return "Lists the user's calendar events within a time window (defaults to the next 24 hours)."
}

func (t *ListEventsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":    map[string]any{"type": "string", "description": "Authenticated user id; overwritten by the dispatcher."},
			"from":       map[string]any{"type": "string", "description": "RFC3339 start of window; defaults to now."},
			"to":         map[string]any{"type": "string", "description": "RFC3339 end of window; defaults to 24h from now."},
		},
		"required": []string{},
	}
}

func (t *ListEventsTool) UserIDField() string { return "user_id" }

type listEventsInput struct {
	UserID string `json:"user_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

const defaultWindow = 24 * time.Hour

func (t *ListEventsTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	if t.client == nil {
		return "calendar is not configured", nil
	}

	var input listEventsInput
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return "", fmt.Errorf("parse input: %w", err)
		}
	}
	if strings.TrimSpace(input.UserID) == "" {
		return "user_id is required", nil
	}

	from := time.Now()
	if input.From != "" {
		parsed, err := time.Parse(time.RFC3339, input.From)
		if err != nil {
			return fmt.Sprintf("invalid from: %v", err), nil
		}
		from = parsed
	}
	to := from.Add(defaultWindow)
	if input.To != "" {
		parsed, err := time.Parse(time.RFC3339, input.To)
		if err != nil {
			return fmt.Sprintf("invalid to: %v", err), nil
		}
		to = parsed
	}

	events, err := t.client.ListEvents(ctx, input.UserID, from, to)
	if err != nil {
		return "", fmt.Errorf("list calendar events: %w", err)
	}
	if len(events) == 0 {
		return "No events found in that window.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d event(s):\n\n", len(events))
	for i, e := range events {
		fmt.Fprintf(&sb, "%d. %s (%s - %s)", i+1, e.Summary, e.Start, e.End)
		if e.Location != "" {
			fmt.Fprintf(&sb, " @ %s", e.Location)
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
