// Package display implements display_in_chat (SUPPLEMENTED FEATURES item
// 4): a tool with no side effect on the assistant's own state, whose sole
// purpose is to hand a structured card to whichever channel client
// renders it. The PWA/channel rendering itself is out of scope; only the
// tool contract (accept a card, acknowledge it) lives in this module.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tool acknowledges a display card without storing or forwarding it
// anywhere; the channel surface that would actually render the card is
// out of scope for this module.
type Tool struct{}

// NewTool builds a display Tool.
func NewTool() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "display_in_chat" }

func (t *Tool) Description() string {
	return "Pushes a small UI card (title, body, optional image) to the user's chat client."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":     map[string]any{"type": "string", "description": "Card title."},
			"body":      map[string]any{"type": "string", "description": "Card body text."},
			"image_url": map[string]any{"type": "string", "description": "Optional image URL to show alongside the card."},
		},
		"required": []string{"title", "body"},
	}
}

type displayInput struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"image_url"`
}

func (t *Tool) Execute(_ context.Context, params json.RawMessage) (string, error) {
	var input displayInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Body) == "" {
		return "title and body are required", nil
	}
	return fmt.Sprintf("displayed card %q", input.Title), nil
}
