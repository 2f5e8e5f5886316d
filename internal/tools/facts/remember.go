package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noble1911/butler/internal/memory"
	"github.com/noble1911/butler/internal/models"
)

// defaultConfidence is used when the model omits one; spec §4.3 ranks
// recall by confidence so a sensible middle value still participates.
const defaultConfidence = 0.6

// RememberTool implements the "remember" half of spec §4.3's fact store:
// the model calls it with a short declarative fact about the user, which
// is upserted alongside the user row and optionally embedded.
type RememberTool struct {
	store *memory.FactStore
}

// NewRememberTool wraps a FactStore as an LLM-callable tool.
func NewRememberTool(store *memory.FactStore) *RememberTool {
	return &RememberTool{store: store}
}

func (t *RememberTool) Name() string { return "facts_remember" }

func (t *RememberTool) Description() string {
	return "Records a durable fact learned about the user (preference, schedule, relationship, work, or health) for recall in future conversations."
}

func (t *RememberTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "description": "Authenticated user id; overwritten by the dispatcher."},
			"fact":    map[string]any{"type": "string", "description": "A short declarative statement, e.g. \"prefers tea over coffee\"."},
			"category": map[string]any{
				"type": "string",
				"enum": []string{
					string(models.FactPreference), string(models.FactSchedule), string(models.FactRelation),
					string(models.FactWork), string(models.FactHealth), string(models.FactOther),
				},
			},
			"confidence": map[string]any{"type": "number", "description": "0-1 confidence this fact is accurate; defaults to 0.6."},
		},
		"required": []string{"fact", "category"},
	}
}

func (t *RememberTool) UserIDField() string { return "user_id" }

type rememberInput struct {
	UserID     string             `json:"user_id"`
	Fact       string             `json:"fact"`
	Category   models.FactCategory `json:"category"`
	Confidence float64            `json:"confidence"`
}

func (t *RememberTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	if t.store == nil {
		return "memory is not configured", nil
	}

	var input rememberInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}

	fact := strings.TrimSpace(input.Fact)
	if fact == "" {
		return "fact is required", nil
	}
	if strings.TrimSpace(input.UserID) == "" {
		return "user_id is required", nil
	}
	category := input.Category
	if category == "" {
		category = models.FactOther
	}
	confidence := input.Confidence
	if confidence <= 0 {
		confidence = defaultConfidence
	}

	row, err := t.store.Remember(ctx, input.UserID, fact, category, confidence, models.FactSourceConversation)
	if err != nil {
		return "", fmt.Errorf("remember fact: %w", err)
	}

	return fmt.Sprintf("remembered [%s]: %s", row.Category, row.Fact), nil
}
