package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noble1911/butler/internal/memory"
	"github.com/noble1911/butler/internal/models"
)

// defaultRecallLimit matches spec §4.3's default recall window.
const defaultRecallLimit = 20

// RecallTool implements the "recall" half of spec §4.3's fact store: an
// optional free-text query ranks results by embedding similarity; absent
// a query (or an unavailable embedder) results fall back to
// confidence/recency ordering, optionally narrowed by category.
type RecallTool struct {
	store *memory.FactStore
}

// NewRecallTool wraps a FactStore as an LLM-callable tool.
func NewRecallTool(store *memory.FactStore) *RecallTool {
	return &RecallTool{store: store}
}

func (t *RecallTool) Name() string { return "facts_recall" }

func (t *RecallTool) Description() string {
	return "Recalls previously remembered facts about the user, optionally filtered by a query or category."
}

func (t *RecallTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "description": "Authenticated user id; overwritten by the dispatcher."},
			"query":   map[string]any{"type": "string", "description": "Optional free-text query to rank facts by relevance."},
			"category": map[string]any{
				"type": "string",
				"enum": []string{
					string(models.FactPreference), string(models.FactSchedule), string(models.FactRelation),
					string(models.FactWork), string(models.FactHealth), string(models.FactOther),
				},
			},
			"limit": map[string]any{"type": "integer", "description": "Maximum facts to return; defaults to 20."},
		},
		"required": []string{},
	}
}

func (t *RecallTool) UserIDField() string { return "user_id" }

type recallInput struct {
	UserID   string              `json:"user_id"`
	Query    string              `json:"query"`
	Category models.FactCategory `json:"category"`
	Limit    int                 `json:"limit"`
}

type recalledFactView struct {
	Fact       string  `json:"fact"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Relevance  float64 `json:"relevance,omitempty"`
}

func (t *RecallTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	if t.store == nil {
		return "memory is not configured", nil
	}

	var input recallInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}
	if strings.TrimSpace(input.UserID) == "" {
		return "user_id is required", nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	results, err := t.store.Recall(ctx, input.UserID, memory.RecallOptions{
		Query:    input.Query,
		Category: input.Category,
		Limit:    limit,
	})
	if err != nil {
		return "", fmt.Errorf("recall facts: %w", err)
	}

	views := make([]recalledFactView, len(results))
	for i, r := range results {
		views[i] = recalledFactView{
			Fact:       r.Fact.Fact,
			Category:   string(r.Fact.Category),
			Confidence: r.Fact.Confidence,
			Relevance:  r.Relevance,
		}
	}

	payload, err := json.MarshalIndent(struct {
		Facts []recalledFactView `json:"facts"`
	}{Facts: views}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	return string(payload), nil
}
