package vectormemory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noble1911/butler/pkg/models"
)

// Indexer defines the subset of memory manager behavior used by the write tool.
type Indexer interface {
	Index(ctx context.Context, entries []*models.MemoryEntry) error
}

// WriteTool writes entries into vector memory, scoped to the calling user or
// to the shared global scope.
type WriteTool struct {
	manager Indexer
}

// NewWriteTool creates a new vector memory write tool.
func NewWriteTool(manager Indexer) *WriteTool {
	return &WriteTool{manager: manager}
}

func (t *WriteTool) Name() string { return "vector_memory_write" }

func (t *WriteTool) Description() string {
	return "Stores a memory entry in vector memory, scoped to the user or shared globally."
}

func (t *WriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "description": "Injected automatically; do not set."},
			"content": map[string]any{"type": "string", "description": "Memory content to store"},
			"scope": map[string]any{
				"type":        "string",
				"enum":        []string{"user", "global"},
				"description": "Scope to store the memory in (default: user)",
			},
			"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Optional tags for categorization"},
			"source":   map[string]any{"type": "string", "description": "Source label for the memory"},
			"metadata": map[string]any{"type": "object", "description": "Additional metadata to store with the memory"},
		},
		"required": []string{"content"},
	}
}

func (t *WriteTool) UserIDField() string { return "user_id" }

type writeInput struct {
	UserID   string         `json:"user_id"`
	Content  string         `json:"content"`
	Scope    string         `json:"scope"`
	Tags     []string       `json:"tags"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// Execute implements agent.Tool.
func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	if t.manager == nil {
		return "vector memory is unavailable", nil
	}

	var input writeInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return "content is required", nil
	}

	scope := strings.ToLower(strings.TrimSpace(input.Scope))
	if scope == "" {
		scope = string(models.ScopeUser)
	}

	var scopeID string
	switch models.MemoryScope(scope) {
	case models.ScopeUser:
		scopeID = input.UserID
		if scopeID == "" {
			return "user_id is required for user scope", nil
		}
	case models.ScopeGlobal:
		scopeID = ""
	default:
		return fmt.Sprintf("unsupported scope %q", scope), nil
	}

	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = "manual"
	}

	metadata := models.MemoryMetadata{
		Source: source,
		Role:   string(models.RoleAssistant),
		Tags:   normalizeTags(input.Tags),
		Extra:  map[string]any{},
	}
	for k, v := range input.Metadata {
		metadata.Extra[k] = v
	}

	entry := &models.MemoryEntry{
		ID:        uuid.New().String(),
		UserID:    scopeID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := t.manager.Index(ctx, []*models.MemoryEntry{entry}); err != nil {
		return "", fmt.Errorf("write memory: %w", err)
	}

	payload, err := json.MarshalIndent(struct {
		ID        string    `json:"id"`
		Scope     string    `json:"scope"`
		CreatedAt time.Time `json:"created_at"`
	}{
		ID:        entry.ID,
		Scope:     scope,
		CreatedAt: entry.CreatedAt,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode response: %w", err)
	}

	return string(payload), nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
