package vectormemory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noble1911/butler/internal/memory"
	"github.com/noble1911/butler/pkg/models"
)

// Searcher defines the subset of memory manager behavior used by the search tool.
type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
}

// SearchTool searches vector memory for relevant context.
type SearchTool struct {
	manager         Searcher
	config          *memory.Config
	maxContentChars int
}

// NewSearchTool creates a new vector memory search tool.
func NewSearchTool(manager Searcher, cfg *memory.Config) *SearchTool {
	return &SearchTool{
		manager:         manager,
		config:          cfg,
		maxContentChars: 500,
	}
}

func (t *SearchTool) Name() string { return "vector_memory_search" }

func (t *SearchTool) Description() string {
	return "Searches vector memory for relevant context, scoped to the user or shared globally."
}

func (t *SearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string", "description": "Injected automatically; do not set."},
			"query":   map[string]any{"type": "string", "description": "Search query to find relevant memories"},
			"scope": map[string]any{
				"type":        "string",
				"enum":        []string{"user", "global"},
				"description": "Scope to search within (default: user)",
			},
			"limit":     map[string]any{"type": "integer", "description": "Maximum number of results"},
			"threshold": map[string]any{"type": "number", "description": "Minimum similarity score from 0 to 1"},
			"tags":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Filter results to entries with matching tags"},
		},
		"required": []string{"query"},
	}
}

func (t *SearchTool) UserIDField() string { return "user_id" }

type searchInput struct {
	UserID    string   `json:"user_id"`
	Query     string   `json:"query"`
	Scope     string   `json:"scope"`
	Limit     int      `json:"limit"`
	Threshold float32  `json:"threshold"`
	Tags      []string `json:"tags"`
}

type searchResult struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Score     float32   `json:"score"`
	Source    string    `json:"source,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Execute implements agent.Tool.
func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	if t.manager == nil {
		return "vector memory is unavailable", nil
	}

	var input searchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse input: %w", err)
	}

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return "query is required", nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimitFromConfig(t.config)
	}
	threshold := input.Threshold
	if threshold <= 0 {
		threshold = defaultThresholdFromConfig(t.config)
	}

	scope, scopeID, err := resolveScope(input.Scope, input.UserID, defaultScopeFromConfig(t.config))
	if err != nil {
		return err.Error(), nil
	}

	resp, err := t.manager.Search(ctx, &models.SearchRequest{
		Query:     query,
		Scope:     scope,
		ScopeID:   scopeID,
		Limit:     limit,
		Threshold: threshold,
	})
	if err != nil {
		return fmt.Sprintf("search failed: %v", err), nil
	}

	results := buildSearchResults(resp, input.Tags, t.maxContentChars)

	payload, err := json.MarshalIndent(struct {
		Query   string         `json:"query"`
		Scope   string         `json:"scope"`
		Results []searchResult `json:"results"`
	}{
		Query:   query,
		Scope:   string(scope),
		Results: results,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}

	return string(payload), nil
}

func buildSearchResults(resp *models.SearchResponse, tags []string, maxLen int) []searchResult {
	if resp == nil || len(resp.Results) == 0 {
		return nil
	}
	filter := tagFilter(tags)
	results := make([]searchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || r.Entry == nil {
			continue
		}
		if !filter(r.Entry.Metadata.Tags) {
			continue
		}
		content := strings.TrimSpace(r.Entry.Content)
		if maxLen > 0 && len(content) > maxLen {
			content = content[:maxLen] + "...[truncated]"
		}
		results = append(results, searchResult{
			ID:        r.Entry.ID,
			Content:   content,
			Score:     r.Score,
			Source:    r.Entry.Metadata.Source,
			Tags:      r.Entry.Metadata.Tags,
			CreatedAt: r.Entry.CreatedAt,
		})
	}
	return results
}

func resolveScope(scopeRaw, userID, defaultScope string) (models.MemoryScope, string, error) {
	scopeRaw = strings.ToLower(strings.TrimSpace(scopeRaw))
	if scopeRaw == "" || scopeRaw == "default" {
		if strings.TrimSpace(defaultScope) == "" {
			defaultScope = string(models.ScopeUser)
		}
		scopeRaw = strings.ToLower(strings.TrimSpace(defaultScope))
	}
	switch scopeRaw {
	case string(models.ScopeUser):
		if userID == "" {
			return "", "", fmt.Errorf("user_id is required for user scope")
		}
		return models.ScopeUser, userID, nil
	case string(models.ScopeGlobal):
		return models.ScopeGlobal, "", nil
	default:
		return "", "", fmt.Errorf("unsupported scope %q", scopeRaw)
	}
}

func defaultLimitFromConfig(cfg *memory.Config) int {
	if cfg != nil && cfg.Search.DefaultLimit > 0 {
		return cfg.Search.DefaultLimit
	}
	return 10
}

func defaultThresholdFromConfig(cfg *memory.Config) float32 {
	if cfg != nil && cfg.Search.DefaultThreshold > 0 {
		return cfg.Search.DefaultThreshold
	}
	return 0.7
}

func defaultScopeFromConfig(cfg *memory.Config) string {
	if cfg != nil && strings.TrimSpace(cfg.Search.DefaultScope) != "" {
		return strings.ToLower(strings.TrimSpace(cfg.Search.DefaultScope))
	}
	return string(models.ScopeUser)
}

func tagFilter(tags []string) func([]string) bool {
	if len(tags) == 0 {
		return func(_ []string) bool { return true }
	}
	allowed := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		allowed[tag] = struct{}{}
	}
	return func(entryTags []string) bool {
		if len(allowed) == 0 {
			return true
		}
		for _, tag := range entryTags {
			if _, ok := allowed[strings.ToLower(strings.TrimSpace(tag))]; ok {
				return true
			}
		}
		return false
	}
}
