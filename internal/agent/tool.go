package agent

import (
	"context"
	"encoding/json"
)

// Tool is an LLM-callable capability. Implementations live under
// internal/tools/*; each one wraps a single external system (home
// automation, media, memory, calendar, ...).
type Tool interface {
	Name() string
	Description() string
	// Schema returns the tool's parameters as a JSON schema object, in the
	// shape the configured provider expects (Anthropic input_schema /
	// OpenAI parameters — see toolconv for the conversion between them).
	Schema() map[string]any
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// UserScopedTool is implemented by tools whose input schema carries a
// user_id field that must never be trusted from the model. The dispatcher
// overwrites it with the authenticated caller's id before Execute runs.
type UserScopedTool interface {
	Tool
	// UserIDField returns the JSON field name the dispatcher should inject
	// the authenticated user id into. Empty string disables injection.
	UserIDField() string
}
