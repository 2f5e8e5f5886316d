package models

import "time"

// AgentEventType identifies one of the tagged events the event-stream
// modality emits: text_delta, tool_start, tool_end.
type AgentEventType string

const (
	AgentEventTextDelta AgentEventType = "text_delta"
	AgentEventToolStart AgentEventType = "tool_start"
	AgentEventToolEnd   AgentEventType = "tool_end"
)

// AgentEvent is one tagged event of the event-stream conversation modality,
// used by PWA clients to render live tool activity.
type AgentEvent struct {
	Type      AgentEventType `json:"type"`
	Time      time.Time      `json:"time"`
	Text      string         `json:"text,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput string         `json:"tool_input,omitempty"`
	ToolError bool           `json:"tool_error,omitempty"`
	ToolText  string         `json:"tool_text,omitempty"`
}
