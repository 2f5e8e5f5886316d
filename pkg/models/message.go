// Package models provides domain types shared across the assistant core.
package models

import (
	"encoding/json"
	"time"
)

// ChannelType identifies a user-facing modality.
type ChannelType string

const (
	ChannelVoice    ChannelType = "voice"
	ChannelPWA      ChannelType = "pwa"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelTelegram ChannelType = "telegram"
)

// ChannelLabel returns the "[via <channel>]" label for a channel. Channels
// outside the closed vocabulary still get a label, keyed by their own name.
func ChannelLabel(c ChannelType) string {
	return string(c)
}

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Attachment represents a file or media attachment on a message. The
// orchestrator only ever attaches one image, and only to the first user
// message of a new turn.
type Attachment struct {
	Type     string `json:"type"` // image, audio, video, document
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"` // base64, image attachments only
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution, keyed back to the
// tool-use id it answers.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is the unified message shape passed through the conversation
// orchestrator. It is a runtime type, not the persisted row shape (see
// internal/models.ConversationMessage for that).
type Message struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Channel     ChannelType    `json:"channel"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
