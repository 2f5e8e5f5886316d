package agent

import (
	"context"
	"encoding/json"

	"github.com/noble1911/butler/pkg/models"
)

// StopReason describes why the provider stopped generating.
type StopReason string

const (
	StopEndTurn    StopReason = "end_turn"
	StopToolUse    StopReason = "tool_use"
	StopServerTool StopReason = "server_tool_use"
	StopMaxTokens  StopReason = "max_tokens"
)

// ContentBlock is one unit of an assistant response: text, a custom
// (registry) tool-use request, or a server-side (provider-hosted) tool use.
type ContentBlock struct {
	Type       string          `json:"type"` // "text", "tool_use", "server_tool_use"
	Text       string          `json:"text,omitempty"`
	ToolUseID  string          `json:"id,omitempty"`
	ToolName   string          `json:"name,omitempty"`
	ToolInput  json.RawMessage `json:"input,omitempty"`
}

// CompletionRequest is the provider-agnostic shape submitted each round of
// the tool-use loop.
type CompletionRequest struct {
	System   string
	Messages []models.Message
	Tools    []ToolSchema
}

// ToolSchema is the wire shape of one tool definition sent to the provider.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// CompletionResponse is a provider's full (non-streaming) reply to one
// round.
type CompletionResponse struct {
	Content    []ContentBlock
	StopReason StopReason
}

// StreamChunk is one increment of a streaming reply: either a text delta or
// the terminal response once the stream closes.
type StreamChunk struct {
	TextDelta string
	Done      bool
	Final     *CompletionResponse
	Err       error
}

// Provider is the LLM client boundary. Concrete implementations live under
// internal/agent/providers (Anthropic primary, OpenAI-compatible fallback).
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}
