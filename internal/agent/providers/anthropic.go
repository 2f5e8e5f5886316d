// Package providers holds concrete Provider implementations: Anthropic is
// the primary LLM client, OpenAI-compatible is the failover target.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/noble1911/butler/internal/agent"
	"github.com/noble1911/butler/pkg/models"
)

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Anthropic wraps anthropic-sdk-go behind the agent.Provider interface.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic builds an Anthropic provider. Returns an error if no API key
// is configured, per spec §7's "configuration missing" disposition.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY must be configured")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Name identifies this provider for metrics labels (internal/observability).
func (a *Anthropic) Name() string { return "anthropic" }

// Model returns the configured model id, for metrics labels.
func (a *Anthropic) Model() string { return a.model }

func (a *Anthropic) toParams(req agent.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: toAnthropicSchema(t.InputSchema),
			},
		})
	}
	return params
}

// Complete sends one non-streaming round to the Anthropic API.
func (a *Anthropic) Complete(ctx context.Context, req agent.CompletionRequest) (*agent.CompletionResponse, error) {
	msg, err := a.client.Messages.New(ctx, a.toParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return fromAnthropicMessage(msg), nil
}

// Stream sends one streaming round, emitting text deltas then the terminal
// reconstructed response.
func (a *Anthropic) Stream(ctx context.Context, req agent.CompletionRequest) (<-chan agent.StreamChunk, error) {
	out := make(chan agent.StreamChunk, 16)
	stream := a.client.Messages.NewStreaming(ctx, a.toParams(req))

	go func() {
		defer close(out)
		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				out <- agent.StreamChunk{Err: err}
				return
			}
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text := delta.Delta.Text; text != "" {
					out <- agent.StreamChunk{TextDelta: text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- agent.StreamChunk{Err: err}
			return
		}
		out <- agent.StreamChunk{Done: true, Final: fromAnthropicMessage(&acc)}
	}()

	return out, nil
}

func toAnthropicMessages(msgs []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, call := range m.ToolCalls {
			blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Input, call.Name))
		}
		for _, result := range m.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(result.ToolCallID, result.Content, result.IsError))
		}
		if len(blocks) == 0 {
			continue
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == models.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func toAnthropicSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	props, _ := schema["properties"].(map[string]any)
	var required []string
	if r, ok := schema["required"].([]string); ok {
		required = r
	}
	return anthropic.ToolInputSchemaParam{Properties: props, Required: required}
}

func fromAnthropicMessage(msg *anthropic.Message) *agent.CompletionResponse {
	resp := &agent.CompletionResponse{}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content = append(resp.Content, agent.ContentBlock{Type: "text", Text: variant.Text})
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(variant.Input)
			resp.Content = append(resp.Content, agent.ContentBlock{
				Type: "tool_use", ToolUseID: variant.ID, ToolName: variant.Name, ToolInput: input,
			})
		}
	}
	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		resp.StopReason = agent.StopToolUse
	case anthropic.StopReasonMaxTokens:
		resp.StopReason = agent.StopMaxTokens
	case "pause_turn":
		resp.StopReason = agent.StopServerTool
	default:
		resp.StopReason = agent.StopEndTurn
	}
	return resp
}
