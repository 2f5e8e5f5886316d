package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/noble1911/butler/internal/agent"
	"github.com/noble1911/butler/internal/agent/toolconv"
	"github.com/noble1911/butler/pkg/models"
)

// OpenAIConfig configures the OpenAI-compatible failover provider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for OpenAI-compatible gateways
}

// OpenAI wraps go-openai behind the agent.Provider interface. It is the
// failover target in the provider chain, not the primary client.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds an OpenAI-compatible provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY must be configured")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

// Name identifies this provider for metrics labels (internal/observability).
func (o *OpenAI) Name() string { return "openai" }

// Model returns the configured model id, for metrics labels.
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) toRequest(req agent.CompletionRequest, stream bool) openai.ChatCompletionRequest {
	messages := toOpenAIMessages(req.System, req.Messages)
	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		wrapped := toolconv.ToOpenAI(t)
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        wrapped.Function.Name,
				Description: wrapped.Function.Description,
				Parameters:  wrapped.Function.Parameters,
			},
		})
	}
	return openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Tools:    tools,
		Stream:   stream,
	}
}

// Complete sends one non-streaming round.
func (o *OpenAI) Complete(ctx context.Context, req agent.CompletionRequest) (*agent.CompletionResponse, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.toRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &agent.CompletionResponse{StopReason: agent.StopEndTurn}, nil
	}
	return fromOpenAIChoice(resp.Choices[0]), nil
}

// Stream sends one streaming round.
func (o *OpenAI) Stream(ctx context.Context, req agent.CompletionRequest) (<-chan agent.StreamChunk, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.toRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	out := make(chan agent.StreamChunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		var text string
		var toolCalls []openai.ToolCall
		var finishReason openai.FinishReason
		for {
			chunk, err := stream.Recv()
			if err != nil {
				break
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				text += choice.Delta.Content
				out <- agent.StreamChunk{TextDelta: choice.Delta.Content}
			}
			toolCalls = mergeToolCallDeltas(toolCalls, choice.Delta.ToolCalls)
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}

		out <- agent.StreamChunk{Done: true, Final: fromOpenAIParts(text, toolCalls, finishReason)}
	}()
	return out, nil
}

func mergeToolCallDeltas(acc []openai.ToolCall, deltas []openai.ToolCall) []openai.ToolCall {
	for _, d := range deltas {
		idx := d.Index
		if idx == nil {
			continue
		}
		for len(acc) <= *idx {
			acc = append(acc, openai.ToolCall{})
		}
		acc[*idx].ID += d.ID
		acc[*idx].Type = d.Type
		acc[*idx].Function.Name += d.Function.Name
		acc[*idx].Function.Arguments += d.Function.Arguments
	}
	return acc
}

func toOpenAIMessages(system string, msgs []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msg := openai.ChatCompletionMessage{Role: role, Content: m.Content}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Input),
				},
			})
		}
		out = append(out, msg)
		for _, result := range m.ToolResults {
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result.Content,
				ToolCallID: result.ToolCallID,
			})
		}
	}
	return out
}

func fromOpenAIChoice(choice openai.ChatCompletionChoice) *agent.CompletionResponse {
	return fromOpenAIParts(choice.Message.Content, choice.Message.ToolCalls, choice.FinishReason)
}

func fromOpenAIParts(text string, toolCalls []openai.ToolCall, finish openai.FinishReason) *agent.CompletionResponse {
	resp := &agent.CompletionResponse{}
	if text != "" {
		resp.Content = append(resp.Content, agent.ContentBlock{Type: "text", Text: text})
	}
	for _, call := range toolCalls {
		if call.Function.Name == "" {
			continue
		}
		resp.Content = append(resp.Content, agent.ContentBlock{
			Type:      "tool_use",
			ToolUseID: call.ID,
			ToolName:  call.Function.Name,
			ToolInput: json.RawMessage(call.Function.Arguments),
		})
	}
	switch finish {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		resp.StopReason = agent.StopToolUse
	case openai.FinishReasonLength:
		resp.StopReason = agent.StopMaxTokens
	default:
		resp.StopReason = agent.StopEndTurn
	}
	return resp
}
