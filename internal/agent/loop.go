package agent

import (
	"context"
	"fmt"
	"strings"

	ctxwindow "github.com/noble1911/butler/internal/context"
	"github.com/noble1911/butler/pkg/models"
)

// DefaultMaxToolRounds bounds the tool-use loop so a misbehaving tool or
// provider can never spin a turn forever.
const DefaultMaxToolRounds = 5

// reservedResponseTokens is held back from the context budget for the
// model's own reply, so a full-window history doesn't leave no room to
// answer.
const reservedResponseTokens = 4096

// ApologySentence is returned when the loop exhausts MaxToolRounds without
// reaching a final answer.
const ApologySentence = "I'm sorry, I wasn't able to finish that — something kept requiring another step. Please try again or rephrase."

// allowedAttachmentMediaTypes is the closed allowlist for the one optional
// image attachment on a new turn.
var allowedAttachmentMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// maxAttachmentBase64Bytes caps attachment size at roughly 5 MB of base64.
const maxAttachmentBase64Bytes = 5*1024*1024*4/3 + 1024

// Loop implements the Conversation Orchestrator (spec §4.1): repeated
// rounds of submit-to-provider, dispatch-tool-calls, append-results, until
// no tool calls remain or MaxToolRounds is hit.
type Loop struct {
	Provider      Provider
	Dispatcher    *Dispatcher
	MaxToolRounds int

	// MaxContextTokens bounds the conversation history sent to the
	// provider; history beyond this (minus reservedResponseTokens for the
	// reply) is trimmed oldest-first once per turn, before the first
	// provider call. Messages appended by later rounds are not trimmed.
	// Zero uses ctxwindow.DefaultContextWindow.
	MaxContextTokens int
}

// NewLoop builds a Loop with the default round bound and context window.
func NewLoop(provider Provider, dispatcher *Dispatcher) *Loop {
	return &Loop{
		Provider:         provider,
		Dispatcher:       dispatcher,
		MaxToolRounds:    DefaultMaxToolRounds,
		MaxContextTokens: ctxwindow.DefaultContextWindow,
	}
}

// minContextBudget floors the trimmed budget so reservedResponseTokens
// can never push it to zero or negative, without silently overriding a
// deliberately small MaxContextTokens (e.g. in tests) back up to
// ctxwindow.DefaultContextWindow-scale.
const minContextBudget = 16

func (l *Loop) contextBudget() int {
	limit := l.MaxContextTokens
	if limit <= 0 {
		limit = ctxwindow.DefaultContextWindow
	}
	budget := limit - reservedResponseTokens
	if budget < minContextBudget {
		budget = minContextBudget
	}
	return budget
}

// fitContext trims messages to the loop's token budget, oldest-first,
// always keeping the first message (the turn's opening user message) and
// the most recent two so a trimmed conversation still reads coherently.
func (l *Loop) fitContext(messages []models.Message) []models.Message {
	converted := make([]ctxwindow.Message, len(messages))
	for i, m := range messages {
		converted[i] = ctxwindow.Message{
			Role:    string(m.Role),
			Content: m.Content,
			Tokens:  ctxwindow.EstimateTokens(m.Content),
		}
	}

	truncator := ctxwindow.NewTruncator(ctxwindow.TruncateOldest, l.contextBudget())
	trimmed, result := truncator.Truncate(converted)
	if result == nil || result.RemovedCount == 0 {
		return messages
	}

	kept := make([]models.Message, 0, len(trimmed))
	idx := 0
	for _, m := range messages {
		if idx >= len(trimmed) {
			break
		}
		if m.Content == trimmed[idx].Content && string(m.Role) == trimmed[idx].Role {
			kept = append(kept, m)
			idx++
		}
	}
	if len(kept) == 0 {
		return messages
	}
	return kept
}

// Turn is the input to one invocation of the loop: a system prompt, the
// trimmed prior history, the new user message, the tools this user may
// invoke, and the identity needed for tool dispatch and audit.
type Turn struct {
	System   string
	History  []models.Message
	NewUser  models.Message
	Tools    map[string]Tool
	UserID   string
	Channel  string
}

// assembleMessages trims history so the first retained message has role
// user, then appends the new user message — concatenating it onto a
// trailing user message instead of starting a new turn when history
// already ends in one.
func assembleMessages(history []models.Message, newUser models.Message) []models.Message {
	trimmed := history
	for len(trimmed) > 0 && trimmed[0].Role != models.RoleUser {
		trimmed = trimmed[1:]
	}

	if len(trimmed) > 0 && trimmed[len(trimmed)-1].Role == models.RoleUser {
		merged := make([]models.Message, len(trimmed))
		copy(merged, trimmed)
		last := merged[len(merged)-1]
		last.Content = last.Content + "\n\n" + newUser.Content
		if len(newUser.Attachments) > 0 {
			last.Attachments = append(last.Attachments, newUser.Attachments...)
		}
		merged[len(merged)-1] = last
		return merged
	}

	return append(append([]models.Message{}, trimmed...), newUser)
}

// ValidateAttachment checks an attachment against the closed media-type
// allowlist and the base64 size cap. Validation happens before any
// provider call.
func ValidateAttachment(a models.Attachment) error {
	if !allowedAttachmentMediaTypes[a.MimeType] {
		return fmt.Errorf("unsupported attachment media type: %s", a.MimeType)
	}
	if len(a.Data) > maxAttachmentBase64Bytes {
		return fmt.Errorf("attachment exceeds maximum size")
	}
	return nil
}

func toolSchemas(tools map[string]Tool) []ToolSchema {
	out := make([]ToolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolSchema{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()})
	}
	return out
}

// RunBatch executes the tool-use loop and returns the final concatenated
// assistant text.
func (l *Loop) RunBatch(ctx context.Context, turn Turn) (string, error) {
	if len(turn.NewUser.Attachments) > 0 {
		if err := ValidateAttachment(turn.NewUser.Attachments[0]); err != nil {
			return "", err
		}
	}

	messages := l.fitContext(assembleMessages(turn.History, turn.NewUser))
	maxRounds := l.maxRounds()

	for round := 0; round < maxRounds; round++ {
		resp, err := l.Provider.Complete(ctx, CompletionRequest{System: turn.System, Messages: messages, Tools: toolSchemas(turn.Tools)})
		if err != nil {
			return "", err
		}

		text, toolUses, serverToolPause := partition(resp)

		if len(toolUses) == 0 && serverToolPause {
			messages = append(messages, assistantMessageFrom(resp, turn.UserID, turn.Channel))
			continue
		}
		if len(toolUses) == 0 {
			return text, nil
		}

		assistantMsg := assistantMessageFrom(resp, turn.UserID, turn.Channel)
		results := l.dispatchAll(ctx, toolUses, turn.Tools, turn.UserID, turn.Channel)
		messages = append(messages, assistantMsg, resultsMessage(results, turn.UserID, turn.Channel))
	}

	return ApologySentence, nil
}

// RunStream executes the tool-use loop, yielding text deltas as they arrive
// (for incremental TTS). The returned channel is closed when the turn ends.
func (l *Loop) RunStream(ctx context.Context, turn Turn) (<-chan string, error) {
	out := make(chan string, 16)

	if len(turn.NewUser.Attachments) > 0 {
		if err := ValidateAttachment(turn.NewUser.Attachments[0]); err != nil {
			close(out)
			return out, err
		}
	}

	go func() {
		defer close(out)

		messages := l.fitContext(assembleMessages(turn.History, turn.NewUser))
		maxRounds := l.maxRounds()

		for round := 0; round < maxRounds; round++ {
			stream, err := l.Provider.Stream(ctx, CompletionRequest{System: turn.System, Messages: messages, Tools: toolSchemas(turn.Tools)})
			if err != nil {
				return
			}

			var final *CompletionResponse
			for chunk := range stream {
				if chunk.Err != nil {
					return
				}
				if chunk.TextDelta != "" {
					out <- chunk.TextDelta
				}
				if chunk.Done {
					final = chunk.Final
				}
			}
			if final == nil {
				return
			}

			text, toolUses, serverToolPause := partition(final)
			_ = text

			if len(toolUses) == 0 && serverToolPause {
				out <- "Let me look that up."
				messages = append(messages, assistantMessageFrom(final, turn.UserID, turn.Channel))
				continue
			}
			if len(toolUses) == 0 {
				return
			}

			assistantMsg := assistantMessageFrom(final, turn.UserID, turn.Channel)
			results := l.dispatchAll(ctx, toolUses, turn.Tools, turn.UserID, turn.Channel)
			messages = append(messages, assistantMsg, resultsMessage(results, turn.UserID, turn.Channel))
		}

		out <- ApologySentence
	}()

	return out, nil
}

// RunEvents executes the tool-use loop, yielding tagged text_delta /
// tool_start / tool_end events for a live tool-activity UI. A closing
// tool_end is emitted even if the provider stream ends mid-activity.
func (l *Loop) RunEvents(ctx context.Context, turn Turn) (<-chan models.AgentEvent, error) {
	out := make(chan models.AgentEvent, 32)

	if len(turn.NewUser.Attachments) > 0 {
		if err := ValidateAttachment(turn.NewUser.Attachments[0]); err != nil {
			close(out)
			return out, err
		}
	}

	go func() {
		defer close(out)

		messages := l.fitContext(assembleMessages(turn.History, turn.NewUser))
		maxRounds := l.maxRounds()

		for round := 0; round < maxRounds; round++ {
			stream, err := l.Provider.Stream(ctx, CompletionRequest{System: turn.System, Messages: messages, Tools: toolSchemas(turn.Tools)})
			if err != nil {
				return
			}

			var final *CompletionResponse
			for chunk := range stream {
				if chunk.Err != nil {
					return
				}
				if chunk.TextDelta != "" {
					out <- models.AgentEvent{Type: models.AgentEventTextDelta, Time: now(), Text: chunk.TextDelta}
				}
				if chunk.Done {
					final = chunk.Final
				}
			}
			if final == nil {
				return
			}

			_, toolUses, serverToolPause := partition(final)

			if len(toolUses) == 0 && serverToolPause {
				messages = append(messages, assistantMessageFrom(final, turn.UserID, turn.Channel))
				continue
			}
			if len(toolUses) == 0 {
				return
			}

			assistantMsg := assistantMessageFrom(final, turn.UserID, turn.Channel)
			results := make([]models.ToolResult, 0, len(toolUses))
			for _, tu := range toolUses {
				out <- models.AgentEvent{Type: models.AgentEventToolStart, Time: now(), ToolName: tu.ToolName, ToolInput: string(tu.ToolInput)}
				text := l.Dispatcher.Execute(ctx, tu.ToolName, tu.ToolInput, turn.Tools, turn.UserID, turn.Channel)
				isErr := strings.HasPrefix(text, "Error executing ") || strings.HasPrefix(text, "Unknown tool: ")
				out <- models.AgentEvent{Type: models.AgentEventToolEnd, Time: now(), ToolName: tu.ToolName, ToolError: isErr, ToolText: text}
				results = append(results, models.ToolResult{ToolCallID: tu.ToolUseID, Content: text, IsError: isErr})
			}
			messages = append(messages, assistantMsg, resultsMessage(results, turn.UserID, turn.Channel))
		}

		out <- models.AgentEvent{Type: models.AgentEventTextDelta, Time: now(), Text: ApologySentence}
	}()

	return out, nil
}

func (l *Loop) maxRounds() int {
	if l.MaxToolRounds > 0 {
		return l.MaxToolRounds
	}
	return DefaultMaxToolRounds
}

// partition splits a response into its accumulated text, any custom
// tool-use blocks, and whether the stop reason indicates a pause for
// server-side (provider-hosted) tool processing with no custom tool use.
func partition(resp *CompletionResponse) (text string, toolUses []ContentBlock, serverToolPause bool) {
	var sb strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			sb.WriteString(block.Text)
		case "tool_use":
			toolUses = append(toolUses, block)
		}
	}
	serverToolPause = len(toolUses) == 0 && resp.StopReason == StopServerTool
	return sb.String(), toolUses, serverToolPause
}

// dispatchAll runs every requested custom tool call and converts a raising
// tool into the standard "Error executing <name>: <msg>" text result,
// without aborting the round.
func (l *Loop) dispatchAll(ctx context.Context, toolUses []ContentBlock, tools map[string]Tool, userID, channel string) []models.ToolResult {
	results := make([]models.ToolResult, 0, len(toolUses))
	for _, tu := range toolUses {
		text := l.Dispatcher.Execute(ctx, tu.ToolName, tu.ToolInput, tools, userID, channel)
		isErr := strings.HasPrefix(text, "Error executing ") || strings.HasPrefix(text, "Unknown tool: ")
		results = append(results, models.ToolResult{ToolCallID: tu.ToolUseID, Content: text, IsError: isErr})
	}
	return results
}

func assistantMessageFrom(resp *CompletionResponse, userID, channel string) models.Message {
	var sb strings.Builder
	var calls []models.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			sb.WriteString(block.Text)
		case "tool_use", "server_tool_use":
			calls = append(calls, models.ToolCall{ID: block.ToolUseID, Name: block.ToolName, Input: block.ToolInput})
		}
	}
	return models.Message{
		UserID:    userID,
		Channel:   models.ChannelType(channel),
		Role:      models.RoleAssistant,
		Content:   sb.String(),
		ToolCalls: calls,
		CreatedAt: now(),
	}
}

func resultsMessage(results []models.ToolResult, userID, channel string) models.Message {
	return models.Message{
		UserID:      userID,
		Channel:     models.ChannelType(channel),
		Role:        models.RoleUser,
		ToolResults: results,
		CreatedAt:   now(),
	}
}
