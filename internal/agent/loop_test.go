package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/noble1911/butler/pkg/models"
)

// scriptedProvider returns one CompletionResponse per call to Complete, in
// order, looping on the last entry once exhausted.
type scriptedProvider struct {
	responses []*CompletionResponse
	calls     int
}

func (s *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

func (s *scriptedProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return nil, nil
}

func TestLoop_RunBatch_NoToolUse(t *testing.T) {
	provider := &scriptedProvider{responses: []*CompletionResponse{
		{Content: []ContentBlock{{Type: "text", Text: "hello there"}}, StopReason: StopEndTurn},
	}}
	loop := NewLoop(provider, NewDispatcher(nil))

	result, err := loop.RunBatch(context.Background(), Turn{
		System:  "be nice",
		NewUser: models.Message{Role: models.RoleUser, Content: "hi"},
		Tools:   map[string]Tool{},
		UserID:  "u1",
		Channel: "pwa",
	})
	if err != nil {
		t.Fatalf("RunBatch error: %v", err)
	}
	if result != "hello there" {
		t.Errorf("result = %q, want %q", result, "hello there")
	}
	if provider.calls != 1 {
		t.Errorf("calls = %d, want 1", provider.calls)
	}
}

func TestLoop_RunBatch_ToolUseThenFinalAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []*CompletionResponse{
		{
			Content: []ContentBlock{{
				Type: "tool_use", ToolUseID: "tu_1", ToolName: "echo",
				ToolInput: json.RawMessage(`{}`),
			}},
			StopReason: StopToolUse,
		},
		{Content: []ContentBlock{{Type: "text", Text: "done"}}, StopReason: StopEndTurn},
	}}
	loop := NewLoop(provider, NewDispatcher(nil))

	result, err := loop.RunBatch(context.Background(), Turn{
		NewUser: models.Message{Role: models.RoleUser, Content: "run echo"},
		Tools:   map[string]Tool{"echo": echoUserIDTool{}},
		UserID:  "u1",
		Channel: "pwa",
	})
	if err != nil {
		t.Fatalf("RunBatch error: %v", err)
	}
	if result != "done" {
		t.Errorf("result = %q, want %q", result, "done")
	}
	if provider.calls != 2 {
		t.Errorf("calls = %d, want 2", provider.calls)
	}
}

func TestLoop_RunBatch_MaxRoundsYieldsApology(t *testing.T) {
	stuckResponse := &CompletionResponse{
		Content: []ContentBlock{{
			Type: "tool_use", ToolUseID: "tu_1", ToolName: "echo",
			ToolInput: json.RawMessage(`{}`),
		}},
		StopReason: StopToolUse,
	}
	provider := &scriptedProvider{responses: []*CompletionResponse{stuckResponse}}
	loop := NewLoop(provider, NewDispatcher(nil))
	loop.MaxToolRounds = 3

	result, err := loop.RunBatch(context.Background(), Turn{
		NewUser: models.Message{Role: models.RoleUser, Content: "loop forever"},
		Tools:   map[string]Tool{"echo": echoUserIDTool{}},
		UserID:  "u1",
		Channel: "pwa",
	})
	if err != nil {
		t.Fatalf("RunBatch error: %v", err)
	}
	if result != ApologySentence {
		t.Errorf("result = %q, want apology sentence", result)
	}
	if provider.calls != 3 {
		t.Errorf("calls = %d, want 3", provider.calls)
	}
}

func TestAssembleMessages_TrimsToLeadingUserMessage(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleAssistant, Content: "stray"},
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "reply"},
	}
	newUser := models.Message{Role: models.RoleUser, Content: "second"}

	got := assembleMessages(history, newUser)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Role != models.RoleUser || got[0].Content != "first" {
		t.Errorf("first message = %+v, want leading user message", got[0])
	}
}

func TestAssembleMessages_ConcatenatesOntoTrailingUserMessage(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "first"},
	}
	newUser := models.Message{Role: models.RoleUser, Content: "second"}

	got := assembleMessages(history, newUser)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (messages should be merged)", len(got))
	}
	want := "first\n\nsecond"
	if got[0].Content != want {
		t.Errorf("Content = %q, want %q", got[0].Content, want)
	}
}

func TestValidateAttachment_RejectsUnknownMediaType(t *testing.T) {
	err := ValidateAttachment(models.Attachment{Type: "image", MimeType: "image/tiff", Data: "AAAA"})
	if err == nil {
		t.Fatal("expected error for unsupported media type")
	}
}

func TestValidateAttachment_RejectsOversizedPayload(t *testing.T) {
	big := make([]byte, maxAttachmentBase64Bytes+1)
	for i := range big {
		big[i] = 'A'
	}
	err := ValidateAttachment(models.Attachment{Type: "image", MimeType: "image/png", Data: string(big)})
	if err == nil {
		t.Fatal("expected error for oversized attachment")
	}
}

func TestLoop_FitContext_TrimsOldestWhenOverBudget(t *testing.T) {
	loop := NewLoop(nil, nil)
	loop.MaxContextTokens = 32 // tiny budget forces trimming well before DefaultContextWindow

	history := make([]models.Message, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, models.Message{Role: models.RoleUser, Content: "padding message number that is reasonably long"})
	}
	newUser := models.Message{Role: models.RoleUser, Content: "final question"}

	messages := assembleMessages(history, newUser)
	trimmed := loop.fitContext(messages)

	if len(trimmed) >= len(messages) {
		t.Fatalf("fitContext did not trim: got %d messages, started with %d", len(trimmed), len(messages))
	}
	if trimmed[len(trimmed)-1].Content != messages[len(messages)-1].Content {
		t.Errorf("fitContext dropped the most recent message")
	}
}

func TestLoop_FitContext_LeavesSmallHistoryUntouched(t *testing.T) {
	loop := NewLoop(nil, nil)
	history := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	newUser := models.Message{Role: models.RoleUser, Content: "how are you"}

	messages := assembleMessages(history, newUser)
	trimmed := loop.fitContext(messages)

	if len(trimmed) != len(messages) {
		t.Fatalf("len = %d, want %d (no trimming needed)", len(trimmed), len(messages))
	}
}
