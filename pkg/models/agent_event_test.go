package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAgentEventType_Constants(t *testing.T) {
	tests := []struct {
		constant AgentEventType
		expected string
	}{
		{AgentEventTextDelta, "text_delta"},
		{AgentEventToolStart, "tool_start"},
		{AgentEventToolEnd, "tool_end"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestAgentEvent_JSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	original := AgentEvent{
		Type:     AgentEventToolStart,
		Time:     now,
		ToolName: "weather",
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded AgentEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.Type != original.Type {
		t.Errorf("Type = %v, want %v", decoded.Type, original.Type)
	}
	if decoded.ToolName != original.ToolName {
		t.Errorf("ToolName = %q, want %q", decoded.ToolName, original.ToolName)
	}
}

func TestAgentEvent_TextDelta(t *testing.T) {
	event := AgentEvent{Type: AgentEventTextDelta, Text: "hel"}
	if event.Type != AgentEventTextDelta {
		t.Fatalf("Type = %v, want %v", event.Type, AgentEventTextDelta)
	}
	if event.Text != "hel" {
		t.Fatalf("Text = %q, want %q", event.Text, "hel")
	}
}

func TestAgentEvent_ToolEndError(t *testing.T) {
	event := AgentEvent{Type: AgentEventToolEnd, ToolName: "weather", ToolError: true, ToolText: "Error executing weather: boom"}
	if !event.ToolError {
		t.Fatal("expected ToolError to be true")
	}
}
