package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/noble1911/butler/internal/models"
)

func TestBuildSystemPromptIncludesIdentityAndUser(t *testing.T) {
	user := &models.User{
		DisplayName: "Sam",
		Soul:        models.Soul{ButlerName: "Jeeves", Style: "formal"},
	}
	prompt := BuildSystemPrompt(PromptContext{User: user})

	if !strings.Contains(prompt, "You are Jeeves, speaking with Sam.") {
		t.Errorf("missing identity preamble: %q", prompt)
	}
	if !strings.Contains(prompt, "Style: formal") {
		t.Errorf("missing personality block: %q", prompt)
	}
}

func TestBuildSystemPromptOmitsEmptyPersonality(t *testing.T) {
	user := &models.User{DisplayName: "Sam"}
	prompt := BuildSystemPrompt(PromptContext{User: user})
	if strings.Contains(prompt, "Style:") {
		t.Errorf("should not include empty personality fields: %q", prompt)
	}
}

func TestBuildSystemPromptAlwaysIncludesBehavioralRules(t *testing.T) {
	prompt := BuildSystemPrompt(PromptContext{})
	if !strings.Contains(prompt, "Do not exfiltrate secrets") {
		t.Errorf("missing behavioral rules: %q", prompt)
	}
}

func TestKnownFactsBlockOrdersByConfidenceThenRecency(t *testing.T) {
	now := time.Now()
	facts := []*models.UserFact{
		{Fact: "older high conf", Confidence: 0.9, CreatedAt: now.Add(-2 * time.Hour), Category: models.FactPreference},
		{Fact: "newer high conf", Confidence: 0.9, CreatedAt: now.Add(-1 * time.Hour), Category: models.FactPreference},
		{Fact: "low conf", Confidence: 0.1, CreatedAt: now, Category: models.FactOther},
	}
	block := knownFactsBlock(facts)
	lines := strings.Split(block, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines (header + 3 facts), got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[1], "newer high conf") {
		t.Errorf("expected newer high-confidence fact first, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "older high conf") {
		t.Errorf("expected older high-confidence fact second, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "low conf") {
		t.Errorf("expected low-confidence fact last, got %q", lines[3])
	}
}

func TestKnownFactsBlockCapsAtTwenty(t *testing.T) {
	facts := make([]*models.UserFact, 25)
	for i := range facts {
		facts[i] = &models.UserFact{Fact: "fact", Confidence: float64(i), CreatedAt: time.Now(), Category: models.FactOther}
	}
	block := knownFactsBlock(facts)
	lines := strings.Split(block, "\n")
	if len(lines) != 21 {
		t.Fatalf("expected header + 20 facts, got %d lines", len(lines))
	}
}

func TestRecentContextBlockFormatsChannelAndSpeaker(t *testing.T) {
	msgs := []*models.ConversationMessage{
		{
			Channel:   models.ChannelTelegram,
			Role:      models.MessageRoleUser,
			Content:   "hello there",
			CreatedAt: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
		},
	}
	block := recentContextBlock(msgs)
	if !strings.Contains(block, "[via telegram]") {
		t.Errorf("missing channel label: %q", block)
	}
	if !strings.Contains(block, "User: hello there") {
		t.Errorf("missing speaker/content: %q", block)
	}
}

func TestRecentContextBlockTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("x", 150)
	msgs := []*models.ConversationMessage{
		{Channel: models.ChannelPWA, Role: models.MessageRoleAssistant, Content: long, CreatedAt: time.Now()},
	}
	block := recentContextBlock(msgs)
	if strings.Contains(block, long) {
		t.Errorf("expected content to be truncated")
	}
	if !strings.Contains(block, strings.Repeat("x", 100)+"...") {
		t.Errorf("expected truncated content with ellipsis, got %q", block)
	}
}

func TestRecentContextBlockCapsAtTwenty(t *testing.T) {
	msgs := make([]*models.ConversationMessage, 25)
	for i := range msgs {
		msgs[i] = &models.ConversationMessage{
			Channel:   models.ChannelVoice,
			Role:      models.MessageRoleUser,
			Content:   "msg",
			CreatedAt: time.Now(),
		}
	}
	block := recentContextBlock(msgs)
	lines := strings.Split(block, "\n")
	if len(lines) != 21 {
		t.Fatalf("expected header + 20 messages, got %d lines", len(lines))
	}
}

func TestChannelLabelUnknownChannelFallsBackToDefault(t *testing.T) {
	label := channelLabel(models.Channel("carrier-pigeon"))
	if label != "[via carrier-pigeon]" {
		t.Errorf("unexpected label: %q", label)
	}
}
