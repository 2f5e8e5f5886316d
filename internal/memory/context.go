package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/noble1911/butler/internal/models"
)

// behavioralRules is spec §4.3 layer 5, a fixed block appended to every
// assembled prompt regardless of what facts or history are available.
const behavioralRules = `Do not exfiltrate secrets. Avoid destructive or irreversible actions unless explicitly requested.
Be concise and direct. Ask clarifying questions when a request is ambiguous.
Never fabricate tool results; if a tool call fails, say so.`

const maxKnownFacts = 20
const maxRecentMessages = 20
const recentContentTruncateLen = 100

// PromptContext bundles the inputs spec §4.3's context assembly composes
// deterministically into a system prompt.
type PromptContext struct {
	User   *models.User
	Facts  []*models.UserFact
	Recent []*models.ConversationMessage
	Now    time.Time
}

// BuildSystemPrompt composes the system prompt for an LLM call from spec
// §4.3's five ordered layers: identity preamble, personality block,
// known-facts block, recent-context block, and the fixed behavioral rules.
func BuildSystemPrompt(pc PromptContext) string {
	now := pc.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var sections []string

	if identity := identityPreamble(pc.User); identity != "" {
		sections = append(sections, identity)
	}
	if personality := personalityBlock(pc.User); personality != "" {
		sections = append(sections, personality)
	}
	if facts := knownFactsBlock(pc.Facts); facts != "" {
		sections = append(sections, facts)
	}
	if recent := recentContextBlock(pc.Recent); recent != "" {
		sections = append(sections, recent)
	}
	sections = append(sections, behavioralRules)

	return strings.Join(sections, "\n\n")
}

// identityPreamble is layer 1: "You are <butler_name>, speaking with <user_name>."
func identityPreamble(user *models.User) string {
	if user == nil {
		return "You are a personal assistant."
	}
	butlerName := strings.TrimSpace(user.Soul.ButlerName)
	if butlerName == "" {
		butlerName = "your assistant"
	}
	userName := strings.TrimSpace(user.DisplayName)
	if userName == "" {
		userName = "the user"
	}
	return fmt.Sprintf("You are %s, speaking with %s.", butlerName, userName)
}

// personalityBlock is layer 2: only the soul layers actually present.
func personalityBlock(user *models.User) string {
	if user == nil {
		return ""
	}
	var lines []string
	if style := strings.TrimSpace(user.Soul.Style); style != "" {
		lines = append(lines, "Style: "+style)
	}
	if verbosity := strings.TrimSpace(user.Soul.Verbosity); verbosity != "" {
		lines = append(lines, "Verbosity: "+verbosity)
	}
	if humor := strings.TrimSpace(user.Soul.Humor); humor != "" {
		lines = append(lines, "Humor: "+humor)
	}
	if custom := strings.TrimSpace(user.Soul.CustomInstructions); custom != "" {
		lines = append(lines, custom)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// knownFactsBlock is layer 3: up to 20 facts, confidence then recency,
// prefixed by category. Caller is expected to have already excluded expired
// facts (storage.UserFactStore.ListByUser does this at query time).
func knownFactsBlock(facts []*models.UserFact) string {
	if len(facts) == 0 {
		return ""
	}
	ordered := rankFactsByConfidenceThenRecency(facts)
	if len(ordered) > maxKnownFacts {
		ordered = ordered[:maxKnownFacts]
	}

	lines := make([]string, 0, len(ordered)+1)
	lines = append(lines, "Known facts:")
	for _, f := range ordered {
		lines = append(lines, fmt.Sprintf("- [%s] %s", f.Category, f.Fact))
	}
	return strings.Join(lines, "\n")
}

func rankFactsByConfidenceThenRecency(facts []*models.UserFact) []*models.UserFact {
	out := make([]*models.UserFact, len(facts))
	copy(out, facts)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			less := a.Confidence < b.Confidence || (a.Confidence == b.Confidence && a.CreatedAt.Before(b.CreatedAt))
			if !less {
				break
			}
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// recentContextBlock is layer 4: up to 20 messages from the last 7 days
// across all channels, oldest-first, each prefixed with a human date, a
// channel label, and the speaker; content truncated to 100 characters.
func recentContextBlock(messages []*models.ConversationMessage) string {
	if len(messages) == 0 {
		return ""
	}
	trimmed := messages
	if len(trimmed) > maxRecentMessages {
		trimmed = trimmed[len(trimmed)-maxRecentMessages:]
	}

	lines := make([]string, 0, len(trimmed)+1)
	lines = append(lines, "Recent context:")
	for _, m := range trimmed {
		lines = append(lines, formatRecentMessage(m))
	}
	return strings.Join(lines, "\n")
}

func formatRecentMessage(m *models.ConversationMessage) string {
	date := m.CreatedAt.Format("Jan 2 3:04 PM")
	channel := channelLabel(m.Channel)
	speaker := "User"
	if m.Role == models.MessageRoleAssistant {
		speaker = "Assistant"
	}
	content := m.Content
	if len(content) > recentContentTruncateLen {
		content = content[:recentContentTruncateLen] + "..."
	}
	return fmt.Sprintf("%s %s %s: %s", date, channel, speaker, content)
}

// channelLabel formats a channel as "[via <channel>]"; unknown channels fall
// back to the same form with their raw value.
func channelLabel(c models.Channel) string {
	return fmt.Sprintf("[via %s]", c)
}
