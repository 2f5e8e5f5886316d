// Package models holds the persisted domain entities of the assistant core:
// users, their learned facts and conversation history, scheduled tasks,
// alerts, OAuth tokens, webhook events, and tool-usage audit rows. These are
// the rows named in the storage schema; transport/runtime shapes (messages
// passed to the LLM, tool-call events) live in pkg/models instead.
package models

import "time"

// Role identifies a user's permission tier.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ReservedUserIDs are never returned by admin listings.
var ReservedUserIDs = map[string]bool{
	"default": true,
	"system":  true,
}

// Soul is the open-ended per-user personalization record. Known keys are
// validated against this allowlist before write; unknown keys are dropped
// rather than rejected, since the record is forward-compatible JSONB.
type Soul struct {
	ButlerName         string `json:"butler_name,omitempty"`
	Style              string `json:"style,omitempty"`
	Verbosity          string `json:"verbosity,omitempty"`
	Humor              string `json:"humor,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

// NotificationPrefs controls outbound notification eligibility for a user.
type NotificationPrefs struct {
	Enabled    bool     `json:"enabled"`
	Categories []string `json:"categories,omitempty"`
	QuietStart string   `json:"quiet_start,omitempty"` // "HH:MM"
	QuietEnd   string   `json:"quiet_end,omitempty"`   // "HH:MM"
	Timezone   string   `json:"timezone,omitempty"`    // IANA zone, defaults to UTC
}

// User is the identity and personalization record for one assistant owner.
type User struct {
	ID          string             `json:"id"`
	DisplayName string             `json:"display_name"`
	Role        Role               `json:"role"`
	Permissions []string           `json:"permissions"`
	Soul        Soul               `json:"soul"`
	Phone       string             `json:"phone,omitempty"`
	Notify      NotificationPrefs  `json:"notification_prefs"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// HasPermission reports whether the user's permission set or admin role
// grants the named permission.
func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	if u.Role == RoleAdmin {
		return true
	}
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// FactCategory classifies a learned fact.
type FactCategory string

const (
	FactPreference FactCategory = "preference"
	FactSchedule   FactCategory = "schedule"
	FactRelation   FactCategory = "relationship"
	FactWork       FactCategory = "work"
	FactHealth     FactCategory = "health"
	FactOther      FactCategory = "other"
)

// FactSource identifies how a fact entered the store.
type FactSource string

const (
	FactSourceConversation FactSource = "conversation"
	FactSourceAutoExtract  FactSource = "auto_extraction"
	FactSourceExplicit     FactSource = "explicit"
)

// EmbeddingDimension is the fixed vector width facts and recall queries
// are compared at; the embedding service degrades silently on mismatch.
const EmbeddingDimension = 768

// UserFact is one durable fact learned about a user.
type UserFact struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Fact       string       `json:"fact"`
	Category   FactCategory `json:"category"`
	Confidence float64      `json:"confidence"`
	Source     FactSource   `json:"source"`
	Embedding  []float32    `json:"embedding,omitempty"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Expired reports whether the fact should be excluded from recall at t.
func (f UserFact) Expired(t time.Time) bool {
	return f.ExpiresAt != nil && !f.ExpiresAt.After(t)
}

// Channel is one of the closed set of user-facing modalities.
type Channel string

const (
	ChannelVoice    Channel = "voice"
	ChannelPWA      Channel = "pwa"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
)

// MessageRole distinguishes user and assistant turns in conversation history.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ConversationMessage is one append-only row of a user's turn log.
type ConversationMessage struct {
	ID        int64          `json:"id"`
	UserID    string         `json:"user_id"`
	Channel   Channel        `json:"channel"`
	Role      MessageRole    `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Source    string         `json:"source,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ActionType identifies the shape of a scheduled task's action payload.
type ActionType string

const (
	ActionReminder   ActionType = "reminder"
	ActionAutomation ActionType = "automation"
	ActionCheck      ActionType = "check"
)

// ActionPayload is the tagged record describing what a scheduled task does
// when it fires. Exactly the fields relevant to Type are populated; the rest
// round-trip through JSONB as a sparse object.
type ActionPayload struct {
	Type ActionType `json:"type"`

	// reminder
	Message  string `json:"message,omitempty"`
	Category string `json:"category,omitempty"`

	// automation / check
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`

	// check only: "warning" | "critical" | "always"
	NotifyOn string `json:"notify_on,omitempty"`
}

// ScheduledTask is a cron or one-shot unit of background work.
type ScheduledTask struct {
	ID          string        `json:"id"`
	OwnerUserID string        `json:"owner_user_id"`
	Name        string        `json:"name"`
	Cron        string        `json:"cron,omitempty"`
	Action      ActionPayload `json:"action"`
	Enabled     bool          `json:"enabled"`
	LastRun     *time.Time    `json:"last_run,omitempty"`
	NextRun     *time.Time    `json:"next_run,omitempty"`
	LockedUntil *time.Time    `json:"locked_until,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// OneShot reports whether the task has no recurrence.
func (t ScheduledTask) OneShot() bool {
	return t.Cron == ""
}

// AlertSeverity ranks an alert's urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
	SeverityEmergency AlertSeverity = "emergency"
)

// Alert is the deduplicated failure state for one alert key. At most one
// row exists per AlertKey; Trigger/Resolve are the only transitions.
type Alert struct {
	AlertKey         string         `json:"alert_key"`
	AlertType        string         `json:"alert_type"`
	Severity         AlertSeverity  `json:"severity"`
	Message          string         `json:"message"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	FirstTriggered   time.Time      `json:"first_triggered"`
	LastTriggered    time.Time      `json:"last_triggered"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	NotificationSent bool           `json:"notification_sent"`
}

// Active reports whether the alert has not been resolved since it last fired.
func (a Alert) Active() bool {
	return a.ResolvedAt == nil
}

// OAuthToken is a per-user credential for an external provider.
type OAuthToken struct {
	UserID           string    `json:"user_id"`
	Provider         string    `json:"provider"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	Expiry           time.Time `json:"expiry"`
	Scopes           []string  `json:"scopes,omitempty"`
	ProviderAccountID string   `json:"provider_account_id,omitempty"`
}

// Expired reports whether the access token needs refreshing at t.
func (o OAuthToken) Expired(t time.Time) bool {
	return !o.Expiry.IsZero() && !o.Expiry.After(t)
}

// WebhookEvent is one ingested domain event from an external source.
type WebhookEvent struct {
	ID               string         `json:"id"`
	EventType        string         `json:"event_type"`
	EntityID         string         `json:"entity_id,omitempty"`
	OldState         string         `json:"old_state,omitempty"`
	NewState         string         `json:"new_state,omitempty"`
	Attributes       map[string]any `json:"attributes,omitempty"`
	Processed        bool           `json:"processed"`
	NotificationSent bool           `json:"notification_sent"`
	ReceivedAt       time.Time      `json:"received_at"`
}

// ToolUsage is one audit record of a dispatched tool call.
type ToolUsage struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ToolName   string    `json:"tool_name"`
	Parameters string    `json:"parameters,omitempty"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Channel    Channel   `json:"channel"`
	CreatedAt  time.Time `json:"created_at"`
}

// InviteCode and ServiceCredential are declared for schema completeness
// (foreign-key targets so user deletion cascades fully); the provisioning
// flow that creates/redeems them is out of this module's scope.

// InviteCode is an unredeemed or redeemed account-creation token.
type InviteCode struct {
	Code       string     `json:"code"`
	CreatedBy  string     `json:"created_by,omitempty"`
	RedeemedBy string     `json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ServiceCredential is an admin-provisioned credential for a downstream
// service (media manager, home controller) not tied to a specific user.
type ServiceCredential struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}
