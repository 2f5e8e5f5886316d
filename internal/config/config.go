// Package config loads the assistant core's runtime configuration from the
// environment. There is no YAML layer: every setting is a single env var,
// read once at process start and validated before any subsystem wires up.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM configures the primary/failover provider pair (spec §4.1, §6).
type LLM struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	MaxTokens       int
}

// DefaultLLM returns provider defaults matching internal/agent/providers.
func DefaultLLM() LLM {
	return LLM{
		AnthropicModel: "claude-sonnet-4-5",
		OpenAIModel:    "gpt-4o",
		MaxTokens:      4096,
	}
}

// Storage configures the single relational backend (spec §6).
type Storage struct {
	// DatabaseURL is either a postgres://... DSN or a sqlite file path;
	// internal/storage.Open infers the dialect from the scheme.
	DatabaseURL string
}

// Embeddings configures the semantic recall backend (spec §4.3 supplement).
type Embeddings struct {
	Provider string // "openai" | "ollama"
	APIKey   string
	BaseURL  string
	Model    string
}

// DefaultEmbeddings returns OpenAI text-embedding-3-small at the entity
// package's fixed vector width.
func DefaultEmbeddings() Embeddings {
	return Embeddings{Provider: "openai", Model: "text-embedding-3-small"}
}

// Outbound configures the notification dispatcher's sliding-window rate
// limit and quiet-hours defaults (spec §4.6).
type Outbound struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
	DefaultTimezone string

	// TransportURL, if set, configures internal/outbound.HTTPTransport
	// against an external messaging bridge. Left empty, main.go falls back
	// to a log-only transport so the process still starts without one.
	TransportURL string
	TransportKey string
}

// DefaultOutbound matches spec §4.6's "no more than N notifications per
// rolling window" example budget.
func DefaultOutbound() Outbound {
	return Outbound{
		RateLimitMax:    10,
		RateLimitWindow: time.Hour,
		DefaultTimezone: "UTC",
	}
}

// Webhook configures the single shared-secret ingestion contract (spec §4.7).
type Webhook struct {
	SharedSecret string
	ListenAddr   string
}

// Retention configures the periodic audit-row cleanup job (spec §4.2).
type Retention struct {
	ToolUsageDays int
}

// DefaultRetention matches the 30-day window spec §4.2 names as the example.
func DefaultRetention() Retention {
	return Retention{ToolUsageDays: 30}
}

// SyncLoop configures the metadata sync loop's poll interval and the media
// library server it reconciles against (spec §4.8).
type SyncLoop struct {
	Interval   time.Duration
	MatchDelay time.Duration
	LibraryURL string
	LibraryKey string
}

// DefaultSyncLoop matches the "every few minutes" cadence spec §4.8 gives,
// and the teacher's 2-second pause between match calls.
func DefaultSyncLoop() SyncLoop {
	return SyncLoop{Interval: 10 * time.Minute, MatchDelay: 2 * time.Second}
}

// Alerting configures the trigger dispatcher's poll interval (spec §4.5).
type Alerting struct {
	PollInterval time.Duration
}

// DefaultAlerting matches the short poll cadence alert dispatch needs.
func DefaultAlerting() Alerting {
	return Alerting{PollInterval: 30 * time.Second}
}

// Calendar configures the OAuth2 calendar tool (internal/tools/calendar).
// Left with an empty BaseURL, main.go skips registering the tool entirely.
type Calendar struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	BaseURL      string
}

// Media configures the *arr-family/Overseerr media-management tools
// (internal/tools/media). Each backend is independently optional; main.go
// registers only the tools whose backend is configured.
type Media struct {
	RadarrURL        string
	RadarrAPIKey     string
	RadarrRootFolder string
	RadarrProfileID  int

	SonarrURL    string
	SonarrAPIKey string

	OverseerrURL    string
	OverseerrAPIKey string
}

// Scheduler configures the task scheduler's claim loop (spec §4.4).
type Scheduler struct {
	PollInterval time.Duration
	ClaimBatch   int
	LockFor      time.Duration
}

// DefaultScheduler matches the teacher's cron-style minute-granularity poll.
func DefaultScheduler() Scheduler {
	return Scheduler{
		PollInterval: 30 * time.Second,
		ClaimBatch:   20,
		LockFor:      2 * time.Minute,
	}
}

// Config is the fully assembled process configuration.
type Config struct {
	LLM        LLM
	Storage    Storage
	Embeddings Embeddings
	Outbound   Outbound
	Webhook    Webhook
	Retention  Retention
	SyncLoop   SyncLoop
	Alerting   Alerting
	Scheduler  Scheduler
	Calendar   Calendar
	Media      Media

	// HomeAssistantBaseURL/Token configure the webhook source and the
	// home-automation tool surface (spec §4.7, internal/tools/homeassistant).
	HomeAssistantBaseURL string
	HomeAssistantToken   string

	LogLevel  string
	LogFormat string // "json" | "text"

	// TracingOTLPEndpoint, if set, exports spans to an OTLP collector
	// (internal/observability.Tracer). Left empty, tracing is a no-op.
	TracingOTLPEndpoint string
}

// FromEnv reads every setting from its env var, applying package defaults
// for anything unset, then validates the result.
func FromEnv() (*Config, error) {
	cfg := &Config{
		LLM:        DefaultLLM(),
		Embeddings: DefaultEmbeddings(),
		Outbound:   DefaultOutbound(),
		Retention:  DefaultRetention(),
		SyncLoop:   DefaultSyncLoop(),
		Alerting:   DefaultAlerting(),
		Scheduler:  DefaultScheduler(),
		LogLevel:   "info",
		LogFormat:  "json",
	}

	cfg.LLM.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	if v := os.Getenv("ANTHROPIC_MODEL"); v != "" {
		cfg.LLM.AnthropicModel = v
	}
	cfg.LLM.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.OpenAIModel = v
	}
	cfg.LLM.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	if v, err := intEnv("LLM_MAX_TOKENS"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.LLM.MaxTokens = v
	}

	cfg.Storage.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), "file:butler.db?cache=shared&_pragma=busy_timeout(5000)")

	if v := os.Getenv("EMBEDDINGS_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	cfg.Embeddings.APIKey = firstNonEmpty(os.Getenv("EMBEDDINGS_API_KEY"), cfg.LLM.OpenAIAPIKey)
	cfg.Embeddings.BaseURL = os.Getenv("EMBEDDINGS_BASE_URL")
	if v := os.Getenv("EMBEDDINGS_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}

	if v, err := intEnv("OUTBOUND_RATE_LIMIT_MAX"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.Outbound.RateLimitMax = v
	}
	if v, err := durationEnv("OUTBOUND_RATE_LIMIT_WINDOW"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.Outbound.RateLimitWindow = v
	}
	if v := os.Getenv("DEFAULT_TIMEZONE"); v != "" {
		cfg.Outbound.DefaultTimezone = v
	}
	cfg.Outbound.TransportURL = os.Getenv("OUTBOUND_TRANSPORT_URL")
	cfg.Outbound.TransportKey = os.Getenv("OUTBOUND_TRANSPORT_KEY")

	cfg.Webhook.SharedSecret = os.Getenv("WEBHOOK_SHARED_SECRET")
	cfg.Webhook.ListenAddr = firstNonEmpty(os.Getenv("WEBHOOK_LISTEN_ADDR"), ":8088")

	if v, err := intEnv("RETENTION_TOOL_USAGE_DAYS"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.Retention.ToolUsageDays = v
	}

	if v, err := durationEnv("SYNC_LOOP_INTERVAL"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.SyncLoop.Interval = v
	}
	if v, err := durationEnv("SYNC_LOOP_MATCH_DELAY"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.SyncLoop.MatchDelay = v
	}
	cfg.SyncLoop.LibraryURL = os.Getenv("MEDIA_LIBRARY_BASE_URL")
	cfg.SyncLoop.LibraryKey = os.Getenv("MEDIA_LIBRARY_TOKEN")

	if v, err := durationEnv("ALERTING_POLL_INTERVAL"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.Alerting.PollInterval = v
	}

	if v, err := durationEnv("SCHEDULER_POLL_INTERVAL"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.Scheduler.PollInterval = v
	}
	if v, err := intEnv("SCHEDULER_CLAIM_BATCH"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.Scheduler.ClaimBatch = v
	}
	if v, err := durationEnv("SCHEDULER_LOCK_FOR"); err != nil {
		return nil, err
	} else if v != 0 {
		cfg.Scheduler.LockFor = v
	}

	cfg.HomeAssistantBaseURL = os.Getenv("HOMEASSISTANT_BASE_URL")
	cfg.HomeAssistantToken = os.Getenv("HOMEASSISTANT_TOKEN")

	cfg.Calendar.ClientID = os.Getenv("CALENDAR_CLIENT_ID")
	cfg.Calendar.ClientSecret = os.Getenv("CALENDAR_CLIENT_SECRET")
	cfg.Calendar.AuthURL = firstNonEmpty(os.Getenv("CALENDAR_AUTH_URL"), "https://accounts.google.com/o/oauth2/auth")
	cfg.Calendar.TokenURL = firstNonEmpty(os.Getenv("CALENDAR_TOKEN_URL"), "https://oauth2.googleapis.com/token")
	cfg.Calendar.BaseURL = os.Getenv("CALENDAR_BASE_URL")

	cfg.Media.RadarrURL = os.Getenv("RADARR_BASE_URL")
	cfg.Media.RadarrAPIKey = os.Getenv("RADARR_API_KEY")
	cfg.Media.RadarrRootFolder = os.Getenv("RADARR_ROOT_FOLDER")
	if v, err := intEnv("RADARR_QUALITY_PROFILE_ID"); err != nil {
		return nil, err
	} else {
		cfg.Media.RadarrProfileID = v
	}
	cfg.Media.SonarrURL = os.Getenv("SONARR_BASE_URL")
	cfg.Media.SonarrAPIKey = os.Getenv("SONARR_API_KEY")
	cfg.Media.OverseerrURL = os.Getenv("OVERSEERR_BASE_URL")
	cfg.Media.OverseerrAPIKey = os.Getenv("OVERSEERR_API_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	cfg.TracingOTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants main.go relies on before wiring anything.
func (c *Config) Validate() error {
	if c.LLM.AnthropicAPIKey == "" && c.LLM.OpenAIAPIKey == "" {
		return fmt.Errorf("config: at least one of ANTHROPIC_API_KEY or OPENAI_API_KEY must be set")
	}
	if c.Storage.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.Webhook.SharedSecret == "" {
		return fmt.Errorf("config: WEBHOOK_SHARED_SECRET is required")
	}
	if c.Outbound.RateLimitMax <= 0 {
		return fmt.Errorf("config: OUTBOUND_RATE_LIMIT_MAX must be positive")
	}
	if c.Outbound.RateLimitWindow <= 0 {
		return fmt.Errorf("config: OUTBOUND_RATE_LIMIT_WINDOW must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intEnv(name string) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", name, err)
	}
	return n, nil
}

func durationEnv(name string) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration (e.g. \"30s\"): %w", name, err)
	}
	return d, nil
}
