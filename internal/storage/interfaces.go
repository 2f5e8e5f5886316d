// Package storage owns the single relational schema spec §3/§6 describes
// and exposes one interface per entity so components depend on behavior,
// not on a concrete SQL driver. Two backends implement these interfaces:
// Postgres/CockroachDB (github.com/lib/pq, for production) and SQLite
// (modernc.org/sqlite, for local/dev use); an in-memory implementation
// backs unit tests that don't need sqlmock's query-assertion precision.
//
// Method names are disambiguated per entity (CreateFact, not Create) so a
// single SQLStore can implement all eight interfaces without colliding on
// the method set - Go has no overloading.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noble1911/butler/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// UserStore persists User rows.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	// Delete removes the user; backends cascade to all child entities.
	Delete(ctx context.Context, id string) error
	// List returns non-reserved users (spec §3: "default" and "system" are
	// never returned by admin listings).
	List(ctx context.Context) ([]*models.User, error)
}

// UserFactStore persists UserFact rows.
type UserFactStore interface {
	CreateFact(ctx context.Context, fact *models.UserFact) error
	DeleteFact(ctx context.Context, id string) error
	// ListByUser returns every non-expired fact for recall/context assembly
	// to rank or filter in-process (embeddings, category grouping).
	ListByUser(ctx context.Context, userID string, at time.Time) ([]*models.UserFact, error)
	// DeleteByUser removes all facts for a user, used by cascading delete
	// in backends without an enforced foreign key (the in-memory store).
	DeleteByUser(ctx context.Context, userID string) error
}

// ConversationMessageStore persists the append-only turn log.
type ConversationMessageStore interface {
	CreateMessage(ctx context.Context, msg *models.ConversationMessage) error
	// ListRecentByChannel returns up to limit messages for one user+channel,
	// oldest-first, for the orchestrator's per-turn history assembly.
	ListRecentByChannel(ctx context.Context, userID string, channel models.Channel, limit int) ([]*models.ConversationMessage, error)
	// ListRecentAcrossChannels returns up to limit messages across all
	// channels since the given time, oldest-first, for spec §4.3's
	// recent-context prompt block.
	ListRecentAcrossChannels(ctx context.Context, userID string, since time.Time, limit int) ([]*models.ConversationMessage, error)
	DeleteMessagesByUser(ctx context.Context, userID string) error
}

// ScheduledTaskStore persists ScheduledTask rows and atomically claims due
// work for the Task Scheduler.
type ScheduledTaskStore interface {
	CreateTask(ctx context.Context, task *models.ScheduledTask) error
	GetTask(ctx context.Context, id string) (*models.ScheduledTask, error)
	UpdateTask(ctx context.Context, task *models.ScheduledTask) error
	DeleteTask(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerUserID string) ([]*models.ScheduledTask, error)
	// ClaimDue atomically claims up to limit enabled tasks whose next_run is
	// due, locking each until lockFor elapses (spec §4.4/§5: "a DB-level
	// conditional update... to claim and advance atomically").
	ClaimDue(ctx context.Context, now time.Time, lockFor time.Duration, limit int) ([]*models.ScheduledTask, error)
	DeleteTasksByOwner(ctx context.Context, ownerUserID string) error
}

// TriggerOutcome distinguishes the three cases spec §4.5's trigger upsert
// can produce.
type TriggerOutcome int

const (
	// TriggerInserted is a brand-new alert key — needs notify.
	TriggerInserted TriggerOutcome = iota
	// TriggerRefired is a re-fire after a prior resolve — needs notify.
	TriggerRefired
	// TriggerContinuedActive is a repeat trigger of an already-active,
	// already-unresolved alert — no notify.
	TriggerContinuedActive
)

// NeedsNotify reports whether dispatch should treat this trigger as
// eligible for notification (spec §4.5: callers treat (a) and (b) as
// "needs notify").
func (o TriggerOutcome) NeedsNotify() bool {
	return o == TriggerInserted || o == TriggerRefired
}

// AlertStore persists the deduplicated Alert state machine.
type AlertStore interface {
	// Trigger upserts by alert_key, setting last_triggered to now and
	// resetting resolved_at/notification_sent on re-fire.
	Trigger(ctx context.Context, alert *models.Alert, now time.Time) (TriggerOutcome, error)
	// Resolve transitions active -> resolved; returns false if already
	// resolved (a no-op per spec §4.5).
	Resolve(ctx context.Context, alertKey string, now time.Time) (bool, error)
	// ListUnsentActive returns active alerts with notification_sent=false,
	// for the dispatcher's tick.
	ListUnsentActive(ctx context.Context) ([]*models.Alert, error)
	MarkSent(ctx context.Context, alertKey string) error
}

// OAuthTokenStore persists per-user external credentials.
type OAuthTokenStore interface {
	// Upsert inserts or replaces the token for (user_id, provider),
	// preserving the existing refresh token if the new one is empty (spec
	// §3: "refresh preserves existing refresh token if the provider omits
	// it").
	Upsert(ctx context.Context, token *models.OAuthToken) error
	GetToken(ctx context.Context, userID, provider string) (*models.OAuthToken, error)
	DeleteToken(ctx context.Context, userID, provider string) error
}

// WebhookEventStore persists ingested domain events.
type WebhookEventStore interface {
	CreateEvent(ctx context.Context, event *models.WebhookEvent) (string, error)
	MarkProcessed(ctx context.Context, id string, notificationSent bool) error
}

// ToolUsageStore persists tool-call audit rows.
type ToolUsageStore interface {
	CreateUsage(ctx context.Context, usage *models.ToolUsage) error
	// DeleteOlderThan removes rows older than the retention window (spec
	// §4.2's "periodic... job deletes audit rows older than N days").
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store groups every entity store plus the pool's lifecycle.
type Store struct {
	Users       UserStore
	Facts       UserFactStore
	Messages    ConversationMessageStore
	Tasks       ScheduledTaskStore
	Alerts      AlertStore
	OAuthTokens OAuthTokenStore
	Webhooks    WebhookEventStore
	ToolUsage   ToolUsageStore
	pinger      pinger
	closer      func() error
}

// pinger is the subset of *sql.DB the health tool and /metrics endpoint
// need; nil for storage.NewMemoryStore so tests never touch a real pool.
type pinger interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// Close releases any underlying connection pool.
func (s Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
