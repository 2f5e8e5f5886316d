package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noble1911/butler/internal/models"
)

// NewMemoryStore returns a fully wired Store backed by in-process maps,
// guarded by one mutex. It exists for unit tests that want exact-behavior
// coverage of the business logic in internal/alerting, internal/tasks, and
// internal/memory without standing up sqlite or sqlmock expectations.
func NewMemoryStore() Store {
	m := &memoryStore{
		users:    map[string]*models.User{},
		facts:    map[string]*models.UserFact{},
		tasks:    map[string]*models.ScheduledTask{},
		alerts:   map[string]*models.Alert{},
		tokens:   map[string]*models.OAuthToken{},
		events:   map[string]*models.WebhookEvent{},
		toolUse:  map[string]*models.ToolUsage{},
		messages: map[int64]*models.ConversationMessage{},
	}
	return Store{
		Users:       m,
		Facts:       m,
		Messages:    m,
		Tasks:       m,
		Alerts:      m,
		OAuthTokens: m,
		Webhooks:    m,
		ToolUsage:   m,
		closer:      func() error { return nil },
	}
}

type memoryStore struct {
	mu sync.Mutex

	users    map[string]*models.User
	facts    map[string]*models.UserFact
	messages map[int64]*models.ConversationMessage
	nextMsg  int64
	tasks    map[string]*models.ScheduledTask
	alerts   map[string]*models.Alert
	tokens   map[string]*models.OAuthToken
	events   map[string]*models.WebhookEvent
	toolUse  map[string]*models.ToolUsage
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	cp.Permissions = append([]string(nil), u.Permissions...)
	return &cp
}

// ---- UserStore ----

func (m *memoryStore) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	m.users[user.ID] = cloneUser(user)
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *memoryStore) Update(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	m.users[user.ID] = cloneUser(user)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for k, f := range m.facts {
		if f.UserID == id {
			delete(m.facts, k)
		}
	}
	for k, msg := range m.messages {
		if msg.UserID == id {
			delete(m.messages, k)
		}
	}
	for k, t := range m.tasks {
		if t.OwnerUserID == id {
			delete(m.tasks, k)
		}
	}
	return nil
}

func (m *memoryStore) List(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.User
	for id, u := range m.users {
		if models.ReservedUserIDs[id] {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- UserFactStore ----

func (m *memoryStore) CreateFact(ctx context.Context, fact *models.UserFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}
	cp := *fact
	m.facts[cp.ID] = &cp
	return nil
}

func (m *memoryStore) DeleteFact(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.facts[id]; !ok {
		return ErrNotFound
	}
	delete(m.facts, id)
	return nil
}

func (m *memoryStore) ListByUser(ctx context.Context, userID string, at time.Time) ([]*models.UserFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UserFact
	for _, f := range m.facts {
		if f.UserID != userID || f.Expired(at) {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) DeleteByUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, f := range m.facts {
		if f.UserID == userID {
			delete(m.facts, k)
		}
	}
	return nil
}

// ---- ConversationMessageStore ----

func (m *memoryStore) CreateMessage(ctx context.Context, msg *models.ConversationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsg++
	msg.ID = m.nextMsg
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	m.messages[cp.ID] = &cp
	return nil
}

func (m *memoryStore) ListRecentByChannel(ctx context.Context, userID string, channel models.Channel, limit int) ([]*models.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*models.ConversationMessage
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.Channel == channel {
			cp := *msg
			matched = append(matched, &cp)
		}
	}
	return recentWindow(matched, limit), nil
}

func (m *memoryStore) ListRecentAcrossChannels(ctx context.Context, userID string, since time.Time, limit int) ([]*models.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*models.ConversationMessage
	for _, msg := range m.messages {
		if msg.UserID == userID && !msg.CreatedAt.Before(since) {
			cp := *msg
			matched = append(matched, &cp)
		}
	}
	return recentWindow(matched, limit), nil
}

// recentWindow sorts newest-first, truncates to limit, then reverses to
// oldest-first - the shape the orchestrator wants for prompt assembly.
func recentWindow(msgs []*models.ConversationMessage, limit int) []*models.ConversationMessage {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs
}

func (m *memoryStore) DeleteMessagesByUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, msg := range m.messages {
		if msg.UserID == userID {
			delete(m.messages, k)
		}
	}
	return nil
}

// ---- ScheduledTaskStore ----

func (m *memoryStore) CreateTask(ctx context.Context, task *models.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return ErrAlreadyExists
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	cp := *task
	m.tasks[cp.ID] = &cp
	return nil
}

func (m *memoryStore) GetTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryStore) UpdateTask(ctx context.Context, task *models.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	cp := *task
	m.tasks[cp.ID] = &cp
	return nil
}

func (m *memoryStore) DeleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memoryStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ScheduledTask
	for _, t := range m.tasks {
		if t.OwnerUserID == ownerUserID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) ClaimDue(ctx context.Context, now time.Time, lockFor time.Duration, limit int) ([]*models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*models.ScheduledTask
	for _, t := range m.tasks {
		if !t.Enabled || t.NextRun == nil || t.NextRun.After(now) {
			continue
		}
		if t.LockedUntil != nil && t.LockedUntil.After(now) {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].NextRun.Before(*candidates[j].NextRun) })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	lockedUntil := now.Add(lockFor)
	out := make([]*models.ScheduledTask, 0, len(candidates))
	for _, t := range candidates {
		t.LockedUntil = &lockedUntil
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryStore) DeleteTasksByOwner(ctx context.Context, ownerUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.tasks {
		if t.OwnerUserID == ownerUserID {
			delete(m.tasks, k)
		}
	}
	return nil
}

// ---- AlertStore ----

func (m *memoryStore) Trigger(ctx context.Context, alert *models.Alert, now time.Time) (TriggerOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.alerts[alert.AlertKey]
	if !ok {
		cp := *alert
		cp.FirstTriggered = now
		cp.LastTriggered = now
		cp.ResolvedAt = nil
		cp.NotificationSent = false
		m.alerts[cp.AlertKey] = &cp
		return TriggerInserted, nil
	}
	if !existing.Active() {
		existing.Severity = alert.Severity
		existing.Message = alert.Message
		existing.Metadata = alert.Metadata
		existing.LastTriggered = now
		existing.ResolvedAt = nil
		existing.NotificationSent = false
		return TriggerRefired, nil
	}
	existing.Severity = alert.Severity
	existing.Message = alert.Message
	existing.Metadata = alert.Metadata
	existing.LastTriggered = now
	return TriggerContinuedActive, nil
}

func (m *memoryStore) Resolve(ctx context.Context, alertKey string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertKey]
	if !ok || !a.Active() {
		return false, nil
	}
	a.ResolvedAt = &now
	return true, nil
}

func (m *memoryStore) ListUnsentActive(ctx context.Context) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.Active() && !a.NotificationSent {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryStore) MarkSent(ctx context.Context, alertKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertKey]
	if !ok {
		return ErrNotFound
	}
	a.NotificationSent = true
	return nil
}

// ---- OAuthTokenStore ----

func tokenKey(userID, provider string) string { return userID + "\x00" + provider }

func (m *memoryStore) Upsert(ctx context.Context, token *models.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tokenKey(token.UserID, token.Provider)
	if existing, ok := m.tokens[key]; ok && token.RefreshToken == "" {
		token.RefreshToken = existing.RefreshToken
	}
	cp := *token
	m.tokens[key] = &cp
	return nil
}

func (m *memoryStore) GetToken(ctx context.Context, userID, provider string) (*models.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenKey(userID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryStore) DeleteToken(ctx context.Context, userID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tokenKey(userID, provider)
	if _, ok := m.tokens[key]; !ok {
		return ErrNotFound
	}
	delete(m.tokens, key)
	return nil
}

// ---- WebhookEventStore ----

func (m *memoryStore) CreateEvent(ctx context.Context, event *models.WebhookEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	cp := *event
	m.events[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memoryStore) MarkProcessed(ctx context.Context, id string, notificationSent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	e.Processed = true
	e.NotificationSent = notificationSent
	return nil
}

// ---- ToolUsageStore ----

func (m *memoryStore) CreateUsage(ctx context.Context, usage *models.ToolUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	cp := *usage
	m.toolUse[cp.ID] = &cp
	return nil
}

func (m *memoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, u := range m.toolUse {
		if u.CreatedAt.Before(cutoff) {
			delete(m.toolUse, k)
			n++
		}
	}
	return n, nil
}
