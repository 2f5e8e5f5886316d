package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noble1911/butler/internal/models"
)

// SQLStore implements every entity store interface against a single
// *sql.DB, parameterized by dialect for placeholder syntax ($N vs ?). Both
// the Postgres/CockroachDB and SQLite backends share this implementation;
// only Open()'s driver selection and schema.go's DDL differ between them.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == dialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// args builds a comma-separated placeholder list starting at 1.
func (s *SQLStore) args(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s.ph(i + 1)
	}
	return strings.Join(parts, ", ")
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func timeStr(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTimeStr(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: timeStr(*t), Valid: true}
}

func parseTime(str string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, str)
}

func scanOptTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ---- UserStore ----

func (s *SQLStore) Create(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user is required")
	}
	perms, err := marshalJSON(user.Permissions)
	if err != nil {
		return err
	}
	soul, err := marshalJSON(user.Soul)
	if err != nil {
		return err
	}
	prefs, err := marshalJSON(user.Notify)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO users (id, display_name, role, permissions, soul, phone, notification_prefs, created_at, updated_at)
		 VALUES (%s)`, s.args(9)),
		user.ID, user.DisplayName, string(user.Role), perms, soul, user.Phone, prefs,
		timeStr(user.CreatedAt), timeStr(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, display_name, role, permissions, soul, phone, notification_prefs, created_at, updated_at
		 FROM users WHERE id = %s`, s.ph(1)), id)
	var u models.User
	var role, perms, soul, prefs, created, updated string
	if err := row.Scan(&u.ID, &u.DisplayName, &role, &perms, &soul, &u.Phone, &prefs, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = models.Role(role)
	_ = json.Unmarshal([]byte(perms), &u.Permissions)
	_ = json.Unmarshal([]byte(soul), &u.Soul)
	_ = json.Unmarshal([]byte(prefs), &u.Notify)
	if t, err := parseTime(created); err == nil {
		u.CreatedAt = t
	}
	if t, err := parseTime(updated); err == nil {
		u.UpdatedAt = t
	}
	return &u, nil
}

func (s *SQLStore) Update(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user is required")
	}
	perms, err := marshalJSON(user.Permissions)
	if err != nil {
		return err
	}
	soul, err := marshalJSON(user.Soul)
	if err != nil {
		return err
	}
	prefs, err := marshalJSON(user.Notify)
	if err != nil {
		return err
	}
	user.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE users SET display_name=%s, role=%s, permissions=%s, soul=%s, phone=%s, notification_prefs=%s, updated_at=%s WHERE id=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8)),
		user.DisplayName, string(user.Role), perms, soul, user.Phone, prefs, timeStr(user.UpdatedAt), user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM users WHERE id=%s`, s.ph(1)), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, role, permissions, soul, phone, notification_prefs, created_at, updated_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		var u models.User
		var role, perms, soul, prefs, created, updated string
		if err := rows.Scan(&u.ID, &u.DisplayName, &role, &perms, &soul, &u.Phone, &prefs, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if models.ReservedUserIDs[u.ID] {
			continue
		}
		u.Role = models.Role(role)
		_ = json.Unmarshal([]byte(perms), &u.Permissions)
		_ = json.Unmarshal([]byte(soul), &u.Soul)
		_ = json.Unmarshal([]byte(prefs), &u.Notify)
		if t, err := parseTime(created); err == nil {
			u.CreatedAt = t
		}
		if t, err := parseTime(updated); err == nil {
			u.UpdatedAt = t
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// ---- UserFactStore ----

func (s *SQLStore) CreateFact(ctx context.Context, fact *models.UserFact) error {
	if fact == nil {
		return fmt.Errorf("fact is required")
	}
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}
	var embedding sql.NullString
	if len(fact.Embedding) > 0 {
		b, err := json.Marshal(fact.Embedding)
		if err != nil {
			return err
		}
		embedding = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO user_facts (id, user_id, fact, category, confidence, source, embedding, expires_at, created_at)
		 VALUES (%s)`, s.args(9)),
		fact.ID, fact.UserID, fact.Fact, string(fact.Category), fact.Confidence, string(fact.Source),
		embedding, nullTimeStr(fact.ExpiresAt), timeStr(fact.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create fact: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteFact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM user_facts WHERE id=%s`, s.ph(1)), id)
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListByUser(ctx context.Context, userID string, at time.Time) ([]*models.UserFact, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, user_id, fact, category, confidence, source, embedding, expires_at, created_at
		 FROM user_facts WHERE user_id=%s ORDER BY created_at DESC`, s.ph(1)), userID)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var out []*models.UserFact
	for rows.Next() {
		var f models.UserFact
		var category, source, created string
		var embedding, expires sql.NullString
		if err := rows.Scan(&f.ID, &f.UserID, &f.Fact, &category, &f.Confidence, &source, &embedding, &expires, &created); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Category = models.FactCategory(category)
		f.Source = models.FactSource(source)
		if embedding.Valid {
			_ = json.Unmarshal([]byte(embedding.String), &f.Embedding)
		}
		f.ExpiresAt = scanOptTime(expires)
		if t, err := parseTime(created); err == nil {
			f.CreatedAt = t
		}
		if f.Expired(at) {
			continue
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM user_facts WHERE user_id=%s`, s.ph(1)), userID); err != nil {
		return fmt.Errorf("delete facts by user: %w", err)
	}
	return nil
}

// ---- ConversationMessageStore ----

func (s *SQLStore) CreateMessage(ctx context.Context, msg *models.ConversationMessage) error {
	if msg == nil {
		return fmt.Errorf("message is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	meta, err := marshalJSON(msg.Metadata)
	if err != nil {
		return err
	}
	if s.dialect == dialectPostgres {
		row := s.db.QueryRowContext(ctx, fmt.Sprintf(
			`INSERT INTO conversation_history (user_id, channel, role, content, metadata, source, created_at)
			 VALUES (%s) RETURNING id`, s.args(7)),
			msg.UserID, string(msg.Channel), string(msg.Role), msg.Content, meta, msg.Source, timeStr(msg.CreatedAt),
		)
		if err := row.Scan(&msg.ID); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO conversation_history (user_id, channel, role, content, metadata, source, created_at)
		 VALUES (%s)`, s.args(7)),
		msg.UserID, string(msg.Channel), string(msg.Role), msg.Content, meta, msg.Source, timeStr(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create message id: %w", err)
	}
	msg.ID = id
	return nil
}

func scanMessages(rows *sql.Rows) ([]*models.ConversationMessage, error) {
	defer rows.Close()
	var out []*models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		var channel, role, created string
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &channel, &role, &m.Content, &meta, &m.Source, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Channel = models.Channel(channel)
		m.Role = models.MessageRole(role)
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &m.Metadata)
		}
		if t, err := parseTime(created); err == nil {
			m.CreatedAt = t
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListRecentByChannel(ctx context.Context, userID string, channel models.Channel, limit int) ([]*models.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, user_id, channel, role, content, metadata, source, created_at FROM (
		   SELECT id, user_id, channel, role, content, metadata, source, created_at
		   FROM conversation_history WHERE user_id=%s AND channel=%s
		   ORDER BY created_at DESC LIMIT %s
		 ) recent ORDER BY created_at ASC`, s.ph(1), s.ph(2), s.ph(3)),
		userID, string(channel), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent by channel: %w", err)
	}
	return scanMessages(rows)
}

func (s *SQLStore) ListRecentAcrossChannels(ctx context.Context, userID string, since time.Time, limit int) ([]*models.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, user_id, channel, role, content, metadata, source, created_at FROM (
		   SELECT id, user_id, channel, role, content, metadata, source, created_at
		   FROM conversation_history WHERE user_id=%s AND created_at >= %s
		   ORDER BY created_at DESC LIMIT %s
		 ) recent ORDER BY created_at ASC`, s.ph(1), s.ph(2), s.ph(3)),
		userID, timeStr(since), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent across channels: %w", err)
	}
	return scanMessages(rows)
}

func (s *SQLStore) DeleteMessagesByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM conversation_history WHERE user_id=%s`, s.ph(1)), userID); err != nil {
		return fmt.Errorf("delete messages by user: %w", err)
	}
	return nil
}

// ---- ScheduledTaskStore ----

func (s *SQLStore) CreateTask(ctx context.Context, task *models.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task is required")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	action, err := marshalJSON(task.Action)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO scheduled_tasks (id, owner_user_id, name, cron, action, enabled, last_run, next_run, locked_until, created_at)
		 VALUES (%s)`, s.args(10)),
		task.ID, task.OwnerUserID, task.Name, task.Cron, action, task.Enabled,
		nullTimeStr(task.LastRun), nullTimeStr(task.NextRun), nullTimeStr(task.LockedUntil), timeStr(task.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func scanTask(scan func(dest ...any) error) (*models.ScheduledTask, error) {
	var t models.ScheduledTask
	var action, created string
	var enabled any
	var lastRun, nextRun, lockedUntil sql.NullString
	if err := scan(&t.ID, &t.OwnerUserID, &t.Name, &t.Cron, &action, &enabled, &lastRun, &nextRun, &lockedUntil, &created); err != nil {
		return nil, err
	}
	switch v := enabled.(type) {
	case bool:
		t.Enabled = v
	case int64:
		t.Enabled = v != 0
	}
	_ = json.Unmarshal([]byte(action), &t.Action)
	t.LastRun = scanOptTime(lastRun)
	t.NextRun = scanOptTime(nextRun)
	t.LockedUntil = scanOptTime(lockedUntil)
	if parsed, err := parseTime(created); err == nil {
		t.CreatedAt = parsed
	}
	return &t, nil
}

func (s *SQLStore) GetTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, owner_user_id, name, cron, action, enabled, last_run, next_run, locked_until, created_at
		 FROM scheduled_tasks WHERE id=%s`, s.ph(1)), id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return t, nil
}

func (s *SQLStore) UpdateTask(ctx context.Context, task *models.ScheduledTask) error {
	action, err := marshalJSON(task.Action)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE scheduled_tasks SET name=%s, cron=%s, action=%s, enabled=%s, last_run=%s, next_run=%s, locked_until=%s WHERE id=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8)),
		task.Name, task.Cron, action, task.Enabled,
		nullTimeStr(task.LastRun), nullTimeStr(task.NextRun), nullTimeStr(task.LockedUntil), task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM scheduled_tasks WHERE id=%s`, s.ph(1)), id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*models.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, owner_user_id, name, cron, action, enabled, last_run, next_run, locked_until, created_at
		 FROM scheduled_tasks WHERE owner_user_id=%s ORDER BY created_at`, s.ph(1)), ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by owner: %w", err)
	}
	defer rows.Close()
	var out []*models.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimDue implements the atomic claim spec §4.4/§5 requires: an
// UPDATE ... WHERE next_run <= now AND (locked_until IS NULL OR locked_until
// < now) moves the lock forward in one statement, then a SELECT by the
// just-claimed IDs returns the rows. Two schedulers racing this query can
// only ever claim disjoint sets because the UPDATE's row lock serializes
// them at the database.
func (s *SQLStore) ClaimDue(ctx context.Context, now time.Time, lockFor time.Duration, limit int) ([]*models.ScheduledTask, error) {
	lockedUntil := now.Add(lockFor)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim due begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT id FROM scheduled_tasks
		 WHERE enabled = %s AND next_run IS NOT NULL AND next_run <= %s
		   AND (locked_until IS NULL OR locked_until < %s)
		 ORDER BY next_run LIMIT %s`,
		trueLiteral(s.dialect), s.ph(1), s.ph(2), s.ph(3)),
		timeStr(now), timeStr(now), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("claim due scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, timeStr(lockedUntil))
	for i, id := range ids {
		placeholders[i] = s.ph(i + 2)
		args = append(args, id)
	}
	updateQuery := fmt.Sprintf(`UPDATE scheduled_tasks SET locked_until=%s WHERE id IN (%s)`,
		s.ph(1), strings.Join(placeholders, ", "))
	if _, err := tx.ExecContext(ctx, updateQuery, args...); err != nil {
		return nil, fmt.Errorf("claim due update: %w", err)
	}

	selectPlaceholders := make([]string, len(ids))
	selectArgs := make([]any, len(ids))
	for i, id := range ids {
		selectPlaceholders[i] = s.ph(i + 1)
		selectArgs[i] = id
	}
	selectQuery := fmt.Sprintf(
		`SELECT id, owner_user_id, name, cron, action, enabled, last_run, next_run, locked_until, created_at
		 FROM scheduled_tasks WHERE id IN (%s)`, strings.Join(selectPlaceholders, ", "))
	claimedRows, err := tx.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("claim due reselect: %w", err)
	}
	var out []*models.ScheduledTask
	for claimedRows.Next() {
		t, err := scanTask(claimedRows.Scan)
		if err != nil {
			claimedRows.Close()
			return nil, fmt.Errorf("scan claimed task: %w", err)
		}
		out = append(out, t)
	}
	claimedRows.Close()
	if err := claimedRows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

func trueLiteral(dia dialect) string {
	if dia == dialectPostgres {
		return "TRUE"
	}
	return "1"
}

func (s *SQLStore) DeleteTasksByOwner(ctx context.Context, ownerUserID string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM scheduled_tasks WHERE owner_user_id=%s`, s.ph(1)), ownerUserID); err != nil {
		return fmt.Errorf("delete tasks by owner: %w", err)
	}
	return nil
}

// ---- AlertStore ----

// Trigger implements spec §4.5's three-way upsert: a brand-new key inserts,
// a resolved key re-fires (clearing resolved_at/notification_sent), and a
// still-active key just advances last_triggered with no notify.
func (s *SQLStore) Trigger(ctx context.Context, alert *models.Alert, now time.Time) (TriggerOutcome, error) {
	if alert == nil || alert.AlertKey == "" {
		return TriggerContinuedActive, fmt.Errorf("alert key is required")
	}
	meta, err := marshalJSON(alert.Metadata)
	if err != nil {
		return TriggerContinuedActive, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TriggerContinuedActive, fmt.Errorf("trigger begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT resolved_at FROM alert_state WHERE alert_key=%s`, s.ph(1)), alert.AlertKey)
	var resolvedAt sql.NullString
	err = row.Scan(&resolvedAt)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO alert_state (alert_key, alert_type, severity, message, metadata, first_triggered, last_triggered, resolved_at, notification_sent)
			 VALUES (%s)`, s.args(9)),
			alert.AlertKey, alert.AlertType, string(alert.Severity), alert.Message, meta,
			timeStr(now), timeStr(now), sql.NullString{}, false,
		)
		if err != nil {
			return TriggerContinuedActive, fmt.Errorf("trigger insert: %w", err)
		}
		return TriggerInserted, tx.Commit()
	case err != nil:
		return TriggerContinuedActive, fmt.Errorf("trigger lookup: %w", err)
	}

	if resolvedAt.Valid {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE alert_state SET severity=%s, message=%s, metadata=%s, last_triggered=%s, resolved_at=NULL, notification_sent=%s WHERE alert_key=%s`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6)),
			string(alert.Severity), alert.Message, meta, timeStr(now), false, alert.AlertKey,
		)
		if err != nil {
			return TriggerContinuedActive, fmt.Errorf("trigger refire: %w", err)
		}
		return TriggerRefired, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE alert_state SET severity=%s, message=%s, metadata=%s, last_triggered=%s WHERE alert_key=%s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5)),
		string(alert.Severity), alert.Message, meta, timeStr(now), alert.AlertKey,
	)
	if err != nil {
		return TriggerContinuedActive, fmt.Errorf("trigger continue: %w", err)
	}
	return TriggerContinuedActive, tx.Commit()
}

func (s *SQLStore) Resolve(ctx context.Context, alertKey string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE alert_state SET resolved_at=%s WHERE alert_key=%s AND resolved_at IS NULL`,
		s.ph(1), s.ph(2)), timeStr(now), alertKey)
	if err != nil {
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) ListUnsentActive(ctx context.Context) ([]*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_key, alert_type, severity, message, metadata, first_triggered, last_triggered, resolved_at, notification_sent
		 FROM alert_state WHERE resolved_at IS NULL AND notification_sent = `+trueOrFalse(s.dialect, false))
	if err != nil {
		return nil, fmt.Errorf("list unsent active alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		var a models.Alert
		var meta sql.NullString
		var firstTriggered, lastTriggered string
		var resolvedAt sql.NullString
		var sent any
		var alertType, alertSeverity string
		if err := rows.Scan(&a.AlertKey, &alertType, &alertSeverity, &a.Message, &meta, &firstTriggered, &lastTriggered, &resolvedAt, &sent); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.AlertType = alertType
		a.Severity = models.AlertSeverity(alertSeverity)
		if meta.Valid {
			_ = json.Unmarshal([]byte(meta.String), &a.Metadata)
		}
		if t, err := parseTime(firstTriggered); err == nil {
			a.FirstTriggered = t
		}
		if t, err := parseTime(lastTriggered); err == nil {
			a.LastTriggered = t
		}
		a.ResolvedAt = scanOptTime(resolvedAt)
		switch v := sent.(type) {
		case bool:
			a.NotificationSent = v
		case int64:
			a.NotificationSent = v != 0
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func trueOrFalse(dia dialect, v bool) string {
	if dia == dialectPostgres {
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	if v {
		return "1"
	}
	return "0"
}

func (s *SQLStore) MarkSent(ctx context.Context, alertKey string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE alert_state SET notification_sent=%s WHERE alert_key=%s`, s.ph(1), s.ph(2)),
		true, alertKey)
	if err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- OAuthTokenStore ----

// Upsert preserves the existing refresh token when the incoming one is
// empty, since many providers omit refresh_token on non-initial grants.
func (s *SQLStore) Upsert(ctx context.Context, token *models.OAuthToken) error {
	if token == nil || token.UserID == "" || token.Provider == "" {
		return fmt.Errorf("user id and provider are required")
	}
	scopes, err := marshalJSON(token.Scopes)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert token begin: %w", err)
	}
	defer tx.Rollback()

	var existingRefresh sql.NullString
	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT refresh_token FROM oauth_tokens WHERE user_id=%s AND provider=%s`, s.ph(1), s.ph(2)),
		token.UserID, token.Provider)
	err = row.Scan(&existingRefresh)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("upsert token lookup: %w", err)
	}

	refresh := token.RefreshToken
	if refresh == "" && existingRefresh.Valid {
		refresh = existingRefresh.String
	}

	if err == sql.ErrNoRows {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO oauth_tokens (user_id, provider, access_token, refresh_token, expiry, scopes, provider_account_id)
			 VALUES (%s)`, s.args(7)),
			token.UserID, token.Provider, token.AccessToken, refresh, timeStr(token.Expiry), scopes, token.ProviderAccountID,
		)
	} else {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE oauth_tokens SET access_token=%s, refresh_token=%s, expiry=%s, scopes=%s, provider_account_id=%s WHERE user_id=%s AND provider=%s`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7)),
			token.AccessToken, refresh, timeStr(token.Expiry), scopes, token.ProviderAccountID, token.UserID, token.Provider,
		)
	}
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) GetToken(ctx context.Context, userID, provider string) (*models.OAuthToken, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT user_id, provider, access_token, refresh_token, expiry, scopes, provider_account_id
		 FROM oauth_tokens WHERE user_id=%s AND provider=%s`, s.ph(1), s.ph(2)), userID, provider)
	var t models.OAuthToken
	var expiry, scopes sql.NullString
	if err := row.Scan(&t.UserID, &t.Provider, &t.AccessToken, &t.RefreshToken, &expiry, &scopes, &t.ProviderAccountID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	if expiry.Valid {
		if parsed := scanOptTime(expiry); parsed != nil {
			t.Expiry = *parsed
		}
	}
	if scopes.Valid {
		_ = json.Unmarshal([]byte(scopes.String), &t.Scopes)
	}
	return &t, nil
}

func (s *SQLStore) DeleteToken(ctx context.Context, userID, provider string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM oauth_tokens WHERE user_id=%s AND provider=%s`, s.ph(1), s.ph(2)), userID, provider)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- WebhookEventStore ----

func (s *SQLStore) CreateEvent(ctx context.Context, event *models.WebhookEvent) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	attrs, err := marshalJSON(event.Attributes)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO ha_events (id, event_type, entity_id, old_state, new_state, attributes, processed, notification_sent, received_at)
		 VALUES (%s)`, s.args(9)),
		event.ID, event.EventType, event.EntityID, event.OldState, event.NewState, attrs,
		event.Processed, event.NotificationSent, timeStr(event.ReceivedAt),
	)
	if err != nil {
		return "", fmt.Errorf("create webhook event: %w", err)
	}
	return event.ID, nil
}

func (s *SQLStore) MarkProcessed(ctx context.Context, id string, notificationSent bool) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE ha_events SET processed=%s, notification_sent=%s WHERE id=%s`, s.ph(1), s.ph(2), s.ph(3)),
		true, notificationSent, id)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- ToolUsageStore ----

func (s *SQLStore) CreateUsage(ctx context.Context, usage *models.ToolUsage) error {
	if usage == nil {
		return fmt.Errorf("usage is required")
	}
	if usage.ID == "" {
		usage.ID = uuid.NewString()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO tool_usage (id, user_id, tool_name, parameters, result, error, duration_ms, channel, created_at)
		 VALUES (%s)`, s.args(9)),
		usage.ID, usage.UserID, usage.ToolName, nullStr(usage.Parameters), nullStr(usage.Result),
		nullStr(usage.Error), usage.DurationMs, string(usage.Channel), timeStr(usage.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create tool usage: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM tool_usage WHERE created_at < %s`, s.ph(1)), timeStr(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old tool usage: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
