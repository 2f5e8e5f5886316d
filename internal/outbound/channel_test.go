package outbound

import (
	"context"
	"testing"
	"time"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

type fakeTransport struct {
	calls  []string
	status TransportStatus
	err    error
}

func (f *fakeTransport) Send(ctx context.Context, phone, message string) (TransportStatus, error) {
	f.calls = append(f.calls, phone+":"+message)
	if f.err != nil {
		return "", f.err
	}
	return f.status, nil
}

func newUser(t *testing.T, store storage.Store, opts func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{
		ID:     "u1",
		Phone:  "+15551234567",
		Notify: models.NotificationPrefs{Enabled: true},
	}
	if opts != nil {
		opts(u)
	}
	if err := store.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestSendMessageSkipsWithoutPhone(t *testing.T) {
	store := storage.NewMemoryStore()
	newUser(t, store, func(u *models.User) { u.Phone = "" })

	transport := &fakeTransport{status: StatusSent}
	ch := NewChannel(store.Users, transport, 10, time.Hour)

	got, err := ch.SendMessage(context.Background(), "u1", "hi", "general")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "skipped: user has no phone configured" {
		t.Fatalf("unexpected result: %q", got)
	}
	if len(transport.calls) != 0 {
		t.Fatalf("transport should not have been called")
	}
}

func TestSendMessageSkipsWhenDisabled(t *testing.T) {
	store := storage.NewMemoryStore()
	newUser(t, store, func(u *models.User) { u.Notify.Enabled = false })

	ch := NewChannel(store.Users, &fakeTransport{status: StatusSent}, 10, time.Hour)
	got, _ := ch.SendMessage(context.Background(), "u1", "hi", "general")
	if got != "skipped: notifications disabled for user" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestSendMessageSkipsUnopenedCategory(t *testing.T) {
	store := storage.NewMemoryStore()
	newUser(t, store, func(u *models.User) { u.Notify.Categories = []string{"alerts"} })

	ch := NewChannel(store.Users, &fakeTransport{status: StatusSent}, 10, time.Hour)
	got, _ := ch.SendMessage(context.Background(), "u1", "hi", "reminders")
	if got != `skipped: category "reminders" not opted in` {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestSendMessageRespectsQuietHoursWrappingMidnight(t *testing.T) {
	store := storage.NewMemoryStore()
	newUser(t, store, func(u *models.User) {
		u.Notify.QuietStart = "22:00"
		u.Notify.QuietEnd = "07:00"
		u.Notify.Timezone = "UTC"
	})

	ch := NewChannel(store.Users, &fakeTransport{status: StatusSent}, 10, time.Hour)
	ch.now = func() time.Time { return time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC) }

	got, _ := ch.SendMessage(context.Background(), "u1", "hi", "general")
	if got != "skipped: within quiet hours" {
		t.Fatalf("expected quiet hours skip, got %q", got)
	}

	ch.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	got, err := ch.SendMessage(context.Background(), "u1", "hi", "general")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != string(StatusSent) {
		t.Fatalf("expected send outside quiet hours, got %q", got)
	}
}

func TestSendMessageEnforcesRateLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	newUser(t, store, nil)

	transport := &fakeTransport{status: StatusSent}
	ch := NewChannel(store.Users, transport, 2, time.Hour)

	for i := 0; i < 2; i++ {
		got, err := ch.SendMessage(context.Background(), "u1", "hi", "general")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != string(StatusSent) {
			t.Fatalf("expected sent, got %q", got)
		}
	}

	got, err := ch.SendMessage(context.Background(), "u1", "hi", "general")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "skipped: rate limit exceeded" {
		t.Fatalf("expected rate limit skip, got %q", got)
	}
}

func TestSendMessageSurfacesQueuedStatus(t *testing.T) {
	store := storage.NewMemoryStore()
	newUser(t, store, nil)

	ch := NewChannel(store.Users, &fakeTransport{status: StatusQueued}, 10, time.Hour)
	got, err := ch.SendMessage(context.Background(), "u1", "hi", "general")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != string(StatusQueued) {
		t.Fatalf("expected queued, got %q", got)
	}
}

func TestRateLimiterPrunesOldEntries(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }
	if !rl.Allow("k") {
		t.Fatalf("expected first hit allowed")
	}
	if rl.Allow("k") {
		t.Fatalf("expected second hit within window to be denied")
	}
	rl.now = func() time.Time { return base.Add(2 * time.Minute) }
	if !rl.Allow("k") {
		t.Fatalf("expected hit allowed after window elapsed")
	}
}
