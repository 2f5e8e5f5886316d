package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

func TestEngineTriggerRefireContinuedActive(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	engine := NewEngine(store.Alerts)

	notify, err := engine.Trigger(ctx, "disk.full", "disk", models.SeverityCritical, "disk at 95%", nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !notify {
		t.Fatalf("first trigger should notify")
	}

	notify, err = engine.Trigger(ctx, "disk.full", "disk", models.SeverityCritical, "disk at 96%", nil)
	if err != nil {
		t.Fatalf("trigger again: %v", err)
	}
	if notify {
		t.Fatalf("continued-active trigger should not notify")
	}

	if err := engine.Resolve(ctx, "disk.full"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	notify, err = engine.Trigger(ctx, "disk.full", "disk", models.SeverityCritical, "disk at 97%", nil)
	if err != nil {
		t.Fatalf("re-trigger after resolve: %v", err)
	}
	if !notify {
		t.Fatalf("re-fire after resolve should notify")
	}
}

func TestEngineResolveIsNoopWhenAlreadyResolved(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	engine := NewEngine(store.Alerts)

	if _, err := engine.Trigger(ctx, "cpu.hot", "cpu", models.SeverityWarning, "cpu at 90%", nil); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := engine.Resolve(ctx, "cpu.hot"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := engine.Resolve(ctx, "cpu.hot"); err != nil {
		t.Fatalf("resolve already-resolved: %v", err)
	}
	if err := engine.Resolve(ctx, "never.existed"); err != nil {
		t.Fatalf("resolve unknown key should be a no-op, got error: %v", err)
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingNotifier) NotifyAlert(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, alert.AlertKey)
	return nil
}

func TestDispatcherMarksSentAfterNotify(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	engine := NewEngine(store.Alerts)
	if _, err := engine.Trigger(ctx, "mem.low", "memory", models.SeverityWarning, "low memory", nil); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	notifier := &recordingNotifier{}
	d := NewDispatcher(store.Alerts, time.Minute, nil, notifier)
	d.tick(ctx)

	notifier.mu.Lock()
	got := len(notifier.keys)
	notifier.mu.Unlock()
	if got != 1 {
		t.Fatalf("expected 1 notification, got %d", got)
	}

	// Second tick must not re-notify: MarkSent should have flipped the flag.
	d.tick(ctx)
	notifier.mu.Lock()
	got = len(notifier.keys)
	notifier.mu.Unlock()
	if got != 1 {
		t.Fatalf("expected no re-notification on second tick, got %d total", got)
	}
}

type failingNotifier struct{}

func (failingNotifier) NotifyAlert(ctx context.Context, alert *models.Alert) error {
	return context.DeadlineExceeded
}

func TestDispatcherMarksSentIfAnyNotifierSucceeds(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	engine := NewEngine(store.Alerts)
	if _, err := engine.Trigger(ctx, "net.down", "network", models.SeverityCritical, "network unreachable", nil); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	ok := &recordingNotifier{}
	d := NewDispatcher(store.Alerts, time.Minute, nil, failingNotifier{}, ok)
	d.tick(ctx)

	alerts, err := store.Alerts.ListUnsentActive(ctx)
	if err != nil {
		t.Fatalf("list unsent: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected alert marked sent once one notifier succeeded, got %d still unsent", len(alerts))
	}
}
