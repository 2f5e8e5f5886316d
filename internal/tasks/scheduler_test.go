package tasks

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

type fakeInvoker struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, toolName, userID string, input json.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolName)
	return "ok", nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, category, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func TestSchedulerRunsDueOneShotReminder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	due := time.Now().UTC().Add(-time.Minute)
	task := &models.ScheduledTask{
		ID:          uuid.NewString(),
		OwnerUserID: "user-1",
		Name:        "take out trash",
		Action:      models.ActionPayload{Type: models.ActionReminder, Message: "take out the trash"},
		Enabled:     true,
		NextRun:     &due,
	}
	if err := store.Tasks.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	notifier := &fakeNotifier{}
	exec := NewExecutor(&fakeInvoker{}, notifier)
	sched := NewScheduler(store.Tasks, exec, time.Minute, time.Minute)

	sched.tick(ctx)

	notifier.mu.Lock()
	got := len(notifier.messages)
	notifier.mu.Unlock()
	if got != 1 {
		t.Fatalf("expected 1 notification, got %d", got)
	}

	reloaded, err := store.Tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if reloaded.Enabled {
		t.Fatalf("one-shot task should be disabled after running")
	}
	if reloaded.NextRun != nil {
		t.Fatalf("one-shot task should have nil NextRun after running")
	}
}

func TestSchedulerRecurringAdvancesNextRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	due := time.Now().UTC().Add(-time.Minute)
	task := &models.ScheduledTask{
		ID:          uuid.NewString(),
		OwnerUserID: "user-1",
		Name:        "check weather",
		Cron:        "*/5 * * * *",
		Action:      models.ActionPayload{Type: models.ActionAutomation, Tool: "weather.check", Params: map[string]any{}},
		Enabled:     true,
		NextRun:     &due,
	}
	if err := store.Tasks.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	invoker := &fakeInvoker{}
	exec := NewExecutor(invoker, &fakeNotifier{})
	sched := NewScheduler(store.Tasks, exec, time.Minute, time.Minute)

	sched.tick(ctx)

	invoker.mu.Lock()
	calls := len(invoker.calls)
	invoker.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected 1 tool invocation, got %d", calls)
	}

	reloaded, err := store.Tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !reloaded.Enabled {
		t.Fatalf("recurring task should remain enabled")
	}
	if reloaded.NextRun == nil || !reloaded.NextRun.After(due) {
		t.Fatalf("recurring task should have an advanced NextRun, got %v", reloaded.NextRun)
	}
}

func TestSchedulerDoesNotClaimFutureTasks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	future := time.Now().UTC().Add(time.Hour)
	task := &models.ScheduledTask{
		ID:          uuid.NewString(),
		OwnerUserID: "user-1",
		Name:        "future reminder",
		Action:      models.ActionPayload{Type: models.ActionReminder, Message: "not yet"},
		Enabled:     true,
		NextRun:     &future,
	}
	if err := store.Tasks.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	notifier := &fakeNotifier{}
	sched := NewScheduler(store.Tasks, NewExecutor(&fakeInvoker{}, notifier), time.Minute, time.Minute)
	sched.tick(ctx)

	notifier.mu.Lock()
	got := len(notifier.messages)
	notifier.mu.Unlock()
	if got != 0 {
		t.Fatalf("expected no notifications for a future task, got %d", got)
	}
}
