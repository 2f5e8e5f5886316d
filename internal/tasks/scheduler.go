package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

// cronParser accepts the standard 5-field crontab format; seconds are not
// supported since no spec action needs sub-minute recurrence.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler polls storage.ScheduledTaskStore for due work and runs it
// through an Executor. Multiple Scheduler instances (one per butlerd
// replica) can poll the same table safely: ClaimDue's conditional UPDATE
// serializes at the database, so two pollers never claim the same row.
type Scheduler struct {
	store    storage.ScheduledTaskStore
	exec     *Executor
	logger   *slog.Logger
	interval time.Duration
	lockFor  time.Duration
	batch    int
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the default discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBatch overrides how many due tasks are claimed per tick.
func WithBatch(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

// NewScheduler builds a Scheduler that polls every interval, locking
// claimed rows for lockFor so a crashed worker's tasks become reclaimable.
func NewScheduler(store storage.ScheduledTaskStore, exec *Executor, interval, lockFor time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		exec:     exec,
		logger:   slog.Default(),
		interval: interval,
		lockFor:  lockFor,
		batch:    20,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls until ctx is cancelled or Stop is called. Intended to be
// launched in its own goroutine from cmd/butlerd.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.mu.Unlock()
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop cancels a running scheduler and waits for its poll loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due, err := s.store.ClaimDue(ctx, now, s.lockFor, s.batch)
	if err != nil {
		s.logger.Error("claim due tasks", "error", err)
		return
	}
	for _, task := range due {
		s.runOne(ctx, task, now)
	}
}

func (s *Scheduler) runOne(ctx context.Context, task *models.ScheduledTask, now time.Time) {
	logger := s.logger.With("task_id", task.ID, "owner", task.OwnerUserID, "action", task.Action.Type)

	err := s.exec.Run(ctx, task)
	if err != nil {
		logger.Error("task execution failed", "error", err)
	} else {
		logger.Info("task executed")
	}

	task.LastRun = &now
	next, nextErr := computeNextRun(task, now)
	if nextErr != nil {
		logger.Error("compute next run", "error", nextErr)
		task.Enabled = false
	} else {
		task.NextRun = next
		if next == nil {
			task.Enabled = false
		}
	}
	task.LockedUntil = nil

	if updateErr := s.store.UpdateTask(ctx, task); updateErr != nil {
		logger.Error("persist task run", "error", updateErr)
	}
}
