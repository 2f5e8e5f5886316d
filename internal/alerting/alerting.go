// Package alerting implements the trigger/resolve/re-fire state machine for
// system-detected failures (spec §4.5): a check reports a problem by alert
// key, the store dedups repeat reports into one active row, and a
// dispatcher notifies the owner exactly once per trigger-or-refire.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/storage"
)

// Notifier delivers an alert message to whichever users should see it.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert *models.Alert) error
}

// Engine wraps storage.AlertStore with the trigger/resolve API callers use;
// it exists so call sites never touch TriggerOutcome plumbing directly.
type Engine struct {
	store storage.AlertStore
	now   func() time.Time
}

// NewEngine wraps an AlertStore.
func NewEngine(store storage.AlertStore) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Trigger reports a failure for alertKey. It returns true when the caller
// should notify immediately (a brand-new alert or a re-fire after resolve);
// a continued-active repeat returns false, matching spec §4.5's "only
// notify on the transitions, not on every repeated check" rule.
func (e *Engine) Trigger(ctx context.Context, alertKey, alertType string, severity models.AlertSeverity, message string, metadata map[string]any) (bool, error) {
	if alertKey == "" {
		return false, fmt.Errorf("alerting: alert key is required")
	}
	outcome, err := e.store.Trigger(ctx, &models.Alert{
		AlertKey:  alertKey,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
		Metadata:  metadata,
	}, e.now())
	if err != nil {
		return false, fmt.Errorf("trigger alert %s: %w", alertKey, err)
	}
	return outcome.NeedsNotify(), nil
}

// Resolve clears an active alert. Resolving an alert that is already
// resolved, or that never existed, is a no-op (spec §4.5).
func (e *Engine) Resolve(ctx context.Context, alertKey string) error {
	if _, err := e.store.Resolve(ctx, alertKey, e.now()); err != nil {
		return fmt.Errorf("resolve alert %s: %w", alertKey, err)
	}
	return nil
}

// Dispatcher polls for active, unsent alerts and tries each registered
// Notifier in turn (spec §4.5), marking an alert sent if ANY notifier
// reports success. A notifier failing never stops the others from being
// tried, and never stops the next alert from being attempted; the sent
// flag only flips after at least one delivery succeeds, so a pre-delivery
// crash just means the next poll retries.
type Dispatcher struct {
	store     storage.AlertStore
	notifiers []Notifier
	logger    *slog.Logger
	interval  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewDispatcher builds a Dispatcher polling every interval, trying each of
// notifiers (in order) per alert.
func NewDispatcher(store storage.AlertStore, interval time.Duration, logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, notifiers: notifiers, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled or Stop is called.
func (d *Dispatcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.stopped = make(chan struct{})
	d.mu.Unlock()
	defer close(d.stopped)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// Stop cancels a running dispatcher and waits for its poll loop to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	stopped := d.stopped
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (d *Dispatcher) tick(ctx context.Context) {
	alerts, err := d.store.ListUnsentActive(ctx)
	if err != nil {
		d.logger.Error("list unsent alerts", "error", err)
		return
	}
	for _, a := range alerts {
		if !d.notifyAny(ctx, a) {
			continue
		}
		if err := d.store.MarkSent(ctx, a.AlertKey); err != nil {
			d.logger.Error("mark alert sent", "alert_key", a.AlertKey, "error", err)
		}
	}
}

// notifyAny tries every notifier for one alert, logging but not stopping on
// individual failures, and reports whether any of them succeeded.
func (d *Dispatcher) notifyAny(ctx context.Context, a *models.Alert) bool {
	sent := false
	for _, n := range d.notifiers {
		if err := n.NotifyAlert(ctx, a); err != nil {
			d.logger.Error("notify alert", "alert_key", a.AlertKey, "error", err)
			continue
		}
		sent = true
	}
	return sent
}
