// Package tasks implements the background scheduler that claims due
// ScheduledTask rows and runs their action payload (spec §4.4).
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noble1911/butler/internal/models"
)

// ToolInvoker executes a registered tool by name, the same contract
// internal/agent.ToolRegistry exposes - kept as a narrow interface here so
// this package doesn't import internal/agent.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolName string, userID string, input json.RawMessage) (string, error)
}

// Notifier delivers a reminder/check message to its owning user through
// whatever channel internal/outbound decides is eligible.
type Notifier interface {
	Notify(ctx context.Context, userID, category, message string) error
}

// Executor runs one ScheduledTask's action payload to completion.
type Executor struct {
	Tools   ToolInvoker
	Notify  Notifier
}

// NewExecutor wires a ToolInvoker and Notifier into a ready Executor.
func NewExecutor(tools ToolInvoker, notify Notifier) *Executor {
	return &Executor{Tools: tools, Notify: notify}
}

// Run dispatches task.Action by type (spec §3's tagged ActionPayload union).
func (e *Executor) Run(ctx context.Context, task *models.ScheduledTask) error {
	switch task.Action.Type {
	case models.ActionReminder:
		return e.runReminder(ctx, task)
	case models.ActionAutomation:
		return e.runAutomation(ctx, task)
	case models.ActionCheck:
		return e.runCheck(ctx, task)
	default:
		return fmt.Errorf("tasks: unknown action type %q for task %s", task.Action.Type, task.ID)
	}
}

func (e *Executor) runReminder(ctx context.Context, task *models.ScheduledTask) error {
	if e.Notify == nil {
		return fmt.Errorf("tasks: no notifier configured for reminder %s", task.ID)
	}
	category := task.Action.Category
	if category == "" {
		category = "reminder"
	}
	return e.Notify.Notify(ctx, task.OwnerUserID, category, task.Action.Message)
}

func (e *Executor) runAutomation(ctx context.Context, task *models.ScheduledTask) error {
	if e.Tools == nil {
		return fmt.Errorf("tasks: no tool invoker configured for automation %s", task.ID)
	}
	input, err := json.Marshal(task.Action.Params)
	if err != nil {
		return fmt.Errorf("marshal automation params: %w", err)
	}
	_, err = e.Tools.Invoke(ctx, task.Action.Tool, task.OwnerUserID, input)
	return err
}

// runCheck invokes a tool and, depending on notify_on, relays a short
// summary of the result to the user - the "periodic check, notify only on
// anomaly" shape spec §3's ActionPayload.NotifyOn names.
func (e *Executor) runCheck(ctx context.Context, task *models.ScheduledTask) error {
	if e.Tools == nil {
		return fmt.Errorf("tasks: no tool invoker configured for check %s", task.ID)
	}
	input, err := json.Marshal(task.Action.Params)
	if err != nil {
		return fmt.Errorf("marshal check params: %w", err)
	}
	result, err := e.Tools.Invoke(ctx, task.Action.Tool, task.OwnerUserID, input)
	if err != nil {
		if task.Action.NotifyOn == "always" || task.Action.NotifyOn == "critical" {
			_ = e.notifyIfConfigured(ctx, task, fmt.Sprintf("check %q failed: %v", task.Name, err))
		}
		return err
	}
	if task.Action.NotifyOn == "always" {
		return e.notifyIfConfigured(ctx, task, result)
	}
	return nil
}

func (e *Executor) notifyIfConfigured(ctx context.Context, task *models.ScheduledTask, message string) error {
	if e.Notify == nil {
		return nil
	}
	return e.Notify.Notify(ctx, task.OwnerUserID, "check", message)
}

// computeNextRun advances a recurring task's NextRun using its cron
// expression, or returns nil for a one-shot task that already fired.
func computeNextRun(task *models.ScheduledTask, after time.Time) (*time.Time, error) {
	if task.OneShot() {
		return nil, nil
	}
	sched, err := cronParser.Parse(task.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", task.Cron, err)
	}
	next := sched.Next(after)
	return &next, nil
}
