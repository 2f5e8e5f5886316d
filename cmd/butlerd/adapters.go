package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noble1911/butler/internal/agent"
	"github.com/noble1911/butler/internal/models"
	"github.com/noble1911/butler/internal/outbound"
	"github.com/noble1911/butler/internal/storage"
)

// registryInvoker adapts agent.ToolRegistry + agent.Dispatcher to
// tasks.ToolInvoker, so the scheduler can run an automation/check task's
// tool call through the same audited dispatch path a conversation turn
// uses (spec §4.4's "automation" and "check" action types).
type registryInvoker struct {
	registry   *agent.ToolRegistry
	dispatcher *agent.Dispatcher
}

func (r registryInvoker) Invoke(ctx context.Context, toolName, userID string, input json.RawMessage) (string, error) {
	tool, ok := r.registry.Get(toolName)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", toolName)
	}
	tools := map[string]agent.Tool{toolName: tool}
	result := r.dispatcher.Execute(ctx, toolName, input, tools, userID, "scheduler")
	return result, nil
}

// taskNotifier adapts outbound.Channel to tasks.Notifier for reminder and
// check-action delivery.
type taskNotifier struct {
	channel *outbound.Channel
}

func (n taskNotifier) Notify(ctx context.Context, userID, category, message string) error {
	_, err := n.channel.SendMessage(ctx, userID, message, category)
	return err
}

// webhookSender adapts outbound.Channel to webhook.Sender. The handler
// already loops over every user with a configured phone number (spec
// §4.7's fan-out); this just drops the delivery-status string.
type webhookSender struct {
	channel *outbound.Channel
}

func (s webhookSender) Send(ctx context.Context, userID, message string) error {
	_, err := s.channel.SendMessage(ctx, userID, message, "webhook")
	return err
}

// alertNotifier adapts outbound.Channel to alerting.Notifier. Alerts carry
// no owning user (spec §4.5 treats them as system-wide), so delivery fans
// out to every user with a configured phone number exactly as webhook
// fan-out does; it reports success if any delivery succeeds.
type alertNotifier struct {
	channel *outbound.Channel
	users   storage.UserStore
}

func (n alertNotifier) NotifyAlert(ctx context.Context, alert *models.Alert) error {
	message := fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.AlertType, alert.Message)

	users, err := n.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var anySucceeded bool
	var lastErr error
	for _, u := range users {
		if u.Phone == "" {
			continue
		}
		if _, err := n.channel.SendMessage(ctx, u.ID, message, "alert"); err != nil {
			lastErr = err
			continue
		}
		anySucceeded = true
	}
	if anySucceeded {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("no eligible recipients")
}
