// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify delivers operational notifications to the operator
// channel. Delivery is best-effort by design: callers log a failed
// notification and move on, they never let it abort startup,
// supervision, or shutdown.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streamfleet/streamfleet/lib/botapi"
)

// Notifier is the operator-channel collaborator. Both operations
// return an error so callers can log delivery failures, but callers
// must treat errors as non-fatal.
type Notifier interface {
	// Info delivers an informational message.
	Info(ctx context.Context, message string) error
	// Error delivers an error report. The cause is appended to the
	// message.
	Error(ctx context.Context, message string, cause error) error
}

// ChatNotifier posts notifications to an operator chat through a bot
// client. The client must be started before the first notification;
// in the orchestrator this is always the primary client.
type ChatNotifier struct {
	client *botapi.Client
	chatID int64
	logger *slog.Logger
}

// NewChatNotifier creates a notifier posting to chatID via client.
func NewChatNotifier(client *botapi.Client, chatID int64, logger *slog.Logger) *ChatNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatNotifier{client: client, chatID: chatID, logger: logger}
}

// Info implements Notifier.
func (n *ChatNotifier) Info(ctx context.Context, message string) error {
	return n.client.SendMessage(ctx, n.chatID, message)
}

// Error implements Notifier.
func (n *ChatNotifier) Error(ctx context.Context, message string, cause error) error {
	text := message
	if cause != nil {
		text = fmt.Sprintf("%s: %v", message, cause)
	}
	return n.client.SendMessage(ctx, n.chatID, text)
}

// LogNotifier writes notifications to the log only. Used when no
// operator chat is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Info implements Notifier.
func (n *LogNotifier) Info(ctx context.Context, message string) error {
	n.logger.Info("operator notification", "message", message)
	return nil
}

// Error implements Notifier.
func (n *LogNotifier) Error(ctx context.Context, message string, cause error) error {
	n.logger.Error("operator notification", "message", message, "cause", cause)
	return nil
}
