// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervise runs background tasks whose failure must be
// observed and reported without crashing the host process.
//
// A [Supervisor] holds a reference to every task it schedules until
// the task settles, so no task can leak silently. The completion
// observer runs exactly once per task: normal completion is silent,
// failure (an error return or a panic) is logged and reported through
// the notification collaborator. A failed task is not restarted —
// fail-once is the policy; external restart is the operator's call.
package supervise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vawter.tech/stopper"

	"github.com/streamfleet/streamfleet/lib/notify"
)

// crashNotificationPrefix is the fixed prefix on operator crash
// reports. The task name and cause are appended.
const crashNotificationPrefix = "background task crashed"

// notifyTimeout bounds crash-notification delivery so a slow operator
// channel cannot wedge the observer.
const notifyTimeout = 10 * time.Second

// Supervisor schedules background tasks and observes their terminal
// state. Construct with New; zero value is not usable.
type Supervisor struct {
	base     context.Context
	sctx     *stopper.Context
	notifier notify.Notifier
	logger   *slog.Logger
}

// New creates a Supervisor. Tasks run under contexts derived from
// ctx; cancelling it asks all tasks to stop.
func New(ctx context.Context, notifier notify.Notifier, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		base:     ctx,
		sctx:     stopper.WithContext(ctx),
		notifier: notifier,
		logger:   logger,
	}
}

// Go schedules task to run independently of the caller and attaches
// the completion observer. The observer never panics and never
// escalates: a task failure is terminal for that task instance and is
// surfaced only through the log and the operator channel.
//
// A task that returns context.Canceled after a stop request is a
// normal stop, not a crash.
func (s *Supervisor) Go(name string, task func(context.Context) error) {
	s.sctx.Go(func(sctx *stopper.Context) error {
		taskCtx, cancel := context.WithCancel(s.base)
		defer cancel()
		go func() {
			select {
			case <-sctx.Stopping():
				cancel()
			case <-taskCtx.Done():
			}
		}()

		err := runRecovered(taskCtx, task)
		s.observe(name, err)
		// The failure is already reported; returning nil keeps one
		// task's crash from tearing down the rest.
		return nil
	})
}

// observe handles a task's terminal state exactly once.
func (s *Supervisor) observe(name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		s.logger.Debug("supervised task completed", "task", name)
		return
	}

	s.logger.Error("supervised task failed", "task", name, "error", err)

	notifyCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	message := fmt.Sprintf("%s: %s", crashNotificationPrefix, name)
	if notifyErr := s.notifier.Error(notifyCtx, message, err); notifyErr != nil {
		// Notification delivery is best-effort: log and swallow.
		s.logger.Error("crash notification delivery failed", "task", name, "error", notifyErr)
	}
}

// runRecovered invokes the task, converting a panic into an error so
// the observer sees a single failure instead of a crashed process.
func runRecovered(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}

// Stop asks all supervised tasks to stop, allowing them the grace
// period to finish cleanly.
func (s *Supervisor) Stop(grace time.Duration) {
	s.sctx.Stop(grace)
}

// Wait blocks until every supervised task has settled.
func (s *Supervisor) Wait() error {
	return s.sctx.Wait()
}
