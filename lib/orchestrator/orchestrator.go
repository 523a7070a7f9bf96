// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator ties the daemon together: it starts the client
// pool, schedules the supervised background tasks, and owns the
// shutdown sequence.
//
// Shutdown runs at most once no matter how many times it is triggered,
// and it always runs to completion: a failure in one step is logged
// and reported, never allowed to abort the steps after it. The client
// stop order is fixed — the primary client settles first because the
// operator channel rides on it, then the secondaries stop concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamfleet/streamfleet/lib/notify"
	"github.com/streamfleet/streamfleet/lib/pool"
	"github.com/streamfleet/streamfleet/lib/state"
	"github.com/streamfleet/streamfleet/lib/storage"
	"github.com/streamfleet/streamfleet/lib/supervise"
)

// notifyTimeout bounds a single operator-notification attempt during
// startup and shutdown.
const notifyTimeout = 10 * time.Second

// Task is a named background task that runs under supervision for the
// life of the daemon. Run should return promptly once its context is
// cancelled.
type Task struct {
	Name string
	Run  func(context.Context) error
}

// Config configures an Orchestrator.
type Config struct {
	// Pool is the client pool to start and stop. Required.
	Pool *pool.Pool

	// Store is the metadata store closed during shutdown. Optional.
	Store *storage.Store

	// NewNotifier builds the operator notifier once the primary
	// client is up; the operator channel is delivered through that
	// client, so it cannot exist earlier. If nil, notifications go to
	// the log only.
	NewNotifier func(primary *pool.Record) notify.Notifier

	// Tasks are scheduled under supervision after the pool starts.
	Tasks []Task

	// State, if set, is written after startup and removed during
	// shutdown.
	State *state.Writer

	// StopTimeout bounds one client stop attempt and the grace period
	// for supervised tasks. Defaults to 15 seconds if zero.
	StopTimeout time.Duration

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Orchestrator runs the daemon lifecycle. Construct with New; zero
// value is not usable.
type Orchestrator struct {
	pool        *pool.Pool
	store       *storage.Store
	newNotifier func(primary *pool.Record) notify.Notifier
	tasks       []Task
	state       *state.Writer
	stopTimeout time.Duration
	logger      *slog.Logger

	// shuttingDown makes the shutdown sequence run at most once.
	shuttingDown atomic.Bool

	mu         sync.Mutex
	notifier   notify.Notifier
	supervisor *supervise.Supervisor
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("orchestrator: Pool is required")
	}

	stopTimeout := cfg.StopTimeout
	if stopTimeout == 0 {
		stopTimeout = 15 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	newNotifier := cfg.NewNotifier
	if newNotifier == nil {
		newNotifier = func(*pool.Record) notify.Notifier {
			return notify.NewLogNotifier(logger)
		}
	}

	return &Orchestrator{
		pool:        cfg.Pool,
		store:       cfg.Store,
		newNotifier: newNotifier,
		tasks:       cfg.Tasks,
		state:       cfg.State,
		stopTimeout: stopTimeout,
		logger:      logger,
	}, nil
}

// Run starts the pool and the supervised tasks, then blocks until ctx
// is cancelled and runs the shutdown sequence. A primary client
// failure is returned immediately — nothing else has started at that
// point and there is no operator channel to report through.
func (o *Orchestrator) Run(ctx context.Context) error {
	primary, err := o.pool.StartPrimary(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	o.pool.StartSecondaries(ctx)

	notifier := o.newNotifier(primary)
	supervisor := supervise.New(ctx, notifier, o.logger)
	o.mu.Lock()
	o.notifier = notifier
	o.supervisor = supervisor
	o.mu.Unlock()

	for _, task := range o.tasks {
		supervisor.Go(task.Name, task.Run)
	}

	if o.state != nil {
		if err := o.state.Write(o.pool); err != nil {
			o.logger.Error("failed to write state snapshot", "error", err)
		}
	}

	o.notifyInfo(fmt.Sprintf("streamfleet started with %d client(s)", o.pool.Len()))
	o.logger.Info("startup complete", "clients", o.pool.Len())

	<-ctx.Done()
	o.Shutdown(shutdownReason(ctx))
	return nil
}

// shutdownReason names the cancellation cause for the shutdown
// announcement. The signal handler in cmd cancels with the signal name
// as the cause; a bare cancellation has nothing more to report.
func shutdownReason(ctx context.Context) string {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return "context cancelled"
	}
	return cause.Error()
}

// Shutdown runs the shutdown sequence once; later calls return
// immediately. The sequence is: announce, stop supervised tasks, close
// the store, stop the primary client, stop the secondaries
// concurrently, remove the state snapshot. Failures in individual
// steps are logged and reported but never stop the sequence.
func (o *Orchestrator) Shutdown(reason string) {
	if !o.shuttingDown.CompareAndSwap(false, true) {
		o.logger.Info("shutdown already in progress", "reason", reason)
		return
	}

	o.logger.Info("shutting down", "reason", reason)
	o.notifyInfo(fmt.Sprintf("streamfleet shutting down: %s", reason))

	// Supervised tasks go first: some of them read the store, which
	// closes in the next step.
	o.mu.Lock()
	supervisor := o.supervisor
	o.mu.Unlock()
	if supervisor != nil {
		supervisor.Stop(o.stopTimeout)
		if err := supervisor.Wait(); err != nil {
			o.logger.Error("supervised tasks did not settle cleanly", "error", err)
		}
	}

	if o.store != nil {
		if err := o.store.Close(); err != nil {
			o.logger.Error("failed to close store", "error", err)
		}
	}

	// The primary settles before the fan-out: the operator channel
	// rides on it, so its stop must not race the report of a
	// secondary's stop failure.
	if primary := o.pool.Primary(); primary != nil {
		o.stopClient(primary)
	}

	var wg sync.WaitGroup
	for _, record := range o.pool.Secondaries() {
		wg.Add(1)
		go func(record *pool.Record) {
			defer wg.Done()
			o.stopClient(record)
		}(record)
	}
	wg.Wait()

	if o.state != nil {
		if err := o.state.Remove(); err != nil {
			o.logger.Error("failed to remove state snapshot", "error", err)
		}
	}

	o.logger.Info("shutdown complete")
}

// stopClient stops one client under the configured timeout. A failure
// is logged and reported to the operator; it never propagates.
func (o *Orchestrator) stopClient(record *pool.Record) {
	stopCtx, cancel := context.WithTimeout(context.Background(), o.stopTimeout)
	defer cancel()

	if err := record.Client.Stop(stopCtx); err != nil {
		o.logger.Error("failed to stop client", "client_id", record.ID, "error", err)
		o.notifyError(fmt.Sprintf("failed to stop client %d", record.ID), err)
		return
	}
	o.logger.Info("client stopped", "client_id", record.ID)
}

// notifyInfo delivers an informational notification, best effort. The
// notifier exists only once the primary client has started; before
// that the message goes to the log alone.
func (o *Orchestrator) notifyInfo(message string) {
	o.mu.Lock()
	notifier := o.notifier
	o.mu.Unlock()
	if notifier == nil {
		o.logger.Info("operator notification skipped, no notifier", "message", message)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := notifier.Info(ctx, message); err != nil {
		o.logger.Error("notification delivery failed", "message", message, "error", err)
	}
}

// notifyError delivers an error notification, best effort.
func (o *Orchestrator) notifyError(message string, cause error) {
	o.mu.Lock()
	notifier := o.notifier
	o.mu.Unlock()
	if notifier == nil {
		o.logger.Error("operator notification skipped, no notifier", "message", message, "cause", cause)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := notifier.Error(ctx, message, cause); err != nil {
		o.logger.Error("notification delivery failed", "message", message, "error", err)
	}
}
