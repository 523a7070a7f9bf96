// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// streamfleetd is the stream-serving bot daemon. It starts the primary
// bot client (and any configured secondaries), the metadata cache
// refresher, and the HTTP status server, then serves until SIGINT or
// SIGTERM triggers the coordinated shutdown sequence.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/streamfleet/streamfleet/lib/botapi"
	"github.com/streamfleet/streamfleet/lib/cache"
	"github.com/streamfleet/streamfleet/lib/config"
	"github.com/streamfleet/streamfleet/lib/logging"
	"github.com/streamfleet/streamfleet/lib/notify"
	"github.com/streamfleet/streamfleet/lib/orchestrator"
	"github.com/streamfleet/streamfleet/lib/pool"
	"github.com/streamfleet/streamfleet/lib/state"
	"github.com/streamfleet/streamfleet/lib/storage"
	"github.com/streamfleet/streamfleet/lib/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var statePath string

	flagSet := pflag.NewFlagSet("streamfleetd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the streamfleet.yaml config file (default: $STREAMFLEET_CONFIG)")
	flagSet.StringVar(&statePath, "state-file", "", "write a runtime state snapshot to this path while serving")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{
		FilePath: cfg.Logging.FilePath,
		Level:    cfg.Logging.Level,
	})
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	// Cancel with the signal name as the cause so the shutdown
	// announcement says what triggered it.
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		sig := <-signals
		cancel(fmt.Errorf("received signal %s", sig))
	}()

	store, err := storage.Open(storage.Config{
		Path:     cfg.Storage.Path,
		PoolSize: cfg.Storage.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	// The orchestrator closes the store during shutdown; this covers
	// the startup error paths before Run takes over.
	defer store.Close()

	clientPool, err := pool.New(pool.Config{
		Clients: cfg.Clients,
		Factory: func(id int, clientCfg config.ClientConfig) (pool.BotClient, error) {
			return botapi.NewClient(botapi.ClientConfig{
				BaseURL:  cfg.APIBaseURL,
				APIID:    clientCfg.APIID,
				APIHash:  clientCfg.APIHash,
				BotToken: clientCfg.BotToken,
				Logger:   logger.With("client_id", id),
			})
		},
		StartTimeout: cfg.Timeouts.ClientStart.Std(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	cacheManager, err := cache.New(cache.Config{
		Store:           store,
		RefreshInterval: cfg.Cache.RefreshInterval.Std(),
		HotLimit:        cfg.Cache.HotLimit,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	tasks := []orchestrator.Task{
		{Name: "cache refresher", Run: cacheManager.Run},
	}
	if cfg.Web.Address != "" {
		server := web.NewServer(web.ServerConfig{
			Address: cfg.Web.Address,
			Handler: web.NewHandler(clientPool, cacheManager),
			Logger:  logger,
		})
		tasks = append(tasks, orchestrator.Task{Name: "status server", Run: server.Serve})
	}

	var stateWriter *state.Writer
	if statePath != "" {
		stateWriter = state.NewWriter(statePath)
	}

	orc, err := orchestrator.New(orchestrator.Config{
		Pool:  clientPool,
		Store: store,
		NewNotifier: func(primary *pool.Record) notify.Notifier {
			client, ok := primary.Client.(*botapi.Client)
			if cfg.OperatorChatID == 0 || !ok {
				return notify.NewLogNotifier(logger)
			}
			return notify.NewChatNotifier(client, cfg.OperatorChatID, logger)
		},
		Tasks:       tasks,
		State:       stateWriter,
		StopTimeout: cfg.Timeouts.ClientStop.Std(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	logger.Info("streamfleetd starting", "configured_clients", len(cfg.Clients))
	return orc.Run(ctx)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `streamfleetd — multi-client stream-serving bot daemon.

Reads its configuration from the file named by --config, or from the
path in the STREAMFLEET_CONFIG environment variable if the flag is
unset. The primary client (id 0) must start or the daemon exits;
secondary clients are best-effort and only widen capacity.

Usage:
  streamfleetd [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
