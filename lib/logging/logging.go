// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the daemon's structured logger. Entries are
// JSON, written simultaneously to a durable file sink and to stderr
// so operators can tail the live stream while the file survives
// restarts.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Options configures New.
type Options struct {
	// FilePath is the durable sink. The file is opened in append
	// mode and created if missing. Empty disables the file sink;
	// entries then go to stderr only.
	FilePath string

	// Level is the minimum level name: "debug", "info", "warn",
	// "error". Unknown values fall back to "info".
	Level string
}

// New constructs the logger. The returned closer releases the file
// sink; call it once after the last log entry has been written. The
// closer is non-nil even when no file sink is configured.
func New(opts Options) (*slog.Logger, func() error, error) {
	var sink io.Writer = os.Stderr
	closer := func() error { return nil }

	if opts.FilePath != "" {
		file, err := os.OpenFile(opts.FilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: opening log file %s: %w", opts.FilePath, err)
		}
		sink = io.MultiWriter(os.Stderr, file)
		closer = file.Close
	}

	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})
	return slog.New(handler), closer, nil
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to
// slog.LevelInfo.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
