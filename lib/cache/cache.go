// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/streamfleet/streamfleet/lib/codec"
	"github.com/streamfleet/streamfleet/lib/storage"
)

// debounceInterval coalesces bursts of database file events into one
// refresh. SQLite in WAL mode touches the -wal file on every commit.
const debounceInterval = 250 * time.Millisecond

// Entry is one cached file-metadata record.
type Entry struct {
	FileID      string
	Name        string
	Size        int64
	Digest      string
	AccessCount int64
}

// Meta is the decoded content of a record's CBOR blob. Fields beyond
// these are ignored for forward compatibility.
type Meta struct {
	MimeType string `cbor:"mime_type"`
	ChatID   int64  `cbor:"chat_id"`
	MsgID    int64  `cbor:"msg_id"`
}

// Config configures a Manager.
type Config struct {
	// Store is the backing metadata store. Required.
	Store *storage.Store

	// RefreshInterval is the periodic reload cadence. Defaults to
	// 5 minutes if zero.
	RefreshInterval time.Duration

	// HotLimit caps the number of in-memory entries. Defaults to
	// 1024 if zero.
	HotLimit int

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Manager keeps the hot set of file metadata in memory so the stream
// dispatcher never blocks on SQLite for popular files. Run is the
// long-running refresher the orchestrator supervises; lookups are safe
// from any goroutine.
type Manager struct {
	store    *storage.Store
	interval time.Duration
	limit    int
	logger   *slog.Logger

	mu          sync.RWMutex
	entries     map[string]Entry
	refreshes   int64
	lastRefresh time.Time
}

// Stats is a point-in-time snapshot for the status endpoint.
type Stats struct {
	Entries     int       `json:"entries"`
	Refreshes   int64     `json:"refreshes"`
	LastRefresh time.Time `json:"last_refresh"`
}

// New creates a Manager. No refresh happens until Run is scheduled.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache: Store is required")
	}

	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	limit := cfg.HotLimit
	if limit <= 0 {
		limit = 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:    cfg.Store,
		interval: interval,
		limit:    limit,
		logger:   logger,
		entries:  make(map[string]Entry),
	}, nil
}

// Lookup returns the cached entry for a file identifier.
func (m *Manager) Lookup(fileID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[fileID]
	return entry, ok
}

// Stats returns a snapshot of the cache state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Entries:     len(m.entries),
		Refreshes:   m.refreshes,
		LastRefresh: m.lastRefresh,
	}
}

// StoreEntry encodes meta to a deterministic CBOR blob, digests it,
// persists the record, and installs it in the hot set.
func (m *Manager) StoreEntry(ctx context.Context, fileID, name string, size int64, meta Meta) error {
	blob, err := codec.Marshal(meta)
	if err != nil {
		return fmt.Errorf("cache: encoding meta for %s: %w", fileID, err)
	}
	digest := DigestMeta(blob)

	record := storage.FileRecord{
		FileID:    fileID,
		Name:      name,
		Size:      size,
		Digest:    digest,
		Meta:      blob,
		UpdatedAt: time.Now(),
	}
	if err := m.store.UpsertFile(ctx, record); err != nil {
		return fmt.Errorf("cache: persisting %s: %w", fileID, err)
	}

	m.mu.Lock()
	m.entries[fileID] = Entry{
		FileID: fileID,
		Name:   name,
		Size:   size,
		Digest: digest,
	}
	m.mu.Unlock()
	return nil
}

// Run is the supervised refresher loop. It reloads the hot set on the
// configured interval and additionally wakes (debounced) whenever the
// database file changes on disk, so external writers surface quickly.
// Returns when ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.refresh(ctx); err != nil {
		// The first load must succeed: a refresher that can't read
		// its store at startup is a crash, not a degradation.
		return fmt.Errorf("cache: initial refresh: %w", err)
	}

	// Watch the store's directory; a watch on the file itself breaks
	// when SQLite replaces it during checkpointing.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cache: creating watcher: %w", err)
	}
	defer watcher.Close()

	databaseDir := filepath.Dir(m.store.Path())
	if err := watcher.Add(databaseDir); err != nil {
		return fmt.Errorf("cache: watching %s: %w", databaseDir, err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	wake := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := m.refresh(ctx); err != nil {
				m.logger.Error("cache refresh failed", "error", err)
			}

		case <-wake:
			if err := m.refresh(ctx); err != nil {
				m.logger.Error("cache refresh failed", "error", err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !m.isDatabaseFile(event.Name) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, func() {
				select {
				case wake <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				m.logger.Error("cache watcher error", "error", err)
			}
		}
	}
}

// isDatabaseFile reports whether an fsnotify event concerns the store
// (the database file or its WAL sidecars).
func (m *Manager) isDatabaseFile(name string) bool {
	base := filepath.Base(m.store.Path())
	eventBase := filepath.Base(name)
	return eventBase == base || strings.HasPrefix(eventBase, base+"-")
}

// refresh replaces the hot set with the store's current top entries.
// Records whose stored digest no longer matches their blob are kept
// but flagged in the log; a digest mismatch means the row was written
// by something that bypassed the cache layer.
func (m *Manager) refresh(ctx context.Context) error {
	records, err := m.store.HotFiles(ctx, m.limit)
	if err != nil {
		return err
	}

	entries := make(map[string]Entry, len(records))
	for _, record := range records {
		computed := DigestMeta(record.Meta)
		if record.Digest != "" && record.Digest != computed {
			m.logger.Warn("cache entry digest mismatch",
				"file_id", record.FileID,
				"stored", record.Digest,
				"computed", computed,
			)
		}
		entries[record.FileID] = Entry{
			FileID:      record.FileID,
			Name:        record.Name,
			Size:        record.Size,
			Digest:      computed,
			AccessCount: record.AccessCount,
		}
	}

	m.mu.Lock()
	m.entries = entries
	m.refreshes++
	m.lastRefresh = time.Now()
	refreshes := m.refreshes
	m.mu.Unlock()

	m.logger.Debug("cache refreshed", "entries", len(entries), "refreshes", refreshes)
	return nil
}
