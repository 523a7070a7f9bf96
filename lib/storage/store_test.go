// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package storage_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/streamfleet/streamfleet/lib/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(storage.Config{
		Path:     filepath.Join(t.TempDir(), "meta.db"),
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertAndHotFiles(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record := storage.FileRecord{
			FileID:      fmt.Sprintf("file-%d", i),
			Name:        fmt.Sprintf("clip-%d.mkv", i),
			Size:        int64(i * 1000),
			Digest:      "d",
			Meta:        []byte{0xa0},
			AccessCount: int64(i),
			UpdatedAt:   time.Now(),
		}
		if err := store.UpsertFile(ctx, record); err != nil {
			t.Fatalf("UpsertFile: %v", err)
		}
	}

	hot, err := store.HotFiles(ctx, 3)
	if err != nil {
		t.Fatalf("HotFiles: %v", err)
	}
	if len(hot) != 3 {
		t.Fatalf("len(hot) = %d, want 3", len(hot))
	}
	if hot[0].FileID != "file-4" {
		t.Errorf("hot[0] = %s, want file-4 (highest access count)", hot[0].FileID)
	}
	if hot[0].Name != "clip-4.mkv" || hot[0].Size != 4000 {
		t.Errorf("hot[0] = %+v, fields did not round-trip", hot[0])
	}
}

func TestUpsertReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record := storage.FileRecord{
		FileID: "f", Name: "old", Size: 1, Digest: "d1",
		Meta: []byte{0x01}, UpdatedAt: time.Now(),
	}
	if err := store.UpsertFile(ctx, record); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	record.Name = "new"
	record.Digest = "d2"
	if err := store.UpsertFile(ctx, record); err != nil {
		t.Fatalf("UpsertFile (replace): %v", err)
	}

	hot, err := store.HotFiles(ctx, 10)
	if err != nil {
		t.Fatalf("HotFiles: %v", err)
	}
	if len(hot) != 1 {
		t.Fatalf("len(hot) = %d, want 1", len(hot))
	}
	if hot[0].Name != "new" || hot[0].Digest != "d2" {
		t.Errorf("record = %+v, want replaced fields", hot[0])
	}
}

func TestTouchFile(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record := storage.FileRecord{
		FileID: "f", Name: "n", Size: 1, Digest: "d",
		Meta: []byte{0x01}, UpdatedAt: time.Now(),
	}
	if err := store.UpsertFile(ctx, record); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	if err := store.TouchFile(ctx, "f"); err != nil {
		t.Fatalf("TouchFile: %v", err)
	}
	// Touching a pruned file is a no-op, not an error.
	if err := store.TouchFile(ctx, "missing"); err != nil {
		t.Fatalf("TouchFile (missing): %v", err)
	}

	hot, err := store.HotFiles(ctx, 1)
	if err != nil {
		t.Fatalf("HotFiles: %v", err)
	}
	if hot[0].AccessCount != 1 {
		t.Errorf("access_count = %d, want 1", hot[0].AccessCount)
	}
}

func TestCloseIdempotent(t *testing.T) {
	store, err := storage.Open(storage.Config{
		Path:     filepath.Join(t.TempDir(), "meta.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCloseNeverUsed(t *testing.T) {
	// The shutdown coordinator closes the store even when startup
	// aborted before any query ran.
	store, err := storage.Open(storage.Config{
		Path:     filepath.Join(t.TempDir(), "meta.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close on unused store: %v", err)
	}
}
