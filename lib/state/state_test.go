// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/streamfleet/streamfleet/lib/config"
	"github.com/streamfleet/streamfleet/lib/pool"
)

type nopClient struct{}

func (nopClient) Start(ctx context.Context) error { return nil }
func (nopClient) Stop(ctx context.Context) error  { return nil }

func startedPool(t *testing.T, ids ...int) *pool.Pool {
	t.Helper()
	clients := make(map[int]config.ClientConfig, len(ids))
	for _, id := range ids {
		clients[id] = config.ClientConfig{APIID: 1, APIHash: "h", BotToken: "t"}
	}
	p, err := pool.New(pool.Config{
		Clients: clients,
		Factory: func(int, config.ClientConfig) (pool.BotClient, error) {
			return nopClient{}, nil
		},
	})
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	if _, err := p.StartPrimary(context.Background()); err != nil {
		t.Fatalf("StartPrimary: %v", err)
	}
	p.StartSecondaries(context.Background())
	return p
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.json")
	clientPool := startedPool(t, 0, 2, 1)
	clientPool.SetWorkload(2, 7)

	writer := NewWriter(path)
	if err := writer.Write(clientPool); err != nil {
		t.Fatalf("Write: %v", err)
	}

	snapshot, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if snapshot.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", snapshot.PID, os.Getpid())
	}
	if want := []int{0, 1, 2}; len(snapshot.Clients) != 3 ||
		snapshot.Clients[0] != want[0] || snapshot.Clients[1] != want[1] || snapshot.Clients[2] != want[2] {
		t.Errorf("Clients = %v, want %v", snapshot.Clients, want)
	}
	if snapshot.Workloads[2] != 7 {
		t.Errorf("Workloads[2] = %d, want 7", snapshot.Workloads[2])
	}
	if snapshot.StartedAt.IsZero() || snapshot.UpdatedAt.IsZero() {
		t.Error("timestamps not populated")
	}
}

func TestWritePreservesStartedAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.json")
	clientPool := startedPool(t, 0)
	writer := NewWriter(path)

	if err := writer.Write(clientPool); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	first, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := writer.Write(clientPool); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	second, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !first.StartedAt.Equal(second.StartedAt) {
		t.Errorf("StartedAt changed between writes: %v vs %v", first.StartedAt, second.StartedAt)
	}
}

func TestRemoveMissingFile(t *testing.T) {
	writer := NewWriter(filepath.Join(t.TempDir(), "absent.json"))
	if err := writer.Remove(); err != nil {
		t.Errorf("Remove on missing file: %v", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Read on missing file succeeded, want error")
	}
}
