// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package state persists a point-in-time snapshot of the daemon's
// runtime shape (which clients are live, their workload counters) to a
// JSON file on disk. The file is written atomically so operators and
// tooling never observe a torn snapshot, and a stale file left by a
// crashed process is distinguishable by its timestamp and PID.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/google/renameio/v2"

	"github.com/streamfleet/streamfleet/lib/pool"
)

// Snapshot is the on-disk representation of the daemon's runtime state.
type Snapshot struct {
	// PID of the process that wrote the snapshot.
	PID int `json:"pid"`

	// StartedAt is when the daemon began serving.
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is when this snapshot was written.
	UpdatedAt time.Time `json:"updated_at"`

	// Clients lists the IDs of started clients in ascending order.
	Clients []int `json:"clients"`

	// Workloads maps client ID to its in-flight request counter.
	Workloads map[int]int `json:"workloads"`
}

// Writer persists snapshots to a fixed path.
type Writer struct {
	path      string
	startedAt time.Time
}

// NewWriter creates a Writer targeting path. The startup timestamp is
// captured once so every snapshot from this process reports the same
// StartedAt.
func NewWriter(path string) *Writer {
	return &Writer{
		path:      path,
		startedAt: time.Now().UTC(),
	}
}

// Write captures the pool's current membership and workload counters
// and atomically replaces the snapshot file.
func (w *Writer) Write(clientPool *pool.Pool) error {
	snapshot := Snapshot{
		PID:       os.Getpid(),
		StartedAt: w.startedAt,
		UpdatedAt: time.Now().UTC(),
		Workloads: clientPool.Workloads(),
	}
	snapshot.Clients = make([]int, 0, len(snapshot.Workloads))
	for id := range snapshot.Workloads {
		snapshot.Clients = append(snapshot.Clients, id)
	}
	slices.Sort(snapshot.Clients)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encoding snapshot: %w", err)
	}
	if err := renameio.WriteFile(w.path, data, 0o644); err != nil {
		return fmt.Errorf("state: writing %s: %w", w.path, err)
	}
	return nil
}

// Remove deletes the snapshot file. A missing file is not an error;
// shutdown paths call this unconditionally.
func (w *Writer) Remove() error {
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: removing %s: %w", w.path, err)
	}
	return nil
}

// Read loads a snapshot from path.
func Read(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("state: reading %s: %w", path, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("state: decoding %s: %w", path, err)
	}
	return snapshot, nil
}
