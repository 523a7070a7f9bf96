// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage persists file metadata in SQLite. The store backs
// the in-memory cache (hot-set queries) and records per-file access
// counts written by the stream dispatcher.
//
// The shutdown coordinator calls [Store.Close] exactly once per
// shutdown sequence; Close is idempotent so a second trigger or an
// early-abort path cannot double-close the pool.
package storage
