// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache maintains the in-memory hot set of file metadata.
//
// The [Manager.Run] loop is the daemon's supervised background task:
// it reloads the hot set from the SQLite store on an interval and on
// debounced filesystem change events, so rows written by other
// processes appear without waiting a full cycle. Metadata blobs are
// deterministic CBOR with BLAKE3 keyed digests; a refresh flags rows
// whose stored digest no longer matches.
//
// If Run fails, the orchestrator's supervisor reports the crash and
// the daemon keeps serving with the last loaded hot set. The task is
// not restarted.
package cache
