// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool owns the set of running bot clients and the workload
// registry used to balance streaming work across them.
//
// A [Pool] is constructed once at startup and passed explicitly to
// every component that needs it — there is no ambient global state.
// [Pool.StartPrimary] brings up the mandatory client (identifier 0)
// synchronously; its failure is fatal to the whole daemon.
// [Pool.StartSecondaries] then fans out one start attempt per
// configured secondary and waits for all of them to settle. A failed
// secondary is logged and excluded; it never fails initialization.
// Running with only the primary client is a valid terminal state, not
// an error state.
//
// The workload registry is invariant-linked to pool membership: a
// counter exists for an identifier if and only if that identifier's
// client record exists. Reading or writing a counter for an unknown
// identifier is a programming error and panics.
//
// The pool is static for the process lifetime: records are created
// during startup and only the shutdown coordinator stops them.
package pool
