// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package botapi wraps the Bot API HTTP surface that the pool needs:
// session lifecycle (Start authenticates the token, Stop releases the
// session) and message delivery for operator notifications.
//
// A [Client] is bound to one bot token. The pool exclusively owns a
// client once started; no other component holds a competing reference
// to the same handle. Start and Stop may both fail — the pool and
// shutdown coordinator decide what a failure means (fatal for the
// primary client, degraded for secondaries).
//
// All API errors are returned as [*APIError] carrying the server's
// error code and description; [IsAPIError] tests for a specific code.
// Transport and decoding problems are returned as plain wrapped
// errors.
package botapi
