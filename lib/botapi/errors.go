// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package botapi

import (
	"errors"
	"fmt"
)

// APIError represents a structured error response from the Bot API.
// Callers can use errors.As to extract the structured information:
//
//	var apiErr *botapi.APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.Code == http.StatusUnauthorized { ... }
//	}
type APIError struct {
	// Method is the API method that failed (e.g., "getMe").
	Method string
	// Code is the API error code, which mirrors HTTP status codes
	// (401 for a rejected token, 429 for rate limiting).
	Code int
	// Description is the human-readable error from the server.
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("botapi: %s (%d): %s", e.Method, e.Code, e.Description)
}

// IsAPIError checks whether err is an *APIError with the given code.
func IsAPIError(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
