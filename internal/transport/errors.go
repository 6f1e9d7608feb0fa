// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
)

// ErrResponseTooLarge indicates the response body exceeded the
// configured size cap.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// TransportError wraps a network-level failure. Retryable by the
// caller; never retried automatically here.
type TransportError struct {
	Provider string
	Err      error
	Timeout  bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError indicates the provider rejected the credential (HTTP 401
// or 403). Surfaced immediately; never retried.
type AuthError struct {
	Provider string
	Status   int
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (HTTP %d): %s", e.Provider, e.Status, e.Message)
}
