// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"errors"
	"fmt"
)

// ErrKeyRequired indicates the profile requires an API key and none
// was supplied. Detected before any network call.
var ErrKeyRequired = errors.New("provider requires an API key and none is configured")

// CapabilityError reports a requested feature the target provider does
// not support. Detected pre-flight; never retried.
type CapabilityError struct {
	Provider string
	Feature  string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("provider %q does not support %s", e.Provider, e.Feature)
}

// SchemaError reports a response body missing required fields or
// otherwise failing to parse as the provider's documented shape.
type SchemaError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ProviderError carries a provider-reported failure: an HTTP error
// status or an explicit error payload. Retryable is a hint only;
// acting on it is the caller's decision.
type ProviderError struct {
	Provider   string
	Status     int
	Message    string
	Suggestion string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: API error: %s", e.Provider, e.Message)
}

// NewProviderError builds a ProviderError with a status-specific
// suggestion and retryable hint.
func NewProviderError(providerID string, status int, message string) *ProviderError {
	return &ProviderError{
		Provider:   providerID,
		Status:     status,
		Message:    message,
		Suggestion: suggestionForStatus(status),
		Retryable:  status == 429 || (status >= 500 && status <= 599),
	}
}

// suggestionForStatus maps an HTTP status to human guidance shown
// alongside the error.
func suggestionForStatus(status int) string {
	switch {
	case status == 400:
		return "Check your request format and model name."
	case status == 401:
		return "Check your API key is correct and has the right permissions."
	case status == 403:
		return "Your API key may not have access to this resource or may be expired."
	case status == 429:
		return "Rate limit exceeded. Try again later or reduce request frequency."
	case status >= 500 && status <= 599:
		return "Server error. The API service may be down, try again later."
	default:
		return "Check the API documentation for this status code."
	}
}
