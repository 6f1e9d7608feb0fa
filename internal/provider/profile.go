// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"net/url"
	"sort"
)

// =============================================================================
// WIRE FORMAT VARIANTS
// =============================================================================

// AuthScheme describes where the API key is injected, if anywhere.
// SECURITY: keys go into headers or the query string, never the body,
// and are never logged.
type AuthScheme int

const (
	AuthNone AuthScheme = iota
	AuthBearer
	AuthHeader // custom header named by Profile.AuthName
	AuthQuery  // query parameter named by Profile.AuthName
)

// RequestVariant selects the JSON request schema.
type RequestVariant string

const (
	VariantOpenAIChat        RequestVariant = "openai-chat"
	VariantAnthropicMessages RequestVariant = "anthropic-messages"
	VariantOllamaChat        RequestVariant = "ollama-chat"
	VariantGeminiContents    RequestVariant = "gemini-contents"
	VariantCohereChat        RequestVariant = "cohere-chat"
)

// StreamVariant selects the streaming frame format.
type StreamVariant string

const (
	StreamSSE    StreamVariant = "sse"    // "data: {json}" frames, blank-line delimited
	StreamNDJSON StreamVariant = "ndjson" // one JSON object per line
	StreamNone   StreamVariant = "none"   // provider has no streaming endpoint
)

// =============================================================================
// PROVIDER PROFILES
// =============================================================================

// Profile describes one provider's endpoint and wire conventions.
// Profiles are immutable after construction.
type Profile struct {
	ID           string
	BaseURL      string
	Auth         AuthScheme
	AuthName     string // header or query parameter name for AuthHeader/AuthQuery
	Request      RequestVariant
	Stream       StreamVariant
	RequiresKey  bool
	DefaultModel string
	// ExtraHeaders are fixed headers the provider requires on every
	// request, e.g. anthropic-version.
	ExtraHeaders map[string]string
}

// SupportsStreaming reports whether the provider has a native
// streaming endpoint.
func (p Profile) SupportsStreaming() bool { return p.Stream != StreamNone }

// SupportsAttachments reports whether the request variant can carry
// inline binary payloads.
func (p Profile) SupportsAttachments() bool {
	return p.Request != VariantCohereChat
}

// builtins is the static provider table. Endpoint URLs and defaults
// match the services' published APIs as of early 2025.
var builtins = map[string]Profile{
	"chat": {
		ID:      "chat",
		BaseURL: "https://ch.at/v1/chat/completions",
		Auth:    AuthNone,
		Request: VariantOpenAIChat,
		Stream:  StreamSSE,
	},
	"chatanywhere": {
		ID:          "chatanywhere",
		BaseURL:     "https://api.chatanywhere.tech/v1/chat/completions",
		Auth:        AuthBearer,
		Request:     VariantOpenAIChat,
		Stream:      StreamSSE,
		RequiresKey: true,
	},
	"openai": {
		ID:           "openai",
		BaseURL:      "https://api.openai.com/v1/chat/completions",
		Auth:         AuthBearer,
		Request:      VariantOpenAIChat,
		Stream:       StreamSSE,
		RequiresKey:  true,
		DefaultModel: "gpt-3.5-turbo",
	},
	"claude": {
		ID:           "claude",
		BaseURL:      "https://api.anthropic.com/v1/messages",
		Auth:         AuthHeader,
		AuthName:     "x-api-key",
		Request:      VariantAnthropicMessages,
		Stream:       StreamSSE,
		RequiresKey:  true,
		DefaultModel: "claude-3-haiku-20240307",
		ExtraHeaders: map[string]string{"anthropic-version": "2023-06-01"},
	},
	"ollama": {
		ID:      "ollama",
		BaseURL: "http://localhost:11434/api/chat",
		Auth:    AuthNone,
		Request: VariantOllamaChat,
		Stream:  StreamNDJSON,
	},
	"grok": {
		ID:          "grok",
		BaseURL:     "https://api.x.ai/v1/chat/completions",
		Auth:        AuthBearer,
		Request:     VariantOpenAIChat,
		Stream:      StreamSSE,
		RequiresKey: true,
	},
	"mistral": {
		ID:          "mistral",
		BaseURL:     "https://api.mistral.ai/v1/chat/completions",
		Auth:        AuthBearer,
		Request:     VariantOpenAIChat,
		Stream:      StreamSSE,
		RequiresKey: true,
	},
	"cohere": {
		ID:           "cohere",
		BaseURL:      "https://api.cohere.ai/v1/chat",
		Auth:         AuthBearer,
		Request:      VariantCohereChat,
		Stream:       StreamNone,
		RequiresKey:  true,
		DefaultModel: "command",
	},
	"gemini": {
		ID:           "gemini",
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta/models",
		Auth:         AuthQuery,
		AuthName:     "key",
		Request:      VariantGeminiContents,
		Stream:       StreamNone,
		RequiresKey:  true,
		DefaultModel: "gemini-pro",
	},
}

// Lookup returns the built-in profile for id.
func Lookup(id string) (Profile, bool) {
	p, ok := builtins[id]
	return p, ok
}

// IDs returns all built-in provider ids, sorted.
func IDs() []string {
	ids := make([]string, 0, len(builtins))
	for id := range builtins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewCustomProfile builds a profile for a user-supplied endpoint.
// Custom endpoints speak the OpenAI chat schema with SSE streaming;
// bearer auth is applied when a key is configured.
func NewCustomProfile(rawURL string, hasKey bool) (Profile, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Profile{}, fmt.Errorf("custom endpoint %q is not an absolute URL", rawURL)
	}
	auth := AuthNone
	if hasKey {
		auth = AuthBearer
	}
	return Profile{
		ID:      "custom",
		BaseURL: rawURL,
		Auth:    auth,
		Request: VariantOpenAIChat,
		Stream:  StreamSSE,
	}, nil
}

// WithBaseURL returns a copy of the profile pointing at a different
// endpoint, for user overrides like a self-hosted ollama.
func (p Profile) WithBaseURL(rawURL string) (Profile, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return Profile{}, fmt.Errorf("endpoint override %q is not an absolute URL", rawURL)
	}
	p.BaseURL = rawURL
	return p, nil
}
