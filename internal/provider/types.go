// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"time"

	"github.com/jeranaias/echomind/internal/model"
)

// ChatRequest is the provider-agnostic request. Built once per call by
// the engine; not mutated after construction.
type ChatRequest struct {
	ProviderID   string
	Model        string
	Messages     []model.Message
	Temperature  float64
	MaxTokens    int // 0 means provider default
	TopP         float64
	TopK         int
	SystemPrompt string
	Stream       bool
}

// Usage reports token counts when the provider supplies them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// FinishReason explains why a streamed response ended.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	// FinishIncomplete marks a stream whose connection closed before
	// the provider's terminator frame arrived.
	FinishIncomplete FinishReason = "incomplete"
)

// ChatDelta is one incremental fragment of a streamed response.
// Concatenating Text over an entire stream yields the full reply.
type ChatDelta struct {
	Text   string
	Final  bool
	Finish FinishReason
}

// ChatReply is the terminal value of both streaming and non-streaming
// exchanges.
type ChatReply struct {
	Content  string
	Model    string
	Provider string
	Usage    *Usage
	Latency  time.Duration
}
