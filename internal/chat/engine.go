// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jeranaias/echomind/internal/model"
	"github.com/jeranaias/echomind/internal/provider"
	"github.com/jeranaias/echomind/internal/storage"
	"github.com/jeranaias/echomind/internal/transport"
)

// Candidate pairs a provider profile with its credential.
type Candidate struct {
	Profile provider.Profile
	APIKey  string
}

// Prompt carries one user turn plus per-call generation parameters.
type Prompt struct {
	Text         string
	Attachments  []model.Attachment
	Model        string
	Temperature  float64
	MaxTokens    int
	TopP         float64
	TopK         int
	SystemPrompt string
}

// Exchange is one completed prompt/reply pair handed to the optional
// history recorder.
type Exchange struct {
	SessionID string
	Provider  string
	Model     string
	Prompt    string
	Reply     string
	Latency   time.Duration
	Usage     *provider.Usage
	Encrypted bool
	When      time.Time
}

// Recorder receives completed exchanges for cross-session history.
// Recording failures are logged, never fatal to the exchange.
type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

// Engine drives chat exchanges against one primary provider with
// optional ordered fallbacks. Safe for concurrent use; conversation
// files are serialized by the store.
type Engine struct {
	store     *storage.Store
	client    *transport.Client
	primary   Candidate
	fallbacks []Candidate
	cache     *replyCache
	recorder  Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithFallbacks sets providers tried in order when the primary fails
// with a transport-class error.
func WithFallbacks(cands ...Candidate) Option {
	return func(e *Engine) { e.fallbacks = cands }
}

// WithRecorder attaches a history recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithoutCache disables response memoization.
func WithoutCache() Option {
	return func(e *Engine) { e.cache = nil }
}

// NewEngine builds an engine. store may be nil for stateless use
// (one-shot ask, comparison mode).
func NewEngine(store *storage.Store, client *transport.Client, primary Candidate, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		client:  client,
		primary: primary,
		cache:   newReplyCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Provider returns the primary provider id.
func (e *Engine) Provider() string { return e.primary.Profile.ID }

// buildRequest assembles the provider-agnostic request from prior
// history plus the new user turn.
func (e *Engine) buildRequest(history []model.Message, userMsg model.Message, p Prompt, cand Candidate, stream bool) provider.ChatRequest {
	msgs := make([]model.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, userMsg)
	return provider.ChatRequest{
		ProviderID:   cand.Profile.ID,
		Model:        p.Model,
		Messages:     msgs,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		TopP:         p.TopP,
		TopK:         p.TopK,
		SystemPrompt: p.SystemPrompt,
		Stream:       stream,
	}
}

// Send performs one atomic (non-streaming) exchange against the named
// session. On success the user message and assistant reply are
// appended to the store as a single write; on any failure nothing is
// persisted, so a retry does not duplicate the user turn.
func (e *Engine) Send(ctx context.Context, sessionID string, p Prompt) (*provider.ChatReply, error) {
	history, err := e.loadHistory(sessionID)
	if err != nil {
		return nil, err
	}

	userMsg := model.NewUserMessage(p.Text)
	userMsg.Attachments = p.Attachments

	reply, err := e.sendWithFallback(ctx, history, userMsg, p)
	if err != nil {
		return nil, err
	}

	if e.store != nil && sessionID != "" {
		assistant := model.NewAssistantMessage(reply.Content)
		if _, err := e.store.Append(sessionID, userMsg, assistant); err != nil {
			return nil, err
		}
	}

	e.record(ctx, sessionID, userMsg.Content, reply)
	return reply, nil
}

// Ask performs a stateless exchange: no session history in, nothing
// persisted out. Used by one-shot mode and comparison mode.
func (e *Engine) Ask(ctx context.Context, p Prompt) (*provider.ChatReply, error) {
	userMsg := model.NewUserMessage(p.Text)
	userMsg.Attachments = p.Attachments
	return e.sendWithFallback(ctx, nil, userMsg, p)
}

func (e *Engine) loadHistory(sessionID string) ([]model.Message, error) {
	if e.store == nil || sessionID == "" {
		return nil, nil
	}
	state, err := e.store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	return state.Messages, nil
}

// sendWithFallback runs the translate/send/decode pipeline against
// the primary, then each fallback in order for transport-class
// failures. Capability, schema, and auth errors surface immediately;
// a different provider cannot fix those by accident, and when it
// could (a capability gap), the user should choose it explicitly.
func (e *Engine) sendWithFallback(ctx context.Context, history []model.Message, userMsg model.Message, p Prompt) (*provider.ChatReply, error) {
	cands := append([]Candidate{e.primary}, e.fallbacks...)
	var lastErr error
	for i, cand := range cands {
		if i > 0 {
			log.Printf("chat: provider %s failed, trying fallback %s: %v",
				cands[i-1].Profile.ID, cand.Profile.ID, lastErr)
		}
		reply, err := e.sendOne(ctx, history, userMsg, p, cand)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !fallbackEligible(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (e *Engine) sendOne(ctx context.Context, history []model.Message, userMsg model.Message, p Prompt, cand Candidate) (*provider.ChatReply, error) {
	req := e.buildRequest(history, userMsg, p, cand, false)

	if e.cache != nil {
		if cached, ok := e.cache.get(req); ok {
			reply := cached
			// Served from memory; the original call's latency does
			// not describe this exchange.
			reply.Latency = 0
			return &reply, nil
		}
	}

	wire, err := provider.Translate(req, cand.Profile, cand.APIKey)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := e.client.Send(ctx, wire, cand.Profile)
	if err != nil {
		return nil, err
	}
	reply, err := provider.Decode(body, cand.Profile)
	if err != nil {
		return nil, err
	}
	reply.Latency = time.Since(start)
	if reply.Model == "" {
		reply.Model = modelOrDefault(p.Model, cand.Profile)
	}

	if e.cache != nil {
		e.cache.put(req, *reply)
	}
	return reply, nil
}

// fallbackEligible reports whether an error class justifies moving to
// the next configured provider: network failures and provider-side
// retryable statuses only.
func fallbackEligible(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var tErr *transport.TransportError
	if errors.As(err, &tErr) {
		return true
	}
	var pErr *provider.ProviderError
	if errors.As(err, &pErr) {
		return pErr.Retryable
	}
	return false
}

func modelOrDefault(m string, p provider.Profile) string {
	if m != "" {
		return m
	}
	return p.DefaultModel
}

// record hands the completed exchange to the history recorder.
func (e *Engine) record(ctx context.Context, sessionID, prompt string, reply *provider.ChatReply) {
	if e.recorder == nil {
		return
	}
	encrypted := e.store != nil && e.store.Encrypted()
	ex := Exchange{
		SessionID: sessionID,
		Provider:  reply.Provider,
		Model:     reply.Model,
		Prompt:    prompt,
		Reply:     reply.Content,
		Latency:   reply.Latency,
		Usage:     reply.Usage,
		Encrypted: encrypted,
		When:      time.Now().UTC(),
	}
	if err := e.recorder.Record(ctx, ex); err != nil {
		log.Printf("chat: recording exchange: %v", err)
	}
}
