// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/jeranaias/echomind/internal/model"
	"github.com/jeranaias/echomind/internal/provider"
)

// StreamSession is one in-flight streaming exchange. Deltas come out
// of Next strictly in arrival order; the sequence is finite and
// single-pass. After the final delta, Finalize persists the exchange
// and yields the assembled reply. Closing the session before the
// final delta cancels the exchange: the connection is torn down and
// nothing is persisted.
type StreamSession struct {
	engine    *Engine
	sessionID string
	userMsg   model.Message
	cand      Candidate

	body  io.ReadCloser        // nil in pseudo-streaming mode
	ds    *provider.DeltaStream
	queue []provider.ChatDelta // pre-computed deltas for pseudo-streaming

	start  time.Time
	text   strings.Builder
	final  *provider.ChatDelta
	closed bool
	reply  *provider.ChatReply // pre-built reply in pseudo-streaming mode
}

// Stream opens a streaming exchange against the named session.
// Providers without a streaming endpoint are emulated: the atomic
// call runs up front and surfaces as a single delta plus final.
// Fallback providers apply at connection time only; once deltas flow,
// a drop surfaces as an incomplete stream rather than a provider
// switch.
func (e *Engine) Stream(ctx context.Context, sessionID string, p Prompt) (*StreamSession, error) {
	history, err := e.loadHistory(sessionID)
	if err != nil {
		return nil, err
	}
	userMsg := model.NewUserMessage(p.Text)
	userMsg.Attachments = p.Attachments

	cands := append([]Candidate{e.primary}, e.fallbacks...)
	var lastErr error
	for i, cand := range cands {
		if i > 0 {
			log.Printf("chat: provider %s failed, trying fallback %s: %v",
				cands[i-1].Profile.ID, cand.Profile.ID, lastErr)
		}
		sess, err := e.openStream(ctx, sessionID, history, userMsg, p, cand)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if !fallbackEligible(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (e *Engine) openStream(ctx context.Context, sessionID string, history []model.Message, userMsg model.Message, p Prompt, cand Candidate) (*StreamSession, error) {
	if !cand.Profile.SupportsStreaming() {
		return e.openPseudoStream(ctx, history, userMsg, p, cand, sessionID)
	}

	req := e.buildRequest(history, userMsg, p, cand, true)
	wire, err := provider.Translate(req, cand.Profile, cand.APIKey)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := e.client.Stream(ctx, wire, cand.Profile)
	if err != nil {
		return nil, err
	}
	ds, err := provider.NewDeltaStream(body, cand.Profile)
	if err != nil {
		body.Close()
		return nil, err
	}
	return &StreamSession{
		engine:    e,
		sessionID: sessionID,
		userMsg:   userMsg,
		cand:      cand,
		body:      body,
		ds:        ds,
		start:     start,
	}, nil
}

// openPseudoStream emulates streaming for providers without a
// streaming endpoint: one atomic exchange surfaced as a text delta
// followed by a final delta.
func (e *Engine) openPseudoStream(ctx context.Context, history []model.Message, userMsg model.Message, p Prompt, cand Candidate, sessionID string) (*StreamSession, error) {
	reply, err := e.sendOne(ctx, history, userMsg, p, cand)
	if err != nil {
		return nil, err
	}
	return &StreamSession{
		engine:    e,
		sessionID: sessionID,
		userMsg:   userMsg,
		cand:      cand,
		reply:     reply,
		queue: []provider.ChatDelta{
			{Text: reply.Content},
			{Final: true, Finish: provider.FinishStop},
		},
		start: time.Now(),
	}, nil
}

// Next returns the next delta; io.EOF after the final one.
func (s *StreamSession) Next() (provider.ChatDelta, error) {
	if s.closed {
		return provider.ChatDelta{}, errors.New("stream session is closed")
	}
	if s.final != nil {
		return provider.ChatDelta{}, io.EOF
	}

	var delta provider.ChatDelta
	if s.ds != nil {
		var err error
		delta, err = s.ds.Next()
		if err != nil {
			return provider.ChatDelta{}, err
		}
	} else {
		if len(s.queue) == 0 {
			return provider.ChatDelta{}, io.EOF
		}
		delta, s.queue = s.queue[0], s.queue[1:]
	}

	s.text.WriteString(delta.Text)
	if delta.Final {
		s.final = &delta
		if s.ds != nil && s.ds.Malformed() > 0 {
			log.Printf("chat: %s stream skipped %d malformed frames", s.cand.Profile.ID, s.ds.Malformed())
		}
		if s.body != nil {
			s.body.Close()
			s.body = nil
		}
	}
	return delta, nil
}

// Finalize persists the completed exchange (user turn and assistant
// reply as one atomic append) and returns the assembled reply. It is
// an error to finalize before the final delta has been read.
func (s *StreamSession) Finalize(ctx context.Context) (*provider.ChatReply, error) {
	if s.closed {
		return nil, errors.New("stream session is closed")
	}
	if s.final == nil {
		return nil, errors.New("stream is not complete")
	}

	reply := s.reply
	if reply == nil {
		reply = &provider.ChatReply{
			Content:  s.text.String(),
			Model:    s.ds.Model(),
			Provider: s.cand.Profile.ID,
			Usage:    s.ds.Usage(),
			Latency:  time.Since(s.start),
		}
		if reply.Model == "" {
			reply.Model = s.cand.Profile.DefaultModel
		}
	}

	if s.engine.store != nil && s.sessionID != "" {
		assistant := model.NewAssistantMessage(reply.Content)
		if _, err := s.engine.store.Append(s.sessionID, s.userMsg, assistant); err != nil {
			return nil, err
		}
	}
	s.engine.record(ctx, s.sessionID, s.userMsg.Content, reply)
	s.closed = true
	return reply, nil
}

// Incomplete reports whether the stream ended without the provider's
// terminator. Callers may display the partial text but should not
// treat it as a complete reply.
func (s *StreamSession) Incomplete() bool {
	return s.final != nil && s.final.Finish == provider.FinishIncomplete
}

// Close cancels the session. The connection is torn down and nothing
// is persisted; partial output already rendered stays on screen only.
func (s *StreamSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.body != nil {
		err := s.body.Close()
		s.body = nil
		return err
	}
	return nil
}
