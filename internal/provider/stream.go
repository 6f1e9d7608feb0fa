// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the maximum allowed size for a single streaming
// frame (256KB). Frames beyond this abort the stream.
const MaxFrameSize = 256 * 1024

// =============================================================================
// FRAME READERS
// =============================================================================

// A frameReader yields one complete wire frame per call, buffering
// partial lines across reads. next returns io.EOF when the underlying
// stream ends.
type frameReader interface {
	next() ([]byte, error)
}

// isStreamEnd treats an abruptly closed body the same as a clean EOF.
// Chunked responses cut mid-transfer surface io.ErrUnexpectedEOF; the
// partial frame is still worth flushing and the incomplete-finish
// synthesis handles the rest.
func isStreamEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// sseFrameReader assembles Server-Sent Events: "data:" lines
// accumulated until a blank line. Comment pings (lines starting with
// ':') and non-data fields are skipped.
type sseFrameReader struct {
	r *bufio.Reader
}

func (s *sseFrameReader) next() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			if isStreamEnd(err) {
				// Flush a frame left unterminated by connection close,
				// including a final data line with no trailing newline.
				line = bytes.TrimRight(line, "\r\n")
				if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
					dataLines = append(dataLines, bytes.TrimSpace(data))
				}
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
		if len(line) > MaxFrameSize {
			return nil, fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			dataLines = append(dataLines, bytes.TrimSpace(data))
		}
		// event:, id:, retry:, and ":" comments are skipped. Event
		// types are redundant here; every payload carries its own
		// type discriminator.
	}
}

// ndjsonFrameReader yields one JSON object per line.
type ndjsonFrameReader struct {
	r *bufio.Reader
}

func (n *ndjsonFrameReader) next() ([]byte, error) {
	for {
		line, err := n.r.ReadBytes('\n')
		if err != nil {
			if isStreamEnd(err) {
				if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
					return trimmed, nil
				}
				return nil, io.EOF
			}
			return nil, err
		}
		if len(line) > MaxFrameSize {
			return nil, fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			return trimmed, nil
		}
	}
}

// =============================================================================
// DELTA STREAM
// =============================================================================

// DeltaStream is a pull-based incremental decoder over a streaming
// response body. Deltas come out strictly in arrival order; the
// concatenation of Text values equals the full response. The sequence
// is finite and single-pass; re-invoking requires a new request.
//
// RELIABILITY: if the connection closes before the provider's
// terminator frame, the stream synthesizes a final delta with
// FinishIncomplete rather than dropping the tail silently.
type DeltaStream struct {
	frames    frameReader
	p         Profile
	done      bool
	malformed int
	model     string
	usage     *Usage
	finish    FinishReason
}

// NewDeltaStream wraps a streaming response body in an incremental
// decoder for the profile's stream variant.
func NewDeltaStream(r io.Reader, p Profile) (*DeltaStream, error) {
	var fr frameReader
	switch p.Stream {
	case StreamSSE:
		fr = &sseFrameReader{r: bufio.NewReader(r)}
	case StreamNDJSON:
		fr = &ndjsonFrameReader{r: bufio.NewReader(r)}
	default:
		return nil, &CapabilityError{Provider: p.ID, Feature: "streaming"}
	}
	return &DeltaStream{frames: fr, p: p}, nil
}

// Next returns the next delta. The delta with Final set is the last
// element; calls after it return io.EOF. A provider-reported error
// frame aborts immediately with ProviderError; individually malformed
// frames are counted and skipped.
func (s *DeltaStream) Next() (ChatDelta, error) {
	if s.done {
		return ChatDelta{}, io.EOF
	}

	for {
		frame, err := s.frames.next()
		if err != nil {
			if err == io.EOF {
				s.done = true
				return ChatDelta{Final: true, Finish: FinishIncomplete}, nil
			}
			return ChatDelta{}, err
		}

		delta, terminal, perr := s.decodeFrame(frame)
		if perr != nil {
			return ChatDelta{}, perr
		}
		if terminal {
			s.done = true
			delta.Final = true
			if delta.Finish == "" {
				delta.Finish = FinishStop
			}
			return delta, nil
		}
		if delta.Text != "" {
			return delta, nil
		}
		// Empty non-terminal frame (keep-alive, role-only chunk,
		// finish hint). Remember state and keep reading.
	}
}

// Malformed reports how many frames were skipped as unparseable.
func (s *DeltaStream) Malformed() int { return s.malformed }

// Model returns the model id observed in the stream, if any.
func (s *DeltaStream) Model() string { return s.model }

// Usage returns token counts if the stream's terminator carried them.
func (s *DeltaStream) Usage() *Usage { return s.usage }

// decodeFrame interprets one frame for the profile's wire format.
// terminal marks the provider's end-of-stream signal.
func (s *DeltaStream) decodeFrame(frame []byte) (delta ChatDelta, terminal bool, err error) {
	switch s.p.Stream {
	case StreamSSE:
		if bytes.Equal(frame, []byte("[DONE]")) {
			return ChatDelta{Finish: s.finish}, true, nil
		}
		if s.p.Request == VariantAnthropicMessages {
			return s.decodeAnthropicEvent(frame)
		}
		return s.decodeOpenAIChunk(frame)
	case StreamNDJSON:
		return s.decodeOllamaLine(frame)
	}
	return ChatDelta{}, false, fmt.Errorf("unknown stream variant %q", s.p.Stream)
}

type openAIStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *DeltaStream) decodeOpenAIChunk(frame []byte) (ChatDelta, bool, error) {
	var chunk openAIStreamChunk
	if err := json.Unmarshal(frame, &chunk); err != nil {
		s.malformed++
		return ChatDelta{}, false, nil
	}
	if chunk.Error != nil {
		return ChatDelta{}, false, &ProviderError{
			Provider: s.p.ID,
			Message:  chunk.Error.Message,
		}
	}
	if chunk.Model != "" {
		s.model = chunk.Model
	}
	if len(chunk.Choices) == 0 {
		s.malformed++
		return ChatDelta{}, false, nil
	}
	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		s.finish = mapFinishReason(choice.FinishReason)
	}
	return ChatDelta{Text: choice.Delta.Content}, false, nil
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *DeltaStream) decodeAnthropicEvent(frame []byte) (ChatDelta, bool, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		s.malformed++
		return ChatDelta{}, false, nil
	}
	switch ev.Type {
	case "error":
		msg := "provider error"
		if ev.Error != nil {
			msg = ev.Error.Message
		}
		return ChatDelta{}, false, &ProviderError{Provider: s.p.ID, Message: msg}
	case "content_block_delta":
		return ChatDelta{Text: ev.Delta.Text}, false, nil
	case "message_delta":
		if ev.Delta.StopReason != "" {
			s.finish = mapFinishReason(ev.Delta.StopReason)
		}
		if ev.Usage != nil {
			s.usage = &Usage{CompletionTokens: ev.Usage.OutputTokens}
		}
		return ChatDelta{}, false, nil
	case "message_stop":
		return ChatDelta{Finish: s.finish}, true, nil
	default:
		// ping, message_start, content_block_start/stop
		return ChatDelta{}, false, nil
	}
}

type ollamaStreamLine struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (s *DeltaStream) decodeOllamaLine(frame []byte) (ChatDelta, bool, error) {
	var line ollamaStreamLine
	if err := json.Unmarshal(frame, &line); err != nil {
		s.malformed++
		return ChatDelta{}, false, nil
	}
	if line.Error != "" {
		return ChatDelta{}, false, &ProviderError{Provider: s.p.ID, Message: line.Error}
	}
	if line.Model != "" {
		s.model = line.Model
	}
	if line.Done {
		if line.PromptEvalCount > 0 || line.EvalCount > 0 {
			s.usage = &Usage{
				PromptTokens:     line.PromptEvalCount,
				CompletionTokens: line.EvalCount,
			}
		}
		return ChatDelta{
			Text:   line.Message.Content,
			Finish: mapFinishReason(line.DoneReason),
		}, true, nil
	}
	return ChatDelta{Text: line.Message.Content}, false, nil
}

// mapFinishReason normalizes provider finish vocabulary.
func mapFinishReason(raw string) FinishReason {
	switch raw {
	case "":
		return ""
	case "stop", "end_turn", "STOP", "COMPLETE":
		return FinishStop
	case "length", "max_tokens", "MAX_TOKENS":
		return FinishLength
	default:
		return FinishReason(raw)
	}
}
