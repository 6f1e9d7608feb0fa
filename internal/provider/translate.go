// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jeranaias/echomind/internal/model"
)

// defaultAnthropicMaxTokens is applied when the caller leaves
// MaxTokens unset; the Anthropic API rejects requests without it.
const defaultAnthropicMaxTokens = 1024

// WireRequest is a fully-assembled provider request ready for HTTP.
type WireRequest struct {
	URL     string
	Headers http.Header
	Body    []byte
}

// Translate builds the provider-specific wire request from a
// provider-agnostic ChatRequest.
//
// Capability checks run before anything else, so an unsupported
// feature surfaces as a CapabilityError without any network I/O.
// Authentication goes into headers or the query string per the
// profile, never into the body.
func Translate(req ChatRequest, p Profile, apiKey string) (*WireRequest, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("chat request has no messages")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return nil, &CapabilityError{Provider: p.ID, Feature: fmt.Sprintf("temperature %.2f (valid range 0..2)", req.Temperature)}
	}
	if req.Stream && !p.SupportsStreaming() {
		return nil, &CapabilityError{Provider: p.ID, Feature: "streaming"}
	}
	if !p.SupportsAttachments() && hasAttachments(req.Messages) {
		return nil, &CapabilityError{Provider: p.ID, Feature: "attachments"}
	}
	if p.RequiresKey && apiKey == "" {
		return nil, fmt.Errorf("%s: %w", p.ID, ErrKeyRequired)
	}

	mdl := req.Model
	if mdl == "" {
		mdl = p.DefaultModel
	}
	if mdl == "" {
		return nil, errors.New("chat request has no model and the provider has no default")
	}

	var body []byte
	var err error
	switch p.Request {
	case VariantOpenAIChat:
		body, err = buildOpenAIChat(req, mdl)
	case VariantAnthropicMessages:
		body, err = buildAnthropicMessages(req, mdl)
	case VariantOllamaChat:
		body, err = buildOllamaChat(req, mdl)
	case VariantGeminiContents:
		body, err = buildGeminiContents(req)
	case VariantCohereChat:
		body, err = buildCohereChat(req, mdl)
	default:
		return nil, fmt.Errorf("unknown request variant %q", p.Request)
	}
	if err != nil {
		return nil, err
	}

	endpoint := p.BaseURL
	if p.Request == VariantGeminiContents {
		endpoint = fmt.Sprintf("%s/%s:generateContent", strings.TrimRight(p.BaseURL, "/"), mdl)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	for k, v := range p.ExtraHeaders {
		headers.Set(k, v)
	}

	switch p.Auth {
	case AuthBearer:
		if apiKey != "" {
			headers.Set("Authorization", "Bearer "+apiKey)
		}
	case AuthHeader:
		if apiKey != "" {
			headers.Set(p.AuthName, apiKey)
		}
	case AuthQuery:
		u, perr := url.Parse(endpoint)
		if perr != nil {
			return nil, fmt.Errorf("building endpoint URL: %w", perr)
		}
		q := u.Query()
		q.Set(p.AuthName, apiKey)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	if req.Stream {
		headers.Set("Accept", "text/event-stream")
		headers.Set("Cache-Control", "no-cache")
	}

	return &WireRequest{URL: endpoint, Headers: headers, Body: body}, nil
}

func hasAttachments(msgs []model.Message) bool {
	for _, m := range msgs {
		if m.HasAttachments() {
			return true
		}
	}
	return false
}

// =============================================================================
// OPENAI CHAT SCHEMA
// =============================================================================

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	Stream      bool            `json:"stream"`
}

func buildOpenAIChat(req ChatRequest, mdl string) ([]byte, error) {
	msgs := make([]openAIMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openAIMessage{Role: string(model.RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		if !m.HasAttachments() {
			msgs = append(msgs, openAIMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		// Multimodal turns use the content-parts form with data URIs.
		parts := []map[string]any{}
		if m.Content != "" {
			parts = append(parts, map[string]any{"type": "text", "text": m.Content})
		}
		for _, a := range m.Attachments {
			uri := fmt.Sprintf("data:%s;base64,%s", a.MimeType, base64.StdEncoding.EncodeToString(a.Data))
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": uri},
			})
		}
		msgs = append(msgs, openAIMessage{Role: string(m.Role), Content: parts})
	}

	return json.Marshal(openAIRequest{
		Model:       mdl,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stream:      req.Stream,
	})
}

// =============================================================================
// ANTHROPIC MESSAGES SCHEMA
// =============================================================================

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

func buildAnthropicMessages(req ChatRequest, mdl string) ([]byte, error) {
	system := req.SystemPrompt
	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		// System turns fold into the top-level system field.
		if m.Role == model.RoleSystem {
			if system == "" {
				system = m.Content
			} else {
				system += "\n" + m.Content
			}
			continue
		}
		if !m.HasAttachments() {
			msgs = append(msgs, anthropicMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		blocks := []map[string]any{}
		for _, a := range m.Attachments {
			blocks = append(blocks, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": a.MimeType,
					"data":       base64.StdEncoding.EncodeToString(a.Data),
				},
			})
		}
		if m.Content != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
		}
		msgs = append(msgs, anthropicMessage{Role: string(m.Role), Content: blocks})
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic request needs at least one non-system message")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return json.Marshal(anthropicRequest{
		Model:       mdl,
		System:      system,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	})
}

// =============================================================================
// OLLAMA CHAT SCHEMA
// =============================================================================

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

func buildOllamaChat(req ChatRequest, mdl string) ([]byte, error) {
	msgs := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, ollamaMessage{Role: string(model.RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		om := ollamaMessage{Role: string(m.Role), Content: m.Content}
		for _, a := range m.Attachments {
			om.Images = append(om.Images, base64.StdEncoding.EncodeToString(a.Data))
		}
		msgs = append(msgs, om)
	}

	return json.Marshal(ollamaRequest{
		Model:    mdl,
		Messages: msgs,
		Stream:   req.Stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			TopK:        req.TopK,
			NumPredict:  req.MaxTokens,
		},
	})
}

// =============================================================================
// GEMINI CONTENTS SCHEMA
// =============================================================================

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobPart `json:"inline_data,omitempty"`
}

type geminiBlobPart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

func buildGeminiContents(req ChatRequest) ([]byte, error) {
	var system *geminiContent
	if req.SystemPrompt != "" {
		system = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	contents := make([]geminiContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == model.RoleSystem {
			if system == nil {
				system = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			} else {
				system.Parts = append(system.Parts, geminiPart{Text: m.Content})
			}
			continue
		}
		// Gemini names the assistant role "model".
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		parts := []geminiPart{}
		if m.Content != "" {
			parts = append(parts, geminiPart{Text: m.Content})
		}
		for _, a := range m.Attachments {
			parts = append(parts, geminiPart{InlineData: &geminiBlobPart{
				MimeType: a.MimeType,
				Data:     base64.StdEncoding.EncodeToString(a.Data),
			}})
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}

	var gen *geminiGenConfig
	if req.Temperature != 0 || req.MaxTokens != 0 || req.TopP != 0 || req.TopK != 0 {
		gen = &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
			TopP:            req.TopP,
			TopK:            req.TopK,
		}
	}

	return json.Marshal(geminiRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig:  gen,
	})
}

// =============================================================================
// COHERE CHAT SCHEMA
// =============================================================================

type cohereTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type cohereRequest struct {
	Message     string       `json:"message"`
	ChatHistory []cohereTurn `json:"chat_history,omitempty"`
	Model       string       `json:"model"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Preamble    string       `json:"preamble,omitempty"`
}

func buildCohereChat(req ChatRequest, mdl string) ([]byte, error) {
	// Cohere takes the latest user turn as "message" and everything
	// before it as chat_history.
	last := req.Messages[len(req.Messages)-1]
	history := make([]cohereTurn, 0, len(req.Messages)-1)
	for _, m := range req.Messages[:len(req.Messages)-1] {
		role := "USER"
		if m.Role == model.RoleAssistant {
			role = "CHATBOT"
		} else if m.Role == model.RoleSystem {
			role = "SYSTEM"
		}
		history = append(history, cohereTurn{Role: role, Message: m.Content})
	}

	return json.Marshal(cohereRequest{
		Message:     last.Content,
		ChatHistory: history,
		Model:       mdl,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Preamble:    req.SystemPrompt,
	})
}
