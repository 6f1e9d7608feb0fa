// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode parses a buffered (non-streaming) response body into a
// ChatReply. A body that encodes an explicit provider error payload
// surfaces as ProviderError; a body missing required fields surfaces
// as SchemaError.
func Decode(body []byte, p Profile) (*ChatReply, error) {
	if err := detectErrorPayload(body, p); err != nil {
		return nil, err
	}

	switch p.Request {
	case VariantOpenAIChat:
		return decodeOpenAIChat(body, p)
	case VariantAnthropicMessages:
		return decodeAnthropicMessages(body, p)
	case VariantOllamaChat:
		return decodeOllamaChat(body, p)
	case VariantGeminiContents:
		return decodeGeminiContents(body, p)
	case VariantCohereChat:
		return decodeCohereChat(body, p)
	default:
		return nil, fmt.Errorf("unknown request variant %q", p.Request)
	}
}

// errorPayload matches the error envelope most providers emit on a
// 200 body or inside a non-2xx body.
type errorPayload struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// detectErrorPayload returns a ProviderError when the body carries an
// explicit error object, nil otherwise.
func detectErrorPayload(body []byte, p Profile) error {
	var ep errorPayload
	if err := json.Unmarshal(body, &ep); err != nil || ep.Error == nil {
		return nil
	}
	if ep.Error.Message == "" && ep.Error.Type == "" {
		return nil
	}
	msg := ep.Error.Message
	if msg == "" {
		msg = ep.Error.Type
	}
	return &ProviderError{
		Provider:   p.ID,
		Message:    msg,
		Suggestion: "Check the API documentation for this error.",
	}
}

// DecodeErrorBody maps a non-2xx HTTP response to a ProviderError,
// preferring the provider's own message when the body parses.
func DecodeErrorBody(status int, body []byte, p Profile) *ProviderError {
	msg := strings.TrimSpace(string(body))
	var ep errorPayload
	if err := json.Unmarshal(body, &ep); err == nil && ep.Error != nil && ep.Error.Message != "" {
		msg = ep.Error.Message
	}
	if msg == "" {
		msg = "Unknown error"
	}
	return NewProviderError(p.ID, status, msg)
}

// =============================================================================
// PER-VARIANT DECODERS
// =============================================================================

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func decodeOpenAIChat(body []byte, p Profile) (*ChatReply, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SchemaError{Provider: p.ID, Reason: "invalid JSON", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &SchemaError{Provider: p.ID, Reason: "response has no choices"}
	}
	reply := &ChatReply{
		Content:  resp.Choices[0].Message.Content,
		Model:    resp.Model,
		Provider: p.ID,
	}
	if resp.Usage != nil {
		reply.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return reply, nil
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func decodeAnthropicMessages(body []byte, p Profile) (*ChatReply, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SchemaError{Provider: p.ID, Reason: "invalid JSON", Err: err}
	}
	if len(resp.Content) == 0 {
		return nil, &SchemaError{Provider: p.ID, Reason: "response has no content blocks"}
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	reply := &ChatReply{
		Content:  sb.String(),
		Model:    resp.Model,
		Provider: p.ID,
	}
	if resp.Usage != nil {
		reply.Usage = &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		}
	}
	return reply, nil
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func decodeOllamaChat(body []byte, p Profile) (*ChatReply, error) {
	var resp ollamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SchemaError{Provider: p.ID, Reason: "invalid JSON", Err: err}
	}
	if resp.Message.Content == "" && !resp.Done {
		return nil, &SchemaError{Provider: p.ID, Reason: "response has no message content"}
	}
	reply := &ChatReply{
		Content:  resp.Message.Content,
		Model:    resp.Model,
		Provider: p.ID,
	}
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		reply.Usage = &Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
		}
	}
	return reply, nil
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func decodeGeminiContents(body []byte, p Profile) (*ChatReply, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SchemaError{Provider: p.ID, Reason: "invalid JSON", Err: err}
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &SchemaError{Provider: p.ID, Reason: "response has no candidates"}
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	reply := &ChatReply{
		Content:  sb.String(),
		Model:    resp.ModelVersion,
		Provider: p.ID,
	}
	if resp.UsageMetadata != nil {
		reply.Usage = &Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}
	return reply, nil
}

type cohereResponse struct {
	Text string `json:"text"`
	Meta *struct {
		BilledUnits *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

func decodeCohereChat(body []byte, p Profile) (*ChatReply, error) {
	var resp cohereResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &SchemaError{Provider: p.ID, Reason: "invalid JSON", Err: err}
	}
	if resp.Text == "" {
		return nil, &SchemaError{Provider: p.ID, Reason: "response has no text"}
	}
	reply := &ChatReply{
		Content:  resp.Text,
		Provider: p.ID,
	}
	if resp.Meta != nil && resp.Meta.BilledUnits != nil {
		reply.Usage = &Usage{
			PromptTokens:     resp.Meta.BilledUnits.InputTokens,
			CompletionTokens: resp.Meta.BilledUnits.OutputTokens,
		}
	}
	return reply, nil
}
