// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Attachment is a binary payload carried alongside a message, typically
// an image for multimodal providers. Data is raw bytes; encoding to the
// provider's wire format (base64, data URI) happens at translation time.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Message is a single conversation turn.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// NewMessage builds a message with a fresh ID and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func NewSystemMessage(content string) Message    { return NewMessage(RoleSystem, content) }
func NewUserMessage(content string) Message      { return NewMessage(RoleUser, content) }
func NewAssistantMessage(content string) Message { return NewMessage(RoleAssistant, content) }

// HasAttachments reports whether the message carries binary payloads.
func (m Message) HasAttachments() bool { return len(m.Attachments) > 0 }
