// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// ConversationState is the full ordered transcript of one session.
// Mutating methods keep UpdatedAt current; callers own locking.
type ConversationState struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation with a fresh session ID.
func NewConversation() *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		SessionID: uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds messages to the end of the transcript.
func (c *ConversationState) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
	c.UpdatedAt = time.Now().UTC()
}

// Clear drops all messages but keeps the session identity.
func (c *ConversationState) Clear() {
	c.Messages = nil
	c.UpdatedAt = time.Now().UTC()
}

// Len returns the number of messages in the transcript.
func (c *ConversationState) Len() int { return len(c.Messages) }

// Last returns the most recent message, or false for an empty transcript.
func (c *ConversationState) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Clone returns a deep copy. Engine code snapshots state before a
// provider call so a failed exchange never leaves partial messages.
func (c *ConversationState) Clone() *ConversationState {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	for i := range out.Messages {
		if atts := out.Messages[i].Attachments; len(atts) > 0 {
			cp := make([]Attachment, len(atts))
			for j, att := range atts {
				cp[j] = att
				cp[j].Data = append([]byte(nil), att.Data...)
			}
			out.Messages[i].Attachments = cp
		}
	}
	return &out
}
