// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

func TestNewMessage(t *testing.T) {
	m := NewUserMessage("hello")
	if m.ID == "" {
		t.Error("expected non-empty ID")
	}
	if m.Role != RoleUser {
		t.Errorf("role = %q, want %q", m.Role, RoleUser)
	}
	if m.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("tool").Valid() {
		t.Error("unknown role should be invalid")
	}
}

func TestConversationAppendAndLast(t *testing.T) {
	c := NewConversation()
	if _, ok := c.Last(); ok {
		t.Error("empty conversation should have no last message")
	}

	c.Append(NewUserMessage("q"), NewAssistantMessage("a"))
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	last, ok := c.Last()
	if !ok || last.Role != RoleAssistant {
		t.Errorf("last = %+v, want assistant message", last)
	}
}

func TestConversationClear(t *testing.T) {
	c := NewConversation()
	c.Append(NewUserMessage("q"))
	id := c.SessionID
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("len after clear = %d, want 0", c.Len())
	}
	if c.SessionID != id {
		t.Error("clear must keep the session ID")
	}
}

func TestConversationCloneIsDeep(t *testing.T) {
	c := NewConversation()
	m := NewUserMessage("look")
	m.Attachments = []Attachment{{MimeType: "image/png", Data: []byte{1, 2, 3}}}
	c.Append(m)

	cp := c.Clone()
	cp.Messages[0].Content = "changed"
	cp.Messages[0].Attachments[0].Data[0] = 9
	cp.Append(NewAssistantMessage("extra"))

	if c.Messages[0].Content != "look" {
		t.Error("clone mutation leaked into original content")
	}
	if c.Messages[0].Attachments[0].Data[0] != 1 {
		t.Error("clone mutation leaked into original attachment")
	}
	if c.Len() != 1 {
		t.Errorf("original len = %d, want 1", c.Len())
	}
}
