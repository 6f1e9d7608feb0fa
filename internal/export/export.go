// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders a conversation into portable formats: plain
// text, markdown, or structured JSON.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeranaias/echomind/internal/model"
)

// Format selects the output rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q (text, markdown, json)", s)
	}
}

// Export renders the conversation in the requested format.
func Export(state *model.ConversationState, format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return exportText(state), nil
	case FormatMarkdown:
		return exportMarkdown(state), nil
	case FormatJSON:
		return json.MarshalIndent(state, "", "  ")
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func exportText(state *model.ConversationState) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Session: %s\n", state.SessionID)
	fmt.Fprintf(&buf, "Updated: %s\n\n", state.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	for _, m := range state.Messages {
		fmt.Fprintf(&buf, "[%s] %s\n", m.Role, m.Timestamp.Format("15:04:05"))
		buf.WriteString(m.Content)
		buf.WriteString("\n\n")
	}
	return buf.Bytes()
}

func exportMarkdown(state *model.ConversationState) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Conversation %s\n\n", state.SessionID)
	fmt.Fprintf(&buf, "_Updated %s_\n\n", state.UpdatedAt.Format("2006-01-02 15:04"))
	for _, m := range state.Messages {
		switch m.Role {
		case model.RoleUser:
			buf.WriteString("## You\n\n")
		case model.RoleAssistant:
			buf.WriteString("## Assistant\n\n")
		case model.RoleSystem:
			buf.WriteString("## System\n\n")
		default:
			fmt.Fprintf(&buf, "## %s\n\n", m.Role)
		}
		buf.WriteString(m.Content)
		buf.WriteString("\n\n")
		if m.HasAttachments() {
			fmt.Fprintf(&buf, "_(%d attachment(s))_\n\n", len(m.Attachments))
		}
	}
	return buf.Bytes()
}
