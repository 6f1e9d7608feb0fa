// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the conversation data types shared across the
// application: messages, attachments, and the conversation state that
// providers consume and storage persists.
package model
