// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps a cross-session log of completed exchanges in
// a local SQLite database. The log powers full-text search over past
// prompts and replies plus aggregate usage statistics.
//
// SECURITY: when a session is encrypted the log stores SHA-256 digests
// of the prompt and reply instead of their text, so the plaintext never
// leaves the encrypted session file.
package history
