// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the conversation engine: it assembles provider
// requests from stored history, drives the translate/transport/decode
// pipeline, and appends completed exchanges back to the store. The
// user message and the assistant reply persist as one atomic pair, so
// a failed or cancelled exchange never leaves a dangling unanswered
// turn.
package chat
