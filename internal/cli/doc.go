// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the echomind command line: flag parsing, the
// one-shot ask path, the interactive chat REPL, and the session,
// history, compare and config subcommands.
//
// USABILITY: colored output is TTY-gated and respects NO_COLOR.
package cli
