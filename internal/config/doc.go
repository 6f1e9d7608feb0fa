// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and persists echomind configuration.
//
// Sources, in order of precedence:
//   - ECHOMIND_API_KEY environment variable (and a local .env file)
//   - ~/.echomind/config.toml
//   - Built-in defaults
package config
