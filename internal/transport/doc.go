// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport issues provider HTTP requests with pooled
// connections, rate limiting, and response size caps, and maps
// network and HTTP failures onto the typed error taxonomy. The actual
// HTTP client is injectable so decoding logic stays testable without
// real network calls.
package transport
