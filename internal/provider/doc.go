// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider maps a single logical chat request onto the wire
// protocol of one of several remote chat completion services, and
// decodes each service's response format back into a uniform reply or
// delta sequence.
//
// The set of supported wire formats is a closed enumeration over
// Profile.Request and Profile.Stream. Translators and decoders are
// selected by switch, never by runtime plugin loading, so every
// supported format is auditable and exhaustively testable.
package provider
