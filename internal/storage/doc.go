// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversation sessions, one file per
// session id. Writes are atomic (temp file, fsync, rename) and
// serialized by a per-session lock, so a crash mid-write never
// corrupts the previous valid state and concurrent turns against the
// same session queue up instead of interleaving. Files are optionally
// sealed with authenticated encryption.
package storage
