// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides the sealing primitives for encrypted
// conversation persistence: passphrase-based key derivation and
// authenticated encryption of session payloads.
//
// SECURITY: decryption is fail-closed. A wrong passphrase, a truncated
// blob, and a tampered ciphertext are indistinguishable to callers;
// all surface as ErrDecryptFailed with no partial plaintext.
package security
