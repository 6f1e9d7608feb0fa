// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// SaltSize is the PBKDF2 salt length in bytes.
	SaltSize = 16

	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12

	// KDFIterations is the PBKDF2-SHA-256 iteration count.
	// SECURITY: matches the OWASP 2023 recommendation; lowering it
	// silently weakens every encrypted session on disk.
	KDFIterations = 600_000
)

// ErrDecryptFailed is returned for any decryption failure: wrong
// passphrase, truncated data, or tampered ciphertext.
var ErrDecryptFailed = errors.New("decryption failed: wrong passphrase or corrupted data")

// DeriveKey stretches a passphrase into an AES-256 key using
// PBKDF2-SHA-256. The same passphrase and salt always produce the
// same key.
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, KDFIterations, KeySize, sha256.New)
}

// GenerateSalt returns a fresh random salt for key derivation.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// Sealer performs authenticated encryption with a derived key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce || ciphertext || tag.
// Each call uses a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. Any authentication failure
// returns ErrDecryptFailed.
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	if len(blob) < NonceSize+s.aead.Overhead() {
		return nil, ErrDecryptFailed
	}
	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// ZeroBytes overwrites sensitive material in place. Best effort only;
// the GC may have copied the slice already.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
