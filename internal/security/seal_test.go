// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSealer(t *testing.T, passphrase string) (*Sealer, []byte) {
	t.Helper()
	salt, err := GenerateSalt()
	require.NoError(t, err)
	key := DeriveKey([]byte(passphrase), salt)
	s, err := NewSealer(key)
	require.NoError(t, err)
	return s, salt
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, _ := newTestSealer(t, "correct horse battery staple")

	plaintext := []byte(`{"session_id":"abc","messages":[]}`)
	blob, err := s.Seal(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "session_id", "ciphertext must not leak plaintext")

	got, err := s.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, _ := newTestSealer(t, "pass")
	a, err := s.Seal([]byte("same input"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("same input"))
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b), "two seals of identical plaintext must differ")
}

func TestOpenWrongPassphrase(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	good, err := NewSealer(DeriveKey([]byte("right"), salt))
	require.NoError(t, err)
	bad, err := NewSealer(DeriveKey([]byte("wrong"), salt))
	require.NoError(t, err)

	blob, err := good.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = bad.Open(blob)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpenTamperedCiphertext(t *testing.T) {
	s, _ := newTestSealer(t, "pass")
	blob, err := s.Seal([]byte("payload"))
	require.NoError(t, err)

	for _, idx := range []int{0, NonceSize, len(blob) - 1} {
		flipped := append([]byte(nil), blob...)
		flipped[idx] ^= 0x01
		_, err := s.Open(flipped)
		require.ErrorIs(t, err, ErrDecryptFailed, "bit flip at %d must fail", idx)
	}
}

func TestOpenTruncated(t *testing.T) {
	s, _ := newTestSealer(t, "pass")
	blob, err := s.Seal([]byte("payload"))
	require.NoError(t, err)

	for _, n := range []int{0, 5, NonceSize, len(blob) - 1} {
		_, err := s.Open(blob[:n])
		require.ErrorIs(t, err, ErrDecryptFailed, "truncation to %d must fail", n)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := DeriveKey([]byte("pass"), salt)
	k2 := DeriveKey([]byte("pass"), salt)
	assert.Equal(t, k1, k2)

	k3 := DeriveKey([]byte("pass"), []byte("fedcba9876543210"))
	assert.NotEqual(t, k1, k3, "different salts must derive different keys")
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	_, err := NewSealer(make([]byte, 16))
	require.Error(t, err)
}

func TestZeroBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	ZeroBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
