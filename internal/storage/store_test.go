// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/echomind/internal/model"
	"github.com/jeranaias/echomind/internal/security"
)

func newPlainStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLoadMissingReturnsEmptyState(t *testing.T) {
	s := newPlainStore(t)

	state, err := s.Load("never-seen")
	require.NoError(t, err)
	assert.Equal(t, "never-seen", state.SessionID)
	assert.Empty(t, state.Messages)
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	s := newPlainStore(t)

	_, err := s.Append("work", model.NewUserMessage("question"), model.NewAssistantMessage("answer"))
	require.NoError(t, err)

	state, err := s.Load("work")
	require.NoError(t, err)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, model.RoleUser, state.Messages[0].Role)
	assert.Equal(t, "answer", state.Messages[1].Content)

	// Second append extends, not replaces.
	_, err = s.Append("work", model.NewUserMessage("followup"))
	require.NoError(t, err)
	state, err = s.Load("work")
	require.NoError(t, err)
	assert.Len(t, state.Messages, 3)
}

func TestClearKeepsIdentity(t *testing.T) {
	s := newPlainStore(t)
	_, err := s.Append("proj", model.NewUserMessage("hi"))
	require.NoError(t, err)

	require.NoError(t, s.Clear("proj"))
	state, err := s.Load("proj")
	require.NoError(t, err)
	assert.Equal(t, "proj", state.SessionID)
	assert.Empty(t, state.Messages)
}

func TestInvalidSessionID(t *testing.T) {
	s := newPlainStore(t)
	for _, id := range []string{"../etc/passwd", "", "a/b", ".hidden"} {
		_, err := s.Load(id)
		assert.Error(t, err, "id %q should be rejected", id)
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, WithEncryption(PassphraseKeyFunc([]byte("hunter2"))))
	require.NoError(t, err)

	_, err = s.Append("secret", model.NewUserMessage("classified question"))
	require.NoError(t, err)

	// On-disk bytes must not leak plaintext.
	raw, err := os.ReadFile(filepath.Join(dir, "secret"+sessionExt))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "classified")

	state, err := s.Load("secret")
	require.NoError(t, err)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "classified question", state.Messages[0].Content)
}

func TestEncryptedWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, WithEncryption(PassphraseKeyFunc([]byte("right"))))
	require.NoError(t, err)
	_, err = s.Append("secret", model.NewUserMessage("x"))
	require.NoError(t, err)

	wrong, err := NewStore(dir, WithEncryption(PassphraseKeyFunc([]byte("wrong"))))
	require.NoError(t, err)
	_, err = wrong.Load("secret")
	require.ErrorIs(t, err, security.ErrDecryptFailed)
}

func TestEncryptedFileWithoutKey(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, WithEncryption(PassphraseKeyFunc([]byte("p"))))
	require.NoError(t, err)
	_, err = s.Append("secret", model.NewUserMessage("x"))
	require.NoError(t, err)

	plain, err := NewStore(dir)
	require.NoError(t, err)
	_, err = plain.Load("secret")
	require.ErrorIs(t, err, ErrEncrypted)
}

func TestCrashMidWriteLeavesPreviousState(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	_, err = s.Append("durable", model.NewUserMessage("committed"))
	require.NoError(t, err)

	// Simulate a crash after the temp file is written but before the
	// rename: a stray temp file next to the session.
	stray := filepath.Join(dir, ".tmp-12345")
	require.NoError(t, os.WriteFile(stray, []byte("partial garbage"), 0600))

	state, err := s.Load("durable")
	require.NoError(t, err)
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "committed", state.Messages[0].Content)
}

func TestCorruptFileSurfacesError(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad"+sessionExt), []byte("not a session"), 0600))
	_, err = s.Load("bad")
	require.ErrorIs(t, err, ErrBadFormat)
}

func TestConcurrentAppendsAllSurvive(t *testing.T) {
	s := newPlainStore(t)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Append("shared", model.NewUserMessage("msg"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := s.Load("shared")
	require.NoError(t, err)
	assert.Len(t, state.Messages, writers, "every concurrent append must land")
}

func TestLockContentionSurfacesErrSessionLocked(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	// A foreign process holds the lock for longer than our retries.
	lockPath := filepath.Join(dir, "busy"+sessionExt+".lock")
	require.NoError(t, os.WriteFile(lockPath, nil, 0600))
	defer os.Remove(lockPath)

	_, err = s.Append("busy", model.NewUserMessage("blocked"))
	require.ErrorIs(t, err, ErrSessionLocked)

	// Nothing was persisted.
	state, err := s.Load("busy")
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
}

func TestListOrdersByUpdate(t *testing.T) {
	s := newPlainStore(t)
	_, err := s.Append("older", model.NewUserMessage("a"))
	require.NoError(t, err)
	_, err = s.Append("newer", model.NewUserMessage("b"))
	require.NoError(t, err)

	infos, err := s.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	ids := []string{infos[0].ID, infos[1].ID}
	assert.Contains(t, ids, "older")
	assert.Contains(t, ids, "newer")
}

func TestDelete(t *testing.T) {
	s := newPlainStore(t)
	_, err := s.Append("gone", model.NewUserMessage("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete("gone"))
	state, err := s.Load("gone")
	require.NoError(t, err)
	assert.Empty(t, state.Messages)

	// Deleting a missing session is not an error.
	require.NoError(t, s.Delete("gone"))
}
