// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/echomind/internal/model"
	"github.com/jeranaias/echomind/internal/security"
	"github.com/jeranaias/echomind/internal/util"
)

const (
	sessionExt = ".conv"

	// Lock acquisition retries with linear backoff before giving up.
	lockRetries = 10
	lockBackoff = 25 * time.Millisecond
)

// ErrSessionLocked indicates another writer holds the session lock
// and bounded retries were exhausted.
var ErrSessionLocked = errors.New("session is locked by another process")

// validSessionID guards against path traversal in session ids.
// SECURITY: session ids become file names.
var validSessionID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// KeyFunc derives the sealing key from a file's salt. The store never
// persists key material; it only holds this derivation callback.
type KeyFunc func(salt []byte) ([]byte, error)

// PassphraseKeyFunc builds a KeyFunc from a fixed passphrase.
func PassphraseKeyFunc(passphrase []byte) KeyFunc {
	return func(salt []byte) ([]byte, error) {
		return security.DeriveKey(passphrase, salt), nil
	}
}

// Store owns the session files under one directory. At most one
// writer mutates a given session at a time: in-process callers
// serialize on a per-session mutex, and a lock file guards against
// other processes.
type Store struct {
	dir   string
	keyFn KeyFunc // nil = plaintext persistence

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithEncryption seals every session file, deriving the key per file
// via keyFn.
func WithEncryption(keyFn KeyFunc) Option {
	return func(s *Store) { s.keyFn = keyFn }
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	s := &Store{
		dir:   dir,
		locks: map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Encrypted reports whether the store seals session files.
func (s *Store) Encrypted() bool { return s.keyFn != nil }

func (s *Store) path(sessionID string) (string, error) {
	if !validSessionID.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.dir, sessionID+sessionExt), nil
}

// sessionMutex returns the in-process mutex for a session id.
func (s *Store) sessionMutex(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[sessionID] = m
	}
	return m
}

// acquireFileLock takes the cross-process lock file with bounded
// backoff, returning ErrSessionLocked when retries run out.
func (s *Store) acquireFileLock(path string) (release func(), err error) {
	lockPath := path + ".lock"
	for attempt := 0; attempt < lockRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * lockBackoff)
		}
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("creating lock file: %w", err)
		}
		f.Close()
		return func() { os.Remove(lockPath) }, nil
	}
	return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrSessionLocked)
}

// Load reads a session. A missing file returns a fresh empty state
// carrying the requested id, not an error.
func (s *Store) Load(sessionID string) (*model.ConversationState, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			now := time.Now().UTC()
			return &model.ConversationState{
				SessionID: sessionID,
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		}
		return nil, fmt.Errorf("reading session %s: %w", sessionID, err)
	}
	state, err := decodeState(raw, s.keyFn)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return state, nil
}

// Append adds messages to a session and persists atomically. The
// whole batch lands in one write: either every message is durable or
// the file is untouched. Returns the updated state.
func (s *Store) Append(sessionID string, msgs ...model.Message) (*model.ConversationState, error) {
	var out *model.ConversationState
	err := s.mutate(sessionID, func(state *model.ConversationState) error {
		state.Append(msgs...)
		out = state
		return nil
	})
	return out, err
}

// Clear truncates a session to empty, keeping its identity.
func (s *Store) Clear(sessionID string) error {
	return s.mutate(sessionID, func(state *model.ConversationState) error {
		state.Clear()
		return nil
	})
}

// mutate runs fn over the loaded state under the session locks and
// persists the result atomically.
func (s *Store) mutate(sessionID string, fn func(*model.ConversationState) error) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}

	m := s.sessionMutex(sessionID)
	m.Lock()
	defer m.Unlock()

	release, err := s.acquireFileLock(path)
	if err != nil {
		return err
	}
	defer release()

	state, err := s.Load(sessionID)
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.write(path, state)
}

func (s *Store) write(path string, state *model.ConversationState) error {
	var sealer *security.Sealer
	var salt []byte
	if s.keyFn != nil {
		var err error
		salt, err = security.GenerateSalt()
		if err != nil {
			return err
		}
		key, err := s.keyFn(salt)
		if err != nil {
			return fmt.Errorf("deriving session key: %w", err)
		}
		sealer, err = security.NewSealer(key)
		security.ZeroBytes(key)
		if err != nil {
			return err
		}
	}

	encoded, err := encodeState(state, sealer, salt)
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, encoded, 0600); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

// SessionInfo describes one stored session without decrypting it.
type SessionInfo struct {
	ID        string
	Path      string
	Size      int64
	UpdatedAt time.Time
}

// List enumerates stored sessions, most recently updated first.
func (s *Store) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	var infos []SessionInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, sessionExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, SessionInfo{
			ID:        strings.TrimSuffix(name, sessionExt),
			Path:      filepath.Join(s.dir, name),
			Size:      fi.Size(),
			UpdatedAt: fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Delete removes a session file. Plain file removal; no shredding.
func (s *Store) Delete(sessionID string) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}
