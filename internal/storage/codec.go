// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/echomind/internal/model"
	"github.com/jeranaias/echomind/internal/security"
)

// File layout: a fixed header (magic, format version, algorithm id)
// followed by one length-prefixed payload. Plaintext payloads are the
// JSON-serialized conversation; encrypted payloads are the KDF salt
// followed by a sealed blob whose plaintext is the same JSON.
//
//	magic   [4]byte "EMCS"
//	version uint8   1
//	algo    uint8   0 = plaintext, 1 = AES-256-GCM
//	(algo 1 only) salt [16]byte
//	length  uint32  big endian
//	payload [length]byte

var fileMagic = [4]byte{'E', 'M', 'C', 'S'}

const (
	formatVersion = 1

	algoPlain  = 0
	algoAESGCM = 1
)

// ErrBadFormat indicates a session file that does not parse as any
// known layout.
var ErrBadFormat = errors.New("session file has unknown format")

// ErrEncrypted indicates an encrypted session opened by a store with
// no key configured.
var ErrEncrypted = errors.New("session is encrypted and no key is configured")

func encodeState(state *model.ConversationState, sealer *security.Sealer, salt []byte) ([]byte, error) {
	plain, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing session: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(fileMagic[:])
	buf.WriteByte(formatVersion)

	if sealer == nil {
		buf.WriteByte(algoPlain)
		if err := writePayload(&buf, plain); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	if len(salt) != security.SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", security.SaltSize, len(salt))
	}
	sealed, err := sealer.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("sealing session: %w", err)
	}
	buf.WriteByte(algoAESGCM)
	buf.Write(salt)
	if err := writePayload(&buf, sealed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePayload(buf *bytes.Buffer, payload []byte) error {
	if len(payload) > 1<<31-1 {
		return errors.New("session payload too large")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)
	return nil
}

// decodeState parses a session file. keyFn derives the sealing key
// from the file's salt; a nil keyFn on an encrypted file returns
// ErrEncrypted.
func decodeState(raw []byte, keyFn KeyFunc) (*model.ConversationState, error) {
	r := bytes.NewReader(raw)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != fileMagic {
		return nil, ErrBadFormat
	}
	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrBadFormat
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadFormat, version)
	}
	algo, err := r.ReadByte()
	if err != nil {
		return nil, ErrBadFormat
	}

	var plain []byte
	switch algo {
	case algoPlain:
		plain, err = readPayload(r)
		if err != nil {
			return nil, err
		}
	case algoAESGCM:
		if keyFn == nil {
			return nil, ErrEncrypted
		}
		salt := make([]byte, security.SaltSize)
		if _, err := io.ReadFull(r, salt); err != nil {
			return nil, ErrBadFormat
		}
		sealed, err := readPayload(r)
		if err != nil {
			return nil, err
		}
		key, err := keyFn(salt)
		if err != nil {
			return nil, fmt.Errorf("deriving session key: %w", err)
		}
		sealer, err := security.NewSealer(key)
		security.ZeroBytes(key)
		if err != nil {
			return nil, err
		}
		plain, err = sealer.Open(sealed)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: algorithm %d", ErrBadFormat, algo)
	}

	var state model.ConversationState
	if err := json.Unmarshal(plain, &state); err != nil {
		return nil, fmt.Errorf("deserializing session: %w", err)
	}
	return &state, nil
}

func readPayload(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, ErrBadFormat
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) != r.Len() {
		return nil, fmt.Errorf("%w: payload length mismatch", ErrBadFormat)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrBadFormat
	}
	return payload, nil
}
