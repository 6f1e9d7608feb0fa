// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/echomind/internal/chat"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed = errors.New("history log closed")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	provider          TEXT NOT NULL,
	model             TEXT NOT NULL,
	prompt            TEXT NOT NULL,
	reply             TEXT NOT NULL,
	hashed            INTEGER NOT NULL DEFAULT 0,
	latency_ms        INTEGER NOT NULL DEFAULT 0,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id);
CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at);
CREATE INDEX IF NOT EXISTS idx_exchanges_provider ON exchanges(provider);
`

// =============================================================================
// LOG
// =============================================================================

// Log is a SQLite-backed record of completed exchanges across sessions.
// It implements chat.Recorder.
type Log struct {
	db *sql.DB
}

var _ chat.Recorder = (*Log)(nil)

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Record appends one completed exchange to the log.
//
// SECURITY: encrypted sessions are logged hash-only.
func (l *Log) Record(ctx context.Context, ex chat.Exchange) error {
	if l.db == nil {
		return ErrClosed
	}

	prompt := ex.Prompt
	reply := ex.Reply
	hashed := 0
	if ex.Encrypted {
		prompt = contentDigest(prompt)
		reply = contentDigest(reply)
		hashed = 1
	}

	when := ex.When
	if when.IsZero() {
		when = time.Now().UTC()
	}

	var promptTokens, completionTokens int
	if ex.Usage != nil {
		promptTokens = ex.Usage.PromptTokens
		completionTokens = ex.Usage.CompletionTokens
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO exchanges
			(id, session_id, provider, model, prompt, reply, hashed,
			 latency_ms, prompt_tokens, completion_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ex.SessionID, ex.Provider, ex.Model,
		prompt, reply, hashed,
		ex.Latency.Milliseconds(), promptTokens, completionTokens,
		when.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// contentDigest returns the hex SHA-256 of s, prefixed so hashed rows
// are distinguishable from plaintext at a glance.
func contentDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// =============================================================================
// SEARCH
// =============================================================================

// Query filters a history search. Zero-value fields match everything.
type Query struct {
	// Text is matched case-insensitively against prompt and reply.
	Text string

	// SessionID, Provider and Model filter on exact values.
	SessionID string
	Provider  string
	Model     string

	// Since and Until bound the exchange timestamp.
	Since time.Time
	Until time.Time

	// Limit caps the number of results (0 = default of 50).
	Limit int
}

// Entry is one logged exchange.
type Entry struct {
	ID               string
	SessionID        string
	Provider         string
	Model            string
	Prompt           string
	Reply            string
	Hashed           bool
	Latency          time.Duration
	PromptTokens     int
	CompletionTokens int
	When             time.Time
}

const defaultSearchLimit = 50

// Search returns logged exchanges matching q, newest first.
//
// Hash-only rows never match a text query: the digest is not the content.
func (l *Log) Search(ctx context.Context, q Query) ([]Entry, error) {
	if l.db == nil {
		return nil, ErrClosed
	}

	var (
		where []string
		args  []any
	)
	if q.Text != "" {
		where = append(where, "hashed = 0 AND (lower(prompt) LIKE ? OR lower(reply) LIKE ?)")
		pat := "%" + strings.ToLower(q.Text) + "%"
		args = append(args, pat, pat)
	}
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if q.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, q.Provider)
	}
	if q.Model != "" {
		where = append(where, "model = ?")
		args = append(args, q.Model)
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, q.Until.UTC().Format(time.RFC3339Nano))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query := `SELECT id, session_id, provider, model, prompt, reply, hashed,
		latency_ms, prompt_tokens, completion_tokens, created_at FROM exchanges`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history search failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			hashed  int
			latency int64
			created string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Provider, &e.Model,
			&e.Prompt, &e.Reply, &hashed,
			&latency, &e.PromptTokens, &e.CompletionTokens, &created); err != nil {
			return nil, fmt.Errorf("history scan failed: %w", err)
		}
		e.Hashed = hashed != 0
		e.Latency = time.Duration(latency) * time.Millisecond
		if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			e.When = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// STATISTICS
// =============================================================================

// Count is a name with an occurrence count, used for ranked listings.
type Count struct {
	Name string
	N    int
}

// Stats aggregates usage across the whole log.
type Stats struct {
	TotalExchanges   int
	TotalSessions    int
	PromptTokens     int
	CompletionTokens int
	AverageLatency   time.Duration

	// ByProvider and ByModel are sorted by descending count.
	ByProvider []Count
	ByModel    []Count

	// ActivityByDay counts exchanges per UTC day ("2006-01-02").
	ActivityByDay map[string]int
}

// Stats computes aggregate usage statistics over the log.
func (l *Log) Stats(ctx context.Context) (*Stats, error) {
	if l.db == nil {
		return nil, ErrClosed
	}

	st := &Stats{ActivityByDay: make(map[string]int)}

	row := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT session_id),
			COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM exchanges`)
	var avgLatency float64
	if err := row.Scan(&st.TotalExchanges, &st.TotalSessions,
		&st.PromptTokens, &st.CompletionTokens, &avgLatency); err != nil {
		return nil, fmt.Errorf("history stats failed: %w", err)
	}
	st.AverageLatency = time.Duration(avgLatency) * time.Millisecond

	var err error
	if st.ByProvider, err = l.countsBy(ctx, "provider"); err != nil {
		return nil, err
	}
	if st.ByModel, err = l.countsBy(ctx, "model"); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10) AS day, COUNT(*) FROM exchanges GROUP BY day`)
	if err != nil {
		return nil, fmt.Errorf("history stats failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			day string
			n   int
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("history stats scan failed: %w", err)
		}
		st.ActivityByDay[day] = n
	}
	return st, rows.Err()
}

func (l *Log) countsBy(ctx context.Context, column string) ([]Count, error) {
	// column is one of two fixed identifiers, never user input.
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM exchanges GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("history stats failed: %w", err)
	}
	defer rows.Close()

	var counts []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Name, &c.N); err != nil {
			return nil, fmt.Errorf("history stats scan failed: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].N != counts[j].N {
			return counts[i].N > counts[j].N
		}
		return counts[i].Name < counts[j].Name
	})
	return counts, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Clear deletes every logged exchange.
func (l *Log) Clear(ctx context.Context) error {
	if l.db == nil {
		return ErrClosed
	}
	_, err := l.db.ExecContext(ctx, "DELETE FROM exchanges")
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// DeleteSession removes all logged exchanges for one session.
func (l *Log) DeleteSession(ctx context.Context, sessionID string) error {
	if l.db == nil {
		return ErrClosed
	}
	_, err := l.db.ExecContext(ctx, "DELETE FROM exchanges WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session history: %w", err)
	}
	return nil
}
