// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/echomind/internal/chat"
	"github.com/jeranaias/echomind/internal/provider"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func exchange(session, providerID, model, prompt, reply string) chat.Exchange {
	return chat.Exchange{
		SessionID: session,
		Provider:  providerID,
		Model:     model,
		Prompt:    prompt,
		Reply:     reply,
		Latency:   120 * time.Millisecond,
		Usage:     &provider.Usage{PromptTokens: 10, CompletionTokens: 20},
		When:      time.Now().UTC(),
	}
}

func TestRecordAndSearch(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, exchange("work", "openai", "gpt-4", "explain goroutines", "goroutines are lightweight threads")))
	require.NoError(t, log.Record(ctx, exchange("work", "claude", "claude-3", "translate to French", "bonjour")))
	require.NoError(t, log.Record(ctx, exchange("play", "openai", "gpt-4", "write a haiku", "autumn leaves falling")))

	entries, err := log.Search(ctx, Query{Text: "goroutines"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "work", entries[0].SessionID)
	require.Equal(t, "gpt-4", entries[0].Model)
	require.False(t, entries[0].Hashed)

	entries, err = log.Search(ctx, Query{Provider: "openai"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = log.Search(ctx, Query{SessionID: "play"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "write a haiku", entries[0].Prompt)
}

func TestSearchLimitAndOrder(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		ex := exchange("s", "openai", "gpt-4", "question", "answer")
		ex.When = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, log.Record(ctx, ex))
	}

	entries, err := log.Search(ctx, Query{Limit: 3})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first.
	require.True(t, entries[0].When.After(entries[1].When))
	require.True(t, entries[1].When.After(entries[2].When))
}

func TestEncryptedExchangesAreHashed(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	ex := exchange("secret", "claude", "claude-3", "my password is hunter2", "noted")
	ex.Encrypted = true
	require.NoError(t, log.Record(ctx, ex))

	entries, err := log.Search(ctx, Query{SessionID: "secret"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Hashed)
	require.True(t, strings.HasPrefix(entries[0].Prompt, "sha256:"))
	require.NotContains(t, entries[0].Prompt, "hunter2")

	// Hash-only rows never match text search.
	entries, err = log.Search(ctx, Query{Text: "hunter2"})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStats(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, exchange("a", "openai", "gpt-4", "p1", "r1")))
	require.NoError(t, log.Record(ctx, exchange("a", "openai", "gpt-4", "p2", "r2")))
	require.NoError(t, log.Record(ctx, exchange("b", "claude", "claude-3", "p3", "r3")))

	st, err := log.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, st.TotalExchanges)
	require.Equal(t, 2, st.TotalSessions)
	require.Equal(t, 30, st.PromptTokens)
	require.Equal(t, 60, st.CompletionTokens)
	require.Equal(t, 120*time.Millisecond, st.AverageLatency)

	require.Equal(t, []Count{{Name: "openai", N: 2}, {Name: "claude", N: 1}}, st.ByProvider)
	require.Equal(t, []Count{{Name: "gpt-4", N: 2}, {Name: "claude-3", N: 1}}, st.ByModel)

	day := time.Now().UTC().Format("2006-01-02")
	require.Equal(t, 3, st.ActivityByDay[day])
}

func TestClearAndDeleteSession(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, exchange("a", "openai", "gpt-4", "p", "r")))
	require.NoError(t, log.Record(ctx, exchange("b", "openai", "gpt-4", "p", "r")))

	require.NoError(t, log.DeleteSession(ctx, "a"))
	st, err := log.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.TotalExchanges)

	require.NoError(t, log.Clear(ctx))
	st, err = log.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, st.TotalExchanges)
}

func TestClosedLogRejectsOperations(t *testing.T) {
	log := openTestLog(t)
	require.NoError(t, log.Close())

	require.ErrorIs(t, log.Record(context.Background(), exchange("a", "p", "m", "q", "r")), ErrClosed)
	_, err := log.Search(context.Background(), Query{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "history.db")
	log, err := Open(path)
	require.NoError(t, err)
	defer log.Close()
	require.NoError(t, log.Record(context.Background(), exchange("s", "p", "m", "q", "r")))
}
