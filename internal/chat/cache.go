// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/jeranaias/echomind/internal/provider"
)

const (
	cacheTTL        = 5 * time.Minute
	cacheMaxEntries = 100
)

// replyCache memoizes non-streaming replies for identical requests.
// PERFORMANCE: repeated identical prompts within the TTL skip the
// network round trip entirely. Streaming requests bypass the cache.
type replyCache struct {
	mu      sync.Mutex
	entries map[uint64]cacheEntry
}

type cacheEntry struct {
	reply   provider.ChatReply
	expires time.Time
}

func newReplyCache() *replyCache {
	return &replyCache{entries: map[uint64]cacheEntry{}}
}

// key hashes everything that affects the reply: provider, model,
// generation parameters, and the full message sequence.
func cacheKey(req provider.ChatRequest) uint64 {
	h := fnv.New64a()
	h.Write([]byte(req.ProviderID))
	h.Write([]byte{0})
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(req.Temperature, 'g', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.MaxTokens)))
	h.Write([]byte{0})
	h.Write([]byte(req.SystemPrompt))
	for _, m := range req.Messages {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return h.Sum64()
}

func (c *replyCache) get(req provider.ChatRequest) (provider.ChatReply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(req)]
	if !ok || time.Now().After(e.expires) {
		if ok {
			delete(c.entries, cacheKey(req))
		}
		return provider.ChatReply{}, false
	}
	return e.reply, true
}

func (c *replyCache) put(req provider.ChatRequest, reply provider.ChatReply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= cacheMaxEntries {
		c.evictLocked()
	}
	c.entries[cacheKey(req)] = cacheEntry{reply: reply, expires: time.Now().Add(cacheTTL)}
}

// evictLocked drops expired entries first, then the soonest-expiring
// live entry if still full.
func (c *replyCache) evictLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < cacheMaxEntries {
		return
	}
	var oldest uint64
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expires.Before(oldestAt) {
			oldest, oldestAt, first = k, e.expires, false
		}
	}
	delete(c.entries, oldest)
}
