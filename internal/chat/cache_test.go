// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/jeranaias/echomind/internal/model"
	"github.com/jeranaias/echomind/internal/provider"
)

func cacheReq(providerID, text string) provider.ChatRequest {
	return provider.ChatRequest{
		ProviderID:  providerID,
		Model:       "m",
		Temperature: 0.7,
		Messages:    []model.Message{{Role: model.RoleUser, Content: text}},
	}
}

func TestCachePutGet(t *testing.T) {
	c := newReplyCache()
	req := cacheReq("openai", "hello")

	if _, ok := c.get(req); ok {
		t.Error("empty cache should miss")
	}

	c.put(req, provider.ChatReply{Content: "world"})
	got, ok := c.get(req)
	if !ok || got.Content != "world" {
		t.Errorf("get = %+v, %v", got, ok)
	}
}

func TestCacheKeySensitivity(t *testing.T) {
	base := cacheReq("openai", "hello")

	diffProvider := cacheReq("mistral", "hello")
	diffText := cacheReq("openai", "goodbye")
	diffTemp := base
	diffTemp.Temperature = 0.2

	k := cacheKey(base)
	for name, other := range map[string]provider.ChatRequest{
		"provider":    diffProvider,
		"text":        diffText,
		"temperature": diffTemp,
	} {
		if cacheKey(other) == k {
			t.Errorf("key collision on differing %s", name)
		}
	}

	if cacheKey(base) != cacheKey(cacheReq("openai", "hello")) {
		t.Error("identical requests must share a key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := newReplyCache()
	req := cacheReq("openai", "hello")
	c.put(req, provider.ChatReply{Content: "x"})

	// Force the entry past its TTL.
	c.mu.Lock()
	for k, e := range c.entries {
		e.expires = time.Now().Add(-time.Second)
		c.entries[k] = e
	}
	c.mu.Unlock()

	if _, ok := c.get(req); ok {
		t.Error("expired entry must miss")
	}
}

func TestCacheEviction(t *testing.T) {
	c := newReplyCache()
	for i := 0; i < cacheMaxEntries+10; i++ {
		c.put(cacheReq("openai", fmt.Sprintf("prompt-%d", i)), provider.ChatReply{})
	}
	if len(c.entries) > cacheMaxEntries {
		t.Errorf("cache grew to %d entries, cap is %d", len(c.entries), cacheMaxEntries)
	}
}
