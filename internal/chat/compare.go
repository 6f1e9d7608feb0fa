// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/echomind/internal/provider"
	"github.com/jeranaias/echomind/internal/transport"
)

// CompareResult is one provider's outcome in comparison mode.
type CompareResult struct {
	Provider string
	Reply    *provider.ChatReply
	Err      error
}

// Compare sends one prompt to several providers concurrently and
// collects every outcome. Each provider runs an independent stateless
// exchange; there is no ordering guarantee between them, and nothing
// is persisted. Per-provider failures land in the result slice rather
// than aborting the whole comparison.
func Compare(ctx context.Context, client *transport.Client, cands []Candidate, p Prompt) []CompareResult {
	results := make([]CompareResult, len(cands))

	g, ctx := errgroup.WithContext(ctx)
	for i, cand := range cands {
		i, cand := i, cand
		g.Go(func() error {
			engine := NewEngine(nil, client, cand, WithoutCache())
			reply, err := engine.Ask(ctx, p)
			results[i] = CompareResult{Provider: cand.Profile.ID, Reply: reply, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}
