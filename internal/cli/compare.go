// compare.go - Compare command handler.
//
// Sends one prompt to several providers concurrently and prints each
// reply side by side. Useful for picking a provider or sanity-checking
// an answer.
//
// Examples:
//   echomind compare --providers openai,claude "which is faster?"
//   echo 'review this' | echomind --compare openai,mistral,ollama
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/echomind/internal/chat"
	"github.com/jeranaias/echomind/internal/provider"
)

// HandleCompare fans one prompt out to every listed provider.
func HandleCompare(args Args) error {
	if args.CompareList == "" {
		return errors.New("compare requires --providers id1,id2,...")
	}

	input, err := gatherInput(args)
	if err != nil {
		return err
	}
	if input == "" {
		return errors.New("no input provided for comparison; pass a query or pipe input")
	}

	app, err := newApp(args)
	if err != nil {
		return err
	}
	prompt, err := app.buildPrompt(args, input)
	if err != nil {
		return err
	}
	// Model is provider-specific; let each profile pick its default
	// unless the user forced one.
	if args.Model == "" {
		prompt.Model = ""
	}

	var cands []chat.Candidate
	for _, id := range strings.Split(args.CompareList, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		p, ok := provider.Lookup(id)
		if !ok {
			return fmt.Errorf("unknown provider %q", id)
		}
		cands = append(cands, chat.Candidate{Profile: p, APIKey: app.Config.API.APIKey})
	}
	if len(cands) < 2 {
		return errors.New("compare needs at least two providers")
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Timeout())
	defer cancel()

	results := chat.Compare(ctx, app.Client, cands, prompt)

	for i, res := range results {
		if i > 0 {
			fmt.Println()
		}
		header := fmt.Sprintf("=== %s ===", res.Provider)
		if res.Err != nil {
			fmt.Println(ErrorStyle.Render(header))
			fmt.Println(ErrorStyle.Render("  error: ") + res.Err.Error())
			continue
		}
		fmt.Println(TitleStyle.Render(header))
		fmt.Println(DimStyle.Render(fmt.Sprintf("model: %s  latency: %s",
			res.Reply.Model, res.Reply.Latency.Round(time.Millisecond))))
		if IsStdoutTTY() {
			fmt.Print(renderMarkdown(res.Reply.Content))
		} else {
			fmt.Println(res.Reply.Content)
		}
	}
	return nil
}
