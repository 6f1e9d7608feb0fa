// ask.go - One-shot ask command handler.
//
// USABILITY: Markdown rendering for terminal output
//
// Handles the default echomind invocation: read the question from the
// arguments or from piped stdin, send it, print the reply.
//
// Examples:
//   echo 'Hello, how are you?' | echomind
//   cat main.go | echomind "find the bug"
//   echomind ask "explain quantum computing" --provider openai
//   echo 'write a fizzbuzz' | echomind --coder --output fizz.py
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/echomind/internal/chat"
	"github.com/jeranaias/echomind/internal/provider"
	"github.com/jeranaias/echomind/internal/storage"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer is the shared glamour renderer for reply output.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// HandleAsk runs a one-shot exchange.
func HandleAsk(args Args) error {
	input, err := gatherInput(args)
	if err != nil {
		return err
	}
	if input == "" {
		PrintUsage()
		return nil
	}

	app, err := newApp(args)
	if err != nil {
		return err
	}

	prompt, err := app.buildPrompt(args, input)
	if err != nil {
		return err
	}

	var store *storage.Store
	if args.Session != "" {
		if store, err = app.openStore(); err != nil {
			return err
		}
	}
	recorder, err := openHistory()
	if err == nil {
		defer recorder.Close()
	} else if args.Verbose {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("history log unavailable: "+err.Error()))
	}

	var engine *chat.Engine
	if err == nil {
		engine = app.newEngine(store, recorder)
	} else {
		engine = app.newEngine(store, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Timeout())
	defer cancel()

	if app.Config.Defaults.Stream && args.Output == "" {
		return streamReply(ctx, engine, args, prompt)
	}

	reply, err := engine.Send(ctx, args.Session, prompt)
	if err != nil {
		return err
	}
	return emitReply(args, reply)
}

// gatherInput combines piped stdin with the positional query. Piped
// text is the subject; the query, when both are present, is the
// instruction appended after it.
func gatherInput(args Args) (string, error) {
	query := strings.TrimSpace(args.Query)
	if IsTTY() {
		return query, nil
	}

	piped, err := readStdin()
	if err != nil {
		return "", err
	}
	piped = strings.TrimSpace(piped)
	switch {
	case piped == "":
		return query, nil
	case query == "":
		return piped, nil
	default:
		return piped + "\n\n" + query, nil
	}
}

// pumpDeltas writes deltas from sess to w until the final one. A
// mid-stream failure closes the session and returns the attributed
// provider or transport error; falling through to Finalize would
// mask it behind a generic incomplete-stream error.
func pumpDeltas(sess *chat.StreamSession, w io.Writer) error {
	for {
		delta, err := sess.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			sess.Close()
			return err
		}
		fmt.Fprint(w, delta.Text)
		if delta.Final {
			return nil
		}
	}
}

// streamReply prints deltas as they arrive, then finalizes.
func streamReply(ctx context.Context, engine *chat.Engine, args Args, prompt chat.Prompt) error {
	sess, err := engine.Stream(ctx, args.Session, prompt)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := pumpDeltas(sess, os.Stdout); err != nil {
		fmt.Println()
		return err
	}
	fmt.Println()

	reply, err := sess.Finalize(ctx)
	if err != nil {
		return err
	}
	if sess.Incomplete() {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("warning: response ended before the provider finished"))
	}
	printReplyMeta(args, reply)
	return nil
}

// emitReply writes a non-streamed reply to the output file or stdout.
func emitReply(args Args, reply *provider.ChatReply) error {
	content := reply.Content
	if args.Coder {
		content = stripCodeFences(content)
	}

	if args.Output != "" {
		if err := os.WriteFile(args.Output, []byte(content+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !args.Quiet {
			fmt.Println(SuccessStyle.Render("Saved: ") + args.Output)
		}
		printReplyMeta(args, reply)
		return nil
	}

	if IsStdoutTTY() && !args.Coder {
		fmt.Print(renderMarkdown(content))
	} else {
		fmt.Println(content)
	}
	printReplyMeta(args, reply)
	return nil
}

// printReplyMeta prints provider/model/latency detail in verbose mode.
func printReplyMeta(args Args, reply *provider.ChatReply) {
	if !args.Verbose {
		return
	}
	meta := fmt.Sprintf("[%s/%s in %s]", reply.Provider, reply.Model,
		reply.Latency.Round(time.Millisecond))
	if reply.Usage != nil {
		meta += fmt.Sprintf(" tokens: %d in / %d out",
			reply.Usage.PromptTokens, reply.Usage.CompletionTokens)
	}
	fmt.Fprintln(os.Stderr, DimStyle.Render(meta))
}

// stripCodeFences removes markdown code fences and blank lines from
// coder-mode output so the result is directly runnable.
func stripCodeFences(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}

	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
