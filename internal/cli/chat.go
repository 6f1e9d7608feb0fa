// chat.go - Interactive chat command handler.
//
// USABILITY: Markdown rendering and input history for better CLI experience
//
// Handles "echomind chat", an interactive REPL for multi-turn
// conversations.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /clear, /c          Clear conversation history
//   /model [name]       Show or switch model
//   /provider           Show the active provider
//   /status, /s         Show session statistics
//   /history            Show the conversation so far
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current input
//   Ctrl+D              Exit chat
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/echomind/internal/chat"
	"github.com/jeranaias/echomind/internal/config"
	"github.com/jeranaias/echomind/internal/provider"
	"github.com/jeranaias/echomind/internal/storage"
	"github.com/jeranaias/echomind/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
// USABILITY: arrow keys navigate history, Ctrl+C aborts the line.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with persistent input history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(dir, "input_history"),
	}
	c.loadHistory()
	return c
}

func (c *ChatCLI) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads one line with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists input history with owner-only permissions.
func (c *ChatCLI) saveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and releases the terminal.
func (c *ChatCLI) Close() {
	c.saveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession holds the state for one interactive session.
type chatSession struct {
	app      *App
	engine   *chat.Engine
	store    *storage.Store
	args     Args
	session  string
	start    time.Time
	turns    int
	inTok    int
	outTok   int
	totalLat time.Duration
}

// HandleChat runs the interactive REPL.
func HandleChat(args Args) error {
	if !IsTTY() {
		return errors.New("chat mode requires a terminal; pipe input to ask instead")
	}

	app, err := newApp(args)
	if err != nil {
		return err
	}

	sessionID := args.Session
	if sessionID == "" {
		sessionID = "default"
	}

	store, err := app.openStore()
	if err != nil {
		return err
	}
	recorder, err := openHistory()
	if err != nil {
		recorder = nil
	} else {
		defer recorder.Close()
	}

	sess := &chatSession{
		app:     app,
		store:   store,
		args:    args,
		session: sessionID,
		start:   time.Now(),
	}
	if recorder != nil {
		sess.engine = app.newEngine(store, recorder)
	} else {
		sess.engine = app.newEngine(store, nil)
	}

	return sess.run()
}

func (s *chatSession) run() error {
	input := NewChatCLI()
	defer input.Close()

	s.printBanner()

	for {
		line, err := input.ReadInput(PromptStyle.Render("You: "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println(WarningStyle.Render("^C - use /quit or Ctrl+D to exit"))
				continue
			}
			// Ctrl+D or closed terminal
			fmt.Println(DimStyle.Render("Goodbye!"))
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") || line == "exit" || line == "quit" {
			if quit := s.handleCommand(line); quit {
				fmt.Println(DimStyle.Render("Goodbye!"))
				return nil
			}
			continue
		}

		if err := s.exchange(line); err != nil {
			printError(err)
		}
		fmt.Println()
	}
}

func (s *chatSession) printBanner() {
	fmt.Println(TitleStyle.Render("=== Echomind Interactive Mode ==="))
	detail := fmt.Sprintf("provider: %s  model: %s  session: %s",
		s.app.Primary.Profile.ID, s.app.Config.API.Model, s.session)
	if s.store.Encrypted() {
		detail += "  (encrypted)"
	}
	fmt.Println(DimStyle.Render(detail))
	fmt.Println(DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Println()
}

// exchange sends one user turn and prints the reply.
func (s *chatSession) exchange(text string) error {
	prompt, err := s.app.buildPrompt(s.args, text)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.app.Config.Timeout())
	defer cancel()

	fmt.Print(AssistantStyle.Render("Assistant: "))

	if s.app.Config.Defaults.Stream {
		return s.streamTurn(ctx, prompt)
	}

	reply, err := s.engine.Send(ctx, s.session, prompt)
	if err != nil {
		fmt.Println()
		return err
	}
	if IsStdoutTTY() {
		fmt.Print(renderMarkdown(reply.Content))
	} else {
		fmt.Println(reply.Content)
	}
	s.tally(reply)
	return nil
}

func (s *chatSession) streamTurn(ctx context.Context, prompt chat.Prompt) error {
	stream, err := s.engine.Stream(ctx, s.session, prompt)
	if err != nil {
		fmt.Println()
		return err
	}
	defer stream.Close()

	if err := pumpDeltas(stream, os.Stdout); err != nil {
		fmt.Println()
		return err
	}
	fmt.Println()

	reply, err := stream.Finalize(ctx)
	if err != nil {
		return err
	}
	if stream.Incomplete() {
		fmt.Println(WarningStyle.Render("warning: response ended before the provider finished"))
	}
	s.tally(reply)
	return nil
}

func (s *chatSession) tally(reply *provider.ChatReply) {
	s.turns++
	s.totalLat += reply.Latency
	if reply.Usage != nil {
		s.inTok += reply.Usage.PromptTokens
		s.outTok += reply.Usage.CompletionTokens
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand executes a REPL command. Returns true to exit.
func (s *chatSession) handleCommand(line string) bool {
	fields := strings.Fields(line)
	cmd := strings.TrimPrefix(fields[0], "/")

	switch cmd {
	case "quit", "q", "exit":
		return true

	case "help", "h":
		fmt.Println(SectionStyle.Render("Commands:"))
		for _, c := range [][2]string{
			{"/clear", "clear conversation history"},
			{"/model [name]", "show or switch model"},
			{"/provider", "show the active provider"},
			{"/status", "show session statistics"},
			{"/history", "show the conversation so far"},
			{"/quit", "exit chat"},
		} {
			fmt.Printf("  %-16s %s\n", c[0], DimStyle.Render(c[1]))
		}

	case "clear", "c":
		if err := s.store.Clear(s.session); err != nil {
			printError(err)
			break
		}
		fmt.Println(WarningStyle.Render("Conversation history cleared."))

	case "model", "m":
		if len(fields) > 1 {
			s.app.Config.API.Model = fields[1]
			fmt.Println(SuccessStyle.Render("Model: ") + fields[1])
		} else {
			fmt.Println(LabelStyle.Render("Model:") + s.app.Config.API.Model)
		}

	case "provider", "p":
		p := s.app.Primary.Profile
		fmt.Println(LabelStyle.Render("Provider:") + p.ID)
		fmt.Println(LabelStyle.Render("Endpoint:") + p.BaseURL)
		fmt.Println(LabelStyle.Render("Streaming:") + fmt.Sprintf("%v", p.SupportsStreaming()))

	case "status", "s":
		fmt.Println(SectionStyle.Render("Session"))
		fmt.Println(LabelStyle.Render("Session:") + s.session)
		fmt.Println(LabelStyle.Render("Turns:") + fmt.Sprintf("%d", s.turns))
		fmt.Println(LabelStyle.Render("Tokens:") + fmt.Sprintf("%d in / %d out", s.inTok, s.outTok))
		fmt.Println(LabelStyle.Render("Elapsed:") + time.Since(s.start).Round(time.Second).String())
		if s.turns > 0 {
			avg := s.totalLat / time.Duration(s.turns)
			fmt.Println(LabelStyle.Render("Avg latency:") + avg.Round(time.Millisecond).String())
		}

	case "history":
		state, err := s.store.Load(s.session)
		if err != nil {
			printError(err)
			break
		}
		if len(state.Messages) == 0 {
			fmt.Println(DimStyle.Render("No messages yet."))
			break
		}
		for _, m := range state.Messages {
			role := string(m.Role)
			fmt.Printf("%s %s\n", LabelStyle.Render(role+":"),
				util.TruncateRunes(m.Content, 120))
		}

	default:
		fmt.Println(WarningStyle.Render("Unknown command: " + line + " (try /help)"))
	}
	return false
}
