// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for echomind.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdAsk Command = iota
	CmdChat
	CmdCompare
	CmdSession
	CmdHistory
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Provider selection
	Provider string
	Model    string
	APIKey   string

	// Generation parameters
	Temperature float64
	TempSet     bool
	MaxTokens   int
	System      string
	Preset      string

	// Modes
	Stream  bool
	Coder   bool
	Session string
	Output  string
	Image   string
	Timeout int

	// Output control
	Quiet   bool
	Verbose bool
	JSON    bool

	// Subcommand flags
	Format string
	Limit  int

	// Free-text query (ask / compare)
	Query string

	// Compare providers, comma separated
	CompareList string

	// Subcommand arguments (session / history / config)
	Rest []string
}

const usageText = `echomind - pipe input to an AI chat API and print the response

Usage:
  echo 'Hello, how are you?' | echomind
  echomind ask "explain quantum computing" --provider openai --model gpt-4
  echomind chat                          Interactive multi-turn REPL
  echomind compare --providers openai,claude "which is faster?"
  echomind session list                  Manage saved conversations
  echomind history search "goroutines"   Search past exchanges
  echomind config init                   Write a default config file

Commands:
  ask        One-shot question (default when input is piped)
  chat       Interactive REPL with conversation history
  compare    Send one prompt to several providers concurrently
  session    list | show | export | clear | delete saved sessions
  history    search | stats | clear the cross-session exchange log
  config     show | init | path
  version    Print version information
  help       Show this help

Flags:
  -p, --provider NAME    Provider id (chat, openai, claude, ollama, grok,
                         mistral, cohere, gemini, chatanywhere) or custom URL
  -m, --model NAME       Model to use (e.g. gpt-4, claude-3-opus)
  -t, --temperature N    Response randomness (0.0-2.0)
      --max-tokens N     Maximum tokens in the response
  -s, --system TEXT      Custom system prompt
      --preset NAME      Use a named preset from the config file
      --stream           Stream the response as it arrives
  -c, --coder            Coder mode: raw runnable code, no prose or fences
  -o, --output FILE      Write the response to a file instead of stdout
      --image FILE       Attach an image (providers with multimodal support)
      --session NAME     Persist the exchange in a named session
      --api-key KEY      API key (or set ECHOMIND_API_KEY)
      --timeout SECS     Request timeout in seconds
  -q, --quiet            Minimal output
  -v, --verbose          Verbose output
      --json             Machine-readable output where supported

Examples:
  cat main.go | echomind "find the bug"
  echo 'write a fizzbuzz' | echomind --coder --output fizz.py
  echomind chat --session work --stream
  echomind session export work --format markdown

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("echomind version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses argv (without the program name) into a command and args.
func Parse(argv []string) (Command, Args, error) {
	p := NewArgParser(argv)

	args := Args{
		Provider:    p.Flag("provider", "p"),
		Model:       p.Flag("model", "m"),
		APIKey:      p.Flag("api-key"),
		System:      p.Flag("system", "s"),
		Preset:      p.Flag("preset"),
		Session:     p.Flag("session"),
		Output:      p.Flag("output", "o"),
		Image:       p.Flag("image"),
		CompareList: p.Flag("providers", "compare"),
		Format:      p.Flag("format"),
		Stream:      p.BoolFlag("stream"),
		Coder:       p.BoolFlag("coder", "c"),
		Quiet:       p.BoolFlag("quiet", "q"),
		Verbose:     p.BoolFlag("verbose", "v"),
		JSON:        p.BoolFlag("json"),
	}

	// --co FILE is shorthand for --coder --output FILE
	if co := p.Flag("co"); co != "" {
		args.Coder = true
		args.Output = co
	}

	if v := p.Flag("temperature", "t"); v != "" {
		t, err := p.FloatFlag(0, "temperature", "t")
		if err != nil {
			return CmdHelp, args, err
		}
		args.Temperature = t
		args.TempSet = true
	}
	var err error
	if args.MaxTokens, err = p.IntFlag(0, "max-tokens"); err != nil {
		return CmdHelp, args, err
	}
	if args.Timeout, err = p.IntFlag(0, "timeout"); err != nil {
		return CmdHelp, args, err
	}
	if args.Limit, err = p.IntFlag(0, "limit"); err != nil {
		return CmdHelp, args, err
	}

	if p.BoolFlag("version") {
		return CmdVersion, args, nil
	}
	if p.BoolFlag("help", "h") {
		return CmdHelp, args, nil
	}
	if p.BoolFlag("interactive", "i") {
		return CmdChat, args, nil
	}
	if args.CompareList != "" {
		args.Query = p.All()
		return CmdCompare, args, nil
	}

	switch strings.ToLower(p.Subcommand()) {
	case "ask":
		args.Query = p.Rest()
		return CmdAsk, args, nil
	case "chat":
		return CmdChat, args, nil
	case "compare":
		args.Query = p.Rest()
		return CmdCompare, args, nil
	case "session", "sessions":
		args.Rest = restPositionals(p)
		return CmdSession, args, nil
	case "history":
		args.Rest = restPositionals(p)
		return CmdHistory, args, nil
	case "config":
		args.Rest = restPositionals(p)
		return CmdConfig, args, nil
	case "version":
		return CmdVersion, args, nil
	case "help":
		return CmdHelp, args, nil
	default:
		// No recognized command: everything positional is the query.
		args.Query = p.All()
		return CmdAsk, args, nil
	}
}

// restPositionals returns the positionals after the command word.
func restPositionals(p *ArgParser) []string {
	if len(p.positional) <= 1 {
		return nil
	}
	return p.positional[1:]
}
