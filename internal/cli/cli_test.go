// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"
)

func TestArgParserFlagFormats(t *testing.T) {
	p := NewArgParser([]string{"search", "--provider", "openai", "--limit=5", "--json", "-m", "gpt-4", "goroutines"})

	if got := p.Subcommand(); got != "search" {
		t.Errorf("Subcommand() = %q, want %q", got, "search")
	}
	if got := p.Flag("provider"); got != "openai" {
		t.Errorf("Flag(provider) = %q, want %q", got, "openai")
	}
	if got := p.Flag("limit"); got != "5" {
		t.Errorf("Flag(limit) = %q, want %q", got, "5")
	}
	if !p.BoolFlag("json") {
		t.Error("BoolFlag(json) = false, want true")
	}
	if got := p.Flag("model", "m"); got != "gpt-4" {
		t.Errorf("Flag(model, m) = %q, want %q", got, "gpt-4")
	}
	if got := p.Rest(); got != "goroutines" {
		t.Errorf("Rest() = %q, want %q", got, "goroutines")
	}
}

func TestArgParserBoolFlagKeepsFollowingPositional(t *testing.T) {
	p := NewArgParser([]string{"--stream", "hello", "-q", "world"})
	if !p.BoolFlag("stream") {
		t.Error("BoolFlag(stream) = false, want true")
	}
	if !p.BoolFlag("quiet", "q") {
		t.Error("BoolFlag(q) = false, want true")
	}
	if got := p.All(); got != "hello world" {
		t.Errorf("All() = %q, want %q", got, "hello world")
	}
}

func TestArgParserExplicitBool(t *testing.T) {
	p := NewArgParser([]string{"--stream=false", "--json=true"})
	if p.BoolFlag("stream") {
		t.Error("stream=false parsed as true")
	}
	if !p.BoolFlag("json") {
		t.Error("json=true parsed as false")
	}
}

func TestArgParserNumericFlags(t *testing.T) {
	p := NewArgParser([]string{"--limit", "10", "--temperature", "0.9"})

	n, err := p.IntFlag(0, "limit")
	if err != nil || n != 10 {
		t.Errorf("IntFlag(limit) = %d, %v", n, err)
	}
	f, err := p.FloatFlag(0, "temperature")
	if err != nil || f != 0.9 {
		t.Errorf("FloatFlag(temperature) = %v, %v", f, err)
	}
	if _, err := NewArgParser([]string{"--limit", "abc"}).IntFlag(0, "limit"); err == nil {
		t.Error("expected error for non-numeric --limit")
	}
}

func TestParseDefaultsToAsk(t *testing.T) {
	cmd, args, err := Parse([]string{"explain", "quantum", "computing"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd != CmdAsk {
		t.Errorf("cmd = %v, want CmdAsk", cmd)
	}
	if args.Query != "explain quantum computing" {
		t.Errorf("Query = %q", args.Query)
	}
}

func TestParseAskWithFlags(t *testing.T) {
	cmd, args, err := Parse([]string{"ask", "-p", "openai", "-m", "gpt-4", "-t", "0.5", "--stream", "hello"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd != CmdAsk {
		t.Errorf("cmd = %v, want CmdAsk", cmd)
	}
	if args.Provider != "openai" || args.Model != "gpt-4" {
		t.Errorf("Provider/Model = %q/%q", args.Provider, args.Model)
	}
	if !args.TempSet || args.Temperature != 0.5 {
		t.Errorf("Temperature = %v set=%v", args.Temperature, args.TempSet)
	}
	if !args.Stream {
		t.Error("Stream = false")
	}
	if args.Query != "hello" {
		t.Errorf("Query = %q", args.Query)
	}
}

func TestParseCoShorthand(t *testing.T) {
	_, args, err := Parse([]string{"--co", "out.py", "write fizzbuzz"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !args.Coder {
		t.Error("Coder = false, want true")
	}
	if args.Output != "out.py" {
		t.Errorf("Output = %q, want out.py", args.Output)
	}
}

func TestParseSubcommands(t *testing.T) {
	tests := []struct {
		argv []string
		want Command
	}{
		{[]string{"chat"}, CmdChat},
		{[]string{"-i"}, CmdChat},
		{[]string{"session", "list"}, CmdSession},
		{[]string{"history", "stats"}, CmdHistory},
		{[]string{"config", "show"}, CmdConfig},
		{[]string{"version"}, CmdVersion},
		{[]string{"--version"}, CmdVersion},
		{[]string{"help"}, CmdHelp},
		{[]string{"--compare", "openai,claude", "hi"}, CmdCompare},
	}
	for _, tt := range tests {
		cmd, _, err := Parse(tt.argv)
		if err != nil {
			t.Errorf("Parse(%v): %v", tt.argv, err)
			continue
		}
		if cmd != tt.want {
			t.Errorf("Parse(%v) = %v, want %v", tt.argv, cmd, tt.want)
		}
	}
}

func TestParseSessionRest(t *testing.T) {
	cmd, args, err := Parse([]string{"session", "export", "work", "--format", "markdown"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd != CmdSession {
		t.Errorf("cmd = %v, want CmdSession", cmd)
	}
	if len(args.Rest) != 2 || args.Rest[0] != "export" || args.Rest[1] != "work" {
		t.Errorf("Rest = %v", args.Rest)
	}
	if args.Format != "markdown" {
		t.Errorf("Format = %q", args.Format)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced",
			in:   "```python\nprint('hi')\n```",
			want: "print('hi')",
		},
		{
			name: "unfenced",
			in:   "print('hi')",
			want: "print('hi')",
		},
		{
			name: "blank lines removed",
			in:   "```\ndef f():\n\n    return 1\n```",
			want: "def f():\n    return 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFences(tt.in); got != tt.want {
				t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
