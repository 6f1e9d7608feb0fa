// args.go - Unified argument parsing for all CLI subcommands.
//
// Each subcommand shares one parser so flag handling stays consistent:
// long flags, short flags, --flag=value, boolean flags, and positional
// arguments all behave the same everywhere.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// booleanFlags are flags that never take a value, so a following
// positional argument is never consumed as one.
var booleanFlags = map[string]bool{
	"stream": true, "coder": true, "c": true,
	"quiet": true, "q": true,
	"verbose": true, "v": true,
	"json": true, "version": true,
	"help": true, "h": true,
	"interactive": true, "i": true,
}

// ArgParser parses a subcommand's raw arguments.
// It handles multiple flag formats consistently:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Boolean flags: --flag (no value needed)
//   - Positional arguments: arguments without flags
//   - Subcommands: first positional argument
type ArgParser struct {
	subcommand string
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
}

// NewArgParser parses raw into flags and positional arguments.
//
// Example:
//
//	args := NewArgParser([]string{"search", "--provider", "openai", "--json"})
//	args.Subcommand()     // "search"
//	args.Flag("provider") // "openai"
//	args.BoolFlag("json") // true
func NewArgParser(raw []string) *ArgParser {
	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
	}

	i := 0
	for i < len(raw) {
		arg := raw[i]

		if !strings.HasPrefix(arg, "-") {
			p.positional = append(p.positional, arg)
			i++
			continue
		}

		// --flag=value form
		if name, value, ok := strings.Cut(arg, "="); ok {
			name = strings.TrimLeft(name, "-")
			if value == "true" || value == "false" {
				p.boolFlags[name] = value == "true"
			} else {
				p.flags[name] = value
			}
			i++
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if !booleanFlags[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i += 2
		} else {
			p.boolFlags[name] = true
			i++
		}
	}

	if len(p.positional) > 0 {
		p.subcommand = p.positional[0]
	}
	return p
}

// Subcommand returns the first positional argument, or "".
func (p *ArgParser) Subcommand() string {
	return p.subcommand
}

// Flag returns the value of a string flag, or "" if unset.
func (p *ArgParser) Flag(names ...string) string {
	for _, n := range names {
		if v, ok := p.flags[n]; ok {
			return v
		}
	}
	return ""
}

// FlagOr returns the value of a string flag, or def if unset.
func (p *ArgParser) FlagOr(def string, names ...string) string {
	if v := p.Flag(names...); v != "" {
		return v
	}
	return def
}

// BoolFlag returns true if any of the named boolean flags is set.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, n := range names {
		if p.boolFlags[n] {
			return true
		}
	}
	return false
}

// IntFlag returns a flag parsed as an int, or def when unset.
func (p *ArgParser) IntFlag(def int, names ...string) (int, error) {
	v := p.Flag(names...)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for --%s: %q", names[0], v)
	}
	return n, nil
}

// FloatFlag returns a flag parsed as a float64, or def when unset.
func (p *ArgParser) FloatFlag(def float64, names ...string) (float64, error) {
	v := p.Flag(names...)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for --%s: %q", names[0], v)
	}
	return f, nil
}

// Positional returns the positional argument at index i, or "".
func (p *ArgParser) Positional(i int) string {
	if i < len(p.positional) {
		return p.positional[i]
	}
	return ""
}

// Rest returns all positional arguments after the subcommand joined by
// spaces, used for free-text queries.
func (p *ArgParser) Rest() string {
	if len(p.positional) <= 1 {
		return ""
	}
	return strings.Join(p.positional[1:], " ")
}

// All returns every positional argument joined by spaces.
func (p *ArgParser) All() string {
	return strings.Join(p.positional, " ")
}
