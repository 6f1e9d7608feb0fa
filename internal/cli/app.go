// app.go - Shared wiring for CLI command handlers.
//
// Every handler builds the same stack: config, transport client,
// session store, history log, engine. This file centralizes that
// construction so handlers stay small.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jeranaias/echomind/internal/chat"
	"github.com/jeranaias/echomind/internal/config"
	"github.com/jeranaias/echomind/internal/history"
	"github.com/jeranaias/echomind/internal/model"
	"github.com/jeranaias/echomind/internal/provider"
	"github.com/jeranaias/echomind/internal/storage"
	"github.com/jeranaias/echomind/internal/transport"
)

// coderSystemPrompt forces raw code output in coder mode.
const coderSystemPrompt = "You are a code generator. Always and only output raw, " +
	"runnable code with no explanations, comments, markdown fences, or prose. " +
	"Do not include code block syntax like triple backticks."

// Default outbound rate limit. Generous enough for interactive use,
// strict enough to stay under every provider's free-tier ceiling.
const (
	defaultRPS   = 5
	defaultBurst = 5
)

// =============================================================================
// RUN - TOP LEVEL DISPATCH
// =============================================================================

// Run parses argv and executes the selected command.
// Returns the process exit code.
func Run(argv []string) int {
	cmd, args, err := Parse(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		return 2
	}

	switch cmd {
	case CmdVersion:
		PrintVersion()
		return 0
	case CmdHelp:
		PrintUsage()
		return 0
	case CmdAsk:
		err = HandleAsk(args)
	case CmdChat:
		err = HandleChat(args)
	case CmdCompare:
		err = HandleCompare(args)
	case CmdSession:
		err = HandleSession(args)
	case CmdHistory:
		err = HandleHistory(args)
	case CmdConfig:
		err = HandleConfig(args)
	}

	if err != nil {
		printError(err)
		return 1
	}
	return 0
}

// printError renders an error, attaching the provider suggestion when
// one is available.
func printError(err error) {
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())

	var provErr *provider.ProviderError
	if errors.As(err, &provErr) && provErr.Suggestion != "" {
		fmt.Fprintln(os.Stderr, DimStyle.Render("  hint: "+provErr.Suggestion))
	}
	var authErr *transport.AuthError
	if errors.As(err, &authErr) {
		fmt.Fprintln(os.Stderr, DimStyle.Render("  hint: check your API key (--api-key or ECHOMIND_API_KEY)"))
	}
	if errors.Is(err, storage.ErrSessionLocked) {
		fmt.Fprintln(os.Stderr, DimStyle.Render("  hint: another echomind process is using this session"))
	}
}

// =============================================================================
// APP WIRING
// =============================================================================

// App bundles the objects a command handler needs.
type App struct {
	Config   *config.Config
	Client   *transport.Client
	Primary  chat.Candidate
	Fallback []chat.Candidate
}

// newApp loads config, applies CLI overrides, and builds the transport
// client and provider candidates.
func newApp(args Args) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyArgs(cfg, args)

	primary, err := resolvePrimary(cfg)
	if err != nil {
		return nil, err
	}
	fallbacks, err := resolveFallbacks(cfg, primary)
	if err != nil {
		return nil, err
	}

	client := transport.New(
		transport.WithRateLimit(defaultRPS, defaultBurst),
	)

	return &App{
		Config:   cfg,
		Client:   client,
		Primary:  primary,
		Fallback: fallbacks,
	}, nil
}

// applyArgs overlays CLI flags onto the loaded config.
func applyArgs(cfg *config.Config, args Args) {
	if args.Provider != "" {
		if strings.Contains(args.Provider, "://") {
			cfg.API.Provider = "custom"
			cfg.API.Endpoint = args.Provider
		} else {
			cfg.API.Provider = args.Provider
		}
	}
	if args.Model != "" {
		cfg.API.Model = args.Model
	}
	if args.APIKey != "" {
		cfg.API.APIKey = args.APIKey
	}
	if args.Timeout > 0 {
		cfg.API.TimeoutSecs = args.Timeout
	}
	if args.TempSet {
		cfg.Defaults.Temperature = args.Temperature
	}
	if args.MaxTokens > 0 {
		cfg.Defaults.MaxTokens = args.MaxTokens
	}
	if args.Stream {
		cfg.Defaults.Stream = true
	}
}

func resolvePrimary(cfg *config.Config) (chat.Candidate, error) {
	profile, err := cfg.ResolveProfile()
	if err != nil {
		return chat.Candidate{}, err
	}
	return chat.Candidate{Profile: profile, APIKey: cfg.API.APIKey}, nil
}

// resolveFallbacks maps configured fallback provider ids to candidates.
// The primary is excluded so a fallback never repeats the failed call.
func resolveFallbacks(cfg *config.Config, primary chat.Candidate) ([]chat.Candidate, error) {
	var out []chat.Candidate
	for _, id := range cfg.API.FallbackProviders {
		if id == primary.Profile.ID {
			continue
		}
		p, ok := provider.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown fallback provider %q", id)
		}
		out = append(out, chat.Candidate{Profile: p, APIKey: cfg.API.APIKey})
	}
	return out, nil
}

// openStore opens the session store, prompting for the passphrase when
// session encryption is enabled.
func (a *App) openStore() (*storage.Store, error) {
	dir, err := config.SessionsDir()
	if err != nil {
		return nil, err
	}

	var opts []storage.Option
	if a.Config.Security.EncryptSessions {
		passphrase, err := resolvePassphrase()
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithEncryption(storage.PassphraseKeyFunc(passphrase)))
	}
	return storage.NewStore(dir, opts...)
}

// resolvePassphrase takes the passphrase from ECHOMIND_PASSPHRASE or
// prompts for it on the terminal.
func resolvePassphrase() ([]byte, error) {
	if env := os.Getenv("ECHOMIND_PASSPHRASE"); env != "" {
		return []byte(env), nil
	}
	passphrase, err := PromptPassphrase("Session passphrase: ")
	if err != nil {
		return nil, err
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}
	return passphrase, nil
}

// openHistory opens the cross-session exchange log.
func openHistory() (*history.Log, error) {
	path, err := config.HistoryDBPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

// newEngine builds a conversation engine. store may be nil for
// stateless one-shot use; recording is wired when the history log
// opens cleanly and skipped otherwise.
func (a *App) newEngine(store *storage.Store, recorder chat.Recorder) *chat.Engine {
	opts := []chat.Option{chat.WithFallbacks(a.Fallback...)}
	if recorder != nil {
		opts = append(opts, chat.WithRecorder(recorder))
	}
	return chat.NewEngine(store, a.Client, a.Primary, opts...)
}

// buildPrompt assembles the prompt from config defaults, presets and
// CLI flags. Precedence: --system beats --preset beats coder mode.
func (a *App) buildPrompt(args Args, text string) (chat.Prompt, error) {
	system := args.System
	if system == "" && args.Preset != "" {
		preset, ok := a.Config.Presets[args.Preset]
		if !ok {
			return chat.Prompt{}, fmt.Errorf("preset %q not found in config", args.Preset)
		}
		system = preset.SystemPrompt
	}
	if system == "" && args.Coder {
		system = coderSystemPrompt
	}

	var attachments []model.Attachment
	if args.Image != "" {
		att, err := loadAttachment(args.Image)
		if err != nil {
			return chat.Prompt{}, err
		}
		attachments = append(attachments, att)
	}

	return chat.Prompt{
		Text:         strings.TrimSpace(text),
		Attachments:  attachments,
		Model:        a.Config.API.Model,
		Temperature:  a.Config.Defaults.Temperature,
		MaxTokens:    a.Config.Defaults.MaxTokens,
		TopP:         a.Config.Defaults.TopP,
		TopK:         a.Config.Defaults.TopK,
		SystemPrompt: system,
	}, nil
}

// loadAttachment reads an image file and sniffs its media type.
func loadAttachment(path string) (model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to read image: %w", err)
	}
	return model.Attachment{
		MimeType: http.DetectContentType(data),
		Data:     data,
	}, nil
}
