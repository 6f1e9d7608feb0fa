// config_cmd.go - Configuration command handler.
//
// Subcommands:
//   config show       Print the active configuration
//   config init       Write a default config file
//   config path       Print the config file location
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jeranaias/echomind/internal/config"
)

// HandleConfig dispatches the config subcommands.
func HandleConfig(args Args) error {
	sub := ""
	if len(args.Rest) > 0 {
		sub = args.Rest[0]
	}

	switch sub {
	case "", "show":
		return configShow()
	case "init":
		return configInit()
	case "path":
		path, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	default:
		return fmt.Errorf("unknown config subcommand %q (try show, init, path)", sub)
	}
}

func configShow() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Println(SectionStyle.Render("API"))
	fmt.Println(LabelStyle.Render("Provider:") + cfg.API.Provider)
	fmt.Println(LabelStyle.Render("Model:") + cfg.API.Model)
	fmt.Println(LabelStyle.Render("Timeout:") + fmt.Sprintf("%ds", cfg.API.TimeoutSecs))
	if cfg.API.Endpoint != "" {
		fmt.Println(LabelStyle.Render("Endpoint:") + cfg.API.Endpoint)
	}
	key := "(not set)"
	if cfg.API.APIKey != "" {
		// SECURITY: never print the key itself
		key = "set"
	}
	fmt.Println(LabelStyle.Render("API key:") + key)
	if len(cfg.API.FallbackProviders) > 0 {
		fmt.Println(LabelStyle.Render("Fallbacks:") + strings.Join(cfg.API.FallbackProviders, ", "))
	}

	fmt.Println(SectionStyle.Render("Defaults"))
	fmt.Println(LabelStyle.Render("Temperature:") + fmt.Sprintf("%.2f", cfg.Defaults.Temperature))
	if cfg.Defaults.MaxTokens > 0 {
		fmt.Println(LabelStyle.Render("Max tokens:") + fmt.Sprintf("%d", cfg.Defaults.MaxTokens))
	}
	fmt.Println(LabelStyle.Render("Stream:") + fmt.Sprintf("%v", cfg.Defaults.Stream))

	fmt.Println(SectionStyle.Render("Security"))
	fmt.Println(LabelStyle.Render("Encrypt sessions:") + fmt.Sprintf("%v", cfg.Security.EncryptSessions))

	if len(cfg.Presets) > 0 {
		fmt.Println(SectionStyle.Render("Presets"))
		names := make([]string, 0, len(cfg.Presets))
		for n := range cfg.Presets {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Printf("  %s\n", ValueStyle.Render(n))
		}
	}
	return nil
}

func configInit() error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := config.Save(config.Default()); err != nil {
		return err
	}
	fmt.Println(SuccessStyle.Render("Created: ") + path)
	fmt.Println(DimStyle.Render("Edit it to set your provider and API key, or use ECHOMIND_API_KEY."))
	return nil
}
