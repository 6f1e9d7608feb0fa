// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.API.Provider != "chat" || cfg.API.Model != "gpt-3.5-turbo" {
		t.Errorf("defaults = %+v", cfg.API)
	}
	if cfg.Defaults.Temperature != 0.7 {
		t.Errorf("temperature = %v", cfg.Defaults.Temperature)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.API.Provider != "chat" {
		t.Errorf("provider = %q", cfg.API.Provider)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
provider = "openai"
api_key = "sk-file"
model = "gpt-4"
timeout = 60
fallback_providers = ["mistral", "ollama"]

[defaults]
temperature = 0.3
max_tokens = 500
stream = true

[security]
encrypt_sessions = true

[presets.coder]
system_prompt = "You are a senior engineer."
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.API.Provider != "openai" || cfg.API.Model != "gpt-4" || cfg.API.TimeoutSecs != 60 {
		t.Errorf("api = %+v", cfg.API)
	}
	if len(cfg.API.FallbackProviders) != 2 {
		t.Errorf("fallbacks = %v", cfg.API.FallbackProviders)
	}
	if !cfg.Defaults.Stream || cfg.Defaults.MaxTokens != 500 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if !cfg.Security.EncryptSessions {
		t.Error("encrypt_sessions not read")
	}
	if cfg.Presets["coder"].SystemPrompt == "" {
		t.Error("preset not read")
	}
}

func TestEnvOverridesFileKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[api]\nprovider = \"openai\"\napi_key = \"from-file\"\nmodel = \"m\"\ntimeout = 30\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ECHOMIND_API_KEY", "from-env")
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.APIKey != "from-env" {
		t.Errorf("api_key = %q, env must win", cfg.API.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.API.Provider = "nonsense" }},
		{"custom without endpoint", func(c *Config) { c.API.Provider = "custom" }},
		{"relative endpoint", func(c *Config) { c.API.Endpoint = "/v1/chat" }},
		{"zero timeout", func(c *Config) { c.API.TimeoutSecs = 0 }},
		{"temperature too high", func(c *Config) { c.Defaults.Temperature = 2.5 }},
		{"unknown fallback", func(c *Config) { c.API.FallbackProviders = []string{"nope"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.API.Provider = "mistral"
	cfg.API.APIKey = "sk-x"

	if err := SaveToPath(cfg, path); err != nil {
		t.Fatalf("SaveToPath: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0600 {
		t.Errorf("config perms = %o, want 0600", perm)
	}

	got, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.API.Provider != "mistral" || got.API.APIKey != "sk-x" {
		t.Errorf("round trip = %+v", got.API)
	}
}

func TestResolveProfile(t *testing.T) {
	cfg := Default()
	cfg.API.Provider = "openai"
	p, err := cfg.ResolveProfile()
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "openai" {
		t.Errorf("profile = %+v", p)
	}

	cfg.API.Provider = "custom"
	cfg.API.Endpoint = "https://my.llm.host/v1/chat/completions"
	cfg.API.APIKey = "k"
	p, err = cfg.ResolveProfile()
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "custom" || p.BaseURL != cfg.API.Endpoint {
		t.Errorf("custom profile = %+v", p)
	}

	cfg = Default()
	cfg.API.Provider = "ollama"
	cfg.API.Endpoint = "http://gpu-box:11434/api/chat"
	p, err = cfg.ResolveProfile()
	if err != nil {
		t.Fatal(err)
	}
	if p.BaseURL != "http://gpu-box:11434/api/chat" {
		t.Errorf("endpoint override not applied: %+v", p)
	}
}
