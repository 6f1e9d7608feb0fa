// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/echomind/internal/provider"
	"github.com/jeranaias/echomind/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete echomind configuration.
type Config struct {
	API      APIConfig         `toml:"api"`
	Defaults Defaults          `toml:"defaults"`
	Security SecurityConfig    `toml:"security"`
	Presets  map[string]Preset `toml:"presets"`
}

// APIConfig selects the provider and its credentials.
type APIConfig struct {
	// Provider is a built-in provider id, or "custom" with Endpoint set.
	Provider string `toml:"provider"`
	// APIKey is the credential for providers that need one. The
	// ECHOMIND_API_KEY environment variable overrides it.
	APIKey string `toml:"api_key,omitempty"`
	// Endpoint overrides the provider's base URL.
	Endpoint string `toml:"endpoint,omitempty"`
	// Model is the default model for requests.
	Model string `toml:"model"`
	// TimeoutSecs bounds each request.
	TimeoutSecs int `toml:"timeout"`
	// FallbackProviders are tried in order when the primary fails
	// with a network-class error.
	FallbackProviders []string `toml:"fallback_providers,omitempty"`
}

// Defaults are per-request generation parameters.
type Defaults struct {
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens,omitempty"`
	TopP        float64 `toml:"top_p,omitempty"`
	TopK        int     `toml:"top_k,omitempty"`
	Stream      bool    `toml:"stream"`
}

// SecurityConfig controls session persistence.
type SecurityConfig struct {
	// EncryptSessions seals session files with a passphrase-derived key.
	EncryptSessions bool `toml:"encrypt_sessions"`
}

// Preset is a named, reusable system prompt.
type Preset struct {
	SystemPrompt string `toml:"system_prompt"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Provider:    "chat",
			Model:       "gpt-3.5-turbo",
			TimeoutSecs: 30,
		},
		Defaults: Defaults{
			Temperature: 0.7,
			Stream:      false,
		},
		Presets: map[string]Preset{},
	}
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the echomind configuration directory (~/.echomind).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".echomind"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// SessionsDir returns where session files live.
func SessionsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// HistoryDBPath returns the cross-session history database path.
func HistoryDBPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config file, applies defaults for missing fields,
// layers environment overrides, and validates. A missing config file
// is not an error; defaults apply.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment overrides. A .env file in the working
// directory is loaded first; real environment variables win over it.
func applyEnv(cfg *Config) {
	godotenv.Load()

	if key := os.Getenv("ECHOMIND_API_KEY"); key != "" {
		cfg.API.APIKey = key
	}
	if p := os.Getenv("ECHOMIND_PROVIDER"); p != "" {
		cfg.API.Provider = p
	}
}

// Save writes the configuration to the default path atomically with
// owner-only permissions.
// SECURITY: the file can hold an API key; 0600 keeps it private.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to a specific file.
func SaveToPath(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks field ranges and provider consistency.
func (c *Config) Validate() error {
	if c.API.Provider == "" {
		return fmt.Errorf("api.provider must not be empty")
	}
	if c.API.Provider == "custom" {
		if c.API.Endpoint == "" {
			return fmt.Errorf("api.provider \"custom\" requires api.endpoint")
		}
	} else if _, ok := provider.Lookup(c.API.Provider); !ok {
		return fmt.Errorf("unknown provider %q (known: %v)", c.API.Provider, provider.IDs())
	}
	if c.API.Endpoint != "" {
		u, err := url.Parse(c.API.Endpoint)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("api.endpoint %q is not an absolute URL", c.API.Endpoint)
		}
	}
	if c.API.TimeoutSecs <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %d", c.API.TimeoutSecs)
	}
	if c.Defaults.Temperature < 0 || c.Defaults.Temperature > 2 {
		return fmt.Errorf("defaults.temperature %.2f out of range 0..2", c.Defaults.Temperature)
	}
	for _, fb := range c.API.FallbackProviders {
		if _, ok := provider.Lookup(fb); !ok {
			return fmt.Errorf("unknown fallback provider %q", fb)
		}
	}
	return nil
}

// ResolveProfile builds the provider profile the config selects,
// applying a custom endpoint override when present.
func (c *Config) ResolveProfile() (provider.Profile, error) {
	if c.API.Provider == "custom" {
		return provider.NewCustomProfile(c.API.Endpoint, c.API.APIKey != "")
	}
	p, ok := provider.Lookup(c.API.Provider)
	if !ok {
		return provider.Profile{}, fmt.Errorf("unknown provider %q", c.API.Provider)
	}
	if c.API.Endpoint != "" {
		return p.WithBaseURL(c.API.Endpoint)
	}
	return p, nil
}
