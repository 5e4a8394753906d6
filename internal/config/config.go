// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tidechat.
//
// Supports TOML configuration with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.tidechat/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/tidechat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tidechat configuration.
type Config struct {
	Version string `toml:"version"`

	// Backend configuration
	Backend BackendConfig `toml:"backend"`

	// Chat configuration
	Chat ChatConfig `toml:"chat"`

	// Storage configuration
	Storage StorageConfig `toml:"storage"`

	// Telemetry configuration
	Telemetry TelemetryConfig `toml:"telemetry"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// BackendConfig describes the chat backend endpoint.
type BackendConfig struct {
	// URL is the backend base URL
	URL string `toml:"url"`
	// TimeoutSecs is the timeout for non-streaming requests
	TimeoutSecs int `toml:"timeout_secs"`
	// Headers are attached to every request, opaque pass-through.
	// Credentials go here, e.g. Authorization = "Bearer ...".
	Headers map[string]string `toml:"headers"`
}

// ChatConfig contains generation defaults.
type ChatConfig struct {
	// DefaultModel is the model used when none is picked explicitly
	DefaultModel string `toml:"default_model"`
	// SystemPrompt is sent with every generation (empty = none)
	SystemPrompt string `toml:"system_prompt"`
	// EnableTools lets the backend run tools during generation
	EnableTools bool `toml:"enable_tools"`
	// RateLimitPerMin caps sends per minute (0 = unlimited)
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// StorageConfig contains conversation persistence settings.
type StorageConfig struct {
	// Dir overrides the conversation directory (empty = ~/.tidechat/conversations)
	Dir string `toml:"dir"`
	// MaxConversations caps retained conversations (0 = unlimited)
	MaxConversations int `toml:"max_conversations"`
}

// TelemetryConfig contains local usage accounting settings. Nothing ever
// leaves the machine; this is the user's own token ledger.
type TelemetryConfig struct {
	Enabled bool `toml:"enabled"`
	// DBPath overrides the usage database path (empty = ~/.tidechat/usage.db)
	DBPath string `toml:"db_path"`
}

// UIConfig contains terminal output settings.
type UIConfig struct {
	// RenderMarkdown pretty-prints assistant answers
	RenderMarkdown bool `toml:"render_markdown"`
	// ShowThinking prints the model's reasoning trace while streaming
	ShowThinking bool `toml:"show_thinking"`
	// Color enables styled output
	Color bool `toml:"color"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Backend: BackendConfig{
			URL:         "http://127.0.0.1:8080",
			TimeoutSecs: 10,
		},
		Chat: ChatConfig{
			DefaultModel:    "tide-small",
			EnableTools:     true,
			RateLimitPerMin: 30,
		},
		Storage: StorageConfig{
			MaxConversations: 100,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		UI: UIConfig{
			RenderMarkdown: true,
			ShowThinking:   false,
			Color:          true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the tidechat configuration directory (~/.tidechat).
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".tidechat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir creates the configuration directory if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration from the default location, fills defaults,
// applies environment overrides, and validates. A missing file is not an
// error; defaults are used.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from an explicit file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults backfills zero values that must never stay zero.
func (c *Config) fillDefaults() {
	if c.Backend.URL == "" {
		c.Backend.URL = Default().Backend.URL
	}
	if c.Backend.TimeoutSecs <= 0 {
		c.Backend.TimeoutSecs = Default().Backend.TimeoutSecs
	}
	if c.Chat.DefaultModel == "" {
		c.Chat.DefaultModel = Default().Chat.DefaultModel
	}
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default location.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to an explicit path, atomically.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// 0600: the headers table may hold credentials.
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ValidationError{Field: "backend.url", Message: "must be an absolute http(s) URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: "backend.url", Message: "scheme must be http or https"}
	}
	if c.Chat.RateLimitPerMin < 0 {
		return ValidationError{Field: "chat.rate_limit_per_min", Message: "must not be negative"}
	}
	if c.Storage.MaxConversations < 0 {
		return ValidationError{Field: "storage.max_conversations", Message: "must not be negative"}
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - TIDECHAT_BACKEND_URL: overrides backend.url
//   - TIDECHAT_MODEL: overrides chat.default_model
//   - TIDECHAT_SYSTEM_PROMPT: overrides chat.system_prompt
//   - TIDECHAT_API_KEY: sets the Authorization header (Bearer)
//   - TIDECHAT_ENABLE_TOOLS: "1"/"true" or "0"/"false"
//   - TIDECHAT_TELEMETRY: "0"/"false" disables usage accounting
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TIDECHAT_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("TIDECHAT_MODEL"); v != "" {
		c.Chat.DefaultModel = v
	}
	if v := os.Getenv("TIDECHAT_SYSTEM_PROMPT"); v != "" {
		c.Chat.SystemPrompt = v
	}
	if v := os.Getenv("TIDECHAT_API_KEY"); v != "" {
		if c.Backend.Headers == nil {
			c.Backend.Headers = make(map[string]string)
		}
		c.Backend.Headers["Authorization"] = "Bearer " + v
	}
	if v := os.Getenv("TIDECHAT_ENABLE_TOOLS"); v != "" {
		c.Chat.EnableTools = parseBool(v, c.Chat.EnableTools)
	}
	if v := os.Getenv("TIDECHAT_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = parseBool(v, c.Telemetry.Enabled)
	}
}

// parseBool accepts the usual spellings and falls back on anything else.
func parseBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return fallback
}

// =============================================================================
// DERIVED PATHS
// =============================================================================

// ConversationsDir resolves the conversation storage directory.
func (c *Config) ConversationsDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations"), nil
}

// UsageDBPath resolves the telemetry database path.
func (c *Config) UsageDBPath() (string, error) {
	if c.Telemetry.DBPath != "" {
		return c.Telemetry.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "usage.db"), nil
}
