// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.URL != "http://127.0.0.1:8080" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Chat.DefaultModel != "tide-small" {
		t.Errorf("DefaultModel = %q", cfg.Chat.DefaultModel)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("telemetry should default on")
	}
}

func TestLoadFromPath_ParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = "1"

[backend]
url = "https://chat.example.com"
timeout_secs = 30

[backend.headers]
Authorization = "Bearer abc"
"X-Org" = "morganforge"

[chat]
default_model = "tide-large"
system_prompt = "be terse"
enable_tools = false
rate_limit_per_min = 5

[ui]
render_markdown = false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.URL != "https://chat.example.com" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Backend.Headers["Authorization"] != "Bearer abc" {
		t.Errorf("headers not parsed: %v", cfg.Backend.Headers)
	}
	if cfg.Backend.Headers["X-Org"] != "morganforge" {
		t.Errorf("quoted header key lost: %v", cfg.Backend.Headers)
	}
	if cfg.Chat.DefaultModel != "tide-large" || cfg.Chat.EnableTools {
		t.Errorf("chat section wrong: %+v", cfg.Chat)
	}
	if cfg.Chat.RateLimitPerMin != 5 {
		t.Errorf("RateLimitPerMin = %d", cfg.Chat.RateLimitPerMin)
	}
	if cfg.UI.RenderMarkdown {
		t.Error("render_markdown should be off")
	}
}

func TestLoadFromPath_InvalidURLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[backend]\nurl = \"not a url\"\n"), 0600)

	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected validation error for bad backend url")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TIDECHAT_BACKEND_URL", "http://10.0.0.5:9999")
	t.Setenv("TIDECHAT_MODEL", "tide-xl")
	t.Setenv("TIDECHAT_API_KEY", "sekrit")
	t.Setenv("TIDECHAT_ENABLE_TOOLS", "off")
	t.Setenv("TIDECHAT_TELEMETRY", "0")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Backend.URL != "http://10.0.0.5:9999" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Chat.DefaultModel != "tide-xl" {
		t.Errorf("DefaultModel = %q", cfg.Chat.DefaultModel)
	}
	if cfg.Backend.Headers["Authorization"] != "Bearer sekrit" {
		t.Errorf("Authorization = %q", cfg.Backend.Headers["Authorization"])
	}
	if cfg.Chat.EnableTools {
		t.Error("tools should be disabled")
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry should be disabled")
	}
}

func TestSaveTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Chat.DefaultModel = "tide-medium"
	cfg.Backend.Headers = map[string]string{"Authorization": "Bearer x"}
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Chat.DefaultModel != "tide-medium" {
		t.Errorf("DefaultModel = %q", loaded.Chat.DefaultModel)
	}
	if loaded.Backend.Headers["Authorization"] != "Bearer x" {
		t.Errorf("headers lost in round trip: %v", loaded.Backend.Headers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"https ok", func(c *Config) { c.Backend.URL = "https://x.example" }, false},
		{"bad scheme", func(c *Config) { c.Backend.URL = "ftp://x.example" }, true},
		{"relative url", func(c *Config) { c.Backend.URL = "/api" }, true},
		{"negative rate limit", func(c *Config) { c.Chat.RateLimitPerMin = -1 }, true},
		{"negative max conversations", func(c *Config) { c.Storage.MaxConversations = -5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWatcher_ReloadsOnEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := SaveTOML(Default(), path); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var latest *Config
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		latest = cfg
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch(); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Chat.DefaultModel = "tide-reloaded"
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		got := latest
		mu.Unlock()
		if got != nil && got.Chat.DefaultModel == "tide-reloaded" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("config reload never observed")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
