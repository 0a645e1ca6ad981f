// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// =============================================================================
// DEFAULT AND LOAD TESTS
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromPath_FillsDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080

[upstream]
model = "llama-3.1-8b-instant"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Upstream.Model != "llama-3.1-8b-instant" {
		t.Errorf("model = %q", cfg.Upstream.Model)
	}
	// Unset fields fall back to defaults.
	if cfg.Upstream.BaseURL != Default().Upstream.BaseURL {
		t.Errorf("base_url = %q, want default", cfg.Upstream.BaseURL)
	}
	if cfg.Client.RelayURL != Default().Client.RelayURL {
		t.Errorf("relay_url = %q, want default", cfg.Client.RelayURL)
	}
	if cfg.Title.MaxLength != 20 {
		t.Errorf("title.max_length = %d, want 20", cfg.Title.MaxLength)
	}
}

func TestLoadFromPath_InvalidTOML(t *testing.T) {
	path := writeConfig(t, "[server\nport=")
	if _, err := LoadFromPath(path); err == nil {
		t.Error("expected error for malformed TOML")
	}
}

func TestLoadFromPath_FixesPermissions(t *testing.T) {
	path := writeConfig(t, "")
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if _, err := LoadFromPath(path); err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDE TESTS
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("KAIWA_PORT", "9000")
	t.Setenv("KAIWA_RELAY_URL", "http://relay.local:9000")
	t.Setenv("GROQ_API_KEY", "gsk_test")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Client.RelayURL != "http://relay.local:9000" {
		t.Errorf("relay_url = %q", cfg.Client.RelayURL)
	}
	if cfg.Upstream.APIKey != "gsk_test" {
		t.Errorf("api_key = %q", cfg.Upstream.APIKey)
	}
}

func TestApplyEnvOverrides_IgnoresGarbagePort(t *testing.T) {
	t.Setenv("KAIWA_PORT", "not-a-number")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("port = %d, want default kept", cfg.Server.Port)
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, false},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, false},
		{"empty upstream url", func(c *Config) { c.Upstream.BaseURL = "" }, false},
		{"zero max tokens", func(c *Config) { c.Upstream.MaxTokens = 0 }, false},
		{"huge title limit", func(c *Config) { c.Title.MaxLength = 500 }, false},
		{"negative reveal delay", func(c *Config) { c.UI.RevealDelayMs = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !tt.valid && err == nil {
				t.Error("Validate = nil, want error")
			}
		})
	}
}

// =============================================================================
// SAVE AND WATCH TESTS
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Server.Port = 4000
	cfg.Upstream.Model = "llama-3.1-8b-instant"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Server.Port != 4000 || loaded.Upstream.Model != "llama-3.1-8b-instant" {
		t.Errorf("round trip = %+v", loaded)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 3000\n")

	changes := make(chan *Config, 1)
	w, err := Watch(path, func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[server]\nport = 4000\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Server.Port != 4000 {
			t.Errorf("reloaded port = %d, want 4000", cfg.Server.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatch_SkipsInvalidIntermediateState(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 3000\n")

	changes := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	// Broken intermediate save, then a good one.
	if err := os.WriteFile(path, []byte("[server\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(2 * reloadDebounce)
	if err := os.WriteFile(path, []byte("[server]\nport = 5000\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Server.Port != 5000 {
			t.Errorf("reloaded port = %d, want 5000 (broken save skipped)", cfg.Server.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
