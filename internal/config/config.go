// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for kaiwa.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.kaiwa/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete kaiwa configuration, shared by the
// relay server and the terminal client.
type Config struct {
	// Relay server settings
	Server ServerConfig `toml:"server"`

	// Upstream (Groq) settings
	Upstream UpstreamConfig `toml:"upstream"`

	// Terminal client settings
	Client ClientConfig `toml:"client"`

	// Transcript storage settings
	Storage StorageConfig `toml:"storage"`

	// Room title generation settings
	Title TitleConfig `toml:"title"`

	// Display settings
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains relay server configuration.
type ServerConfig struct {
	// Port is the TCP port the relay listens on
	Port int `toml:"port"`
	// AllowedOrigins are CORS origins permitted to call the relay.
	// Empty uses the localhost defaults.
	AllowedOrigins []string `toml:"allowed_origins"`
	// RateLimitPerSec is the sustained request rate allowed per client IP
	RateLimitPerSec float64 `toml:"rate_limit_per_sec"`
	// RateLimitBurst is the short-term burst allowed per client IP
	RateLimitBurst int `toml:"rate_limit_burst"`
}

// UpstreamConfig contains the Groq API configuration.
type UpstreamConfig struct {
	// BaseURL is the OpenAI-compatible API root
	BaseURL string `toml:"base_url"`
	// APIKey is the Groq API key. Prefer the GROQ_API_KEY env var over
	// storing the key on disk.
	APIKey string `toml:"api_key"`
	// Model is the completion model to request
	Model string `toml:"model"`
	// MaxTokens caps completion length
	MaxTokens int `toml:"max_tokens"`
	// TimeoutSecs bounds non-streaming upstream calls
	TimeoutSecs int `toml:"timeout_secs"`
}

// ClientConfig contains terminal client configuration.
type ClientConfig struct {
	// RelayURL is the relay server root the client talks to
	RelayURL string `toml:"relay_url"`
	// TimeoutSecs bounds non-streaming relay calls
	TimeoutSecs int `toml:"timeout_secs"`
}

// StorageConfig contains transcript persistence configuration.
type StorageConfig struct {
	// StateDir is where rooms and the active-room marker are written
	// (empty = ~/.kaiwa/state)
	StateDir string `toml:"state_dir"`
}

// TitleConfig contains room title generation configuration.
type TitleConfig struct {
	// MaxLength is the rune limit for generated titles
	MaxLength int `toml:"max_length"`
	// Remote enables asking the relay for titles before falling back to
	// the local heuristic
	Remote bool `toml:"remote"`
}

// UIConfig contains display configuration.
type UIConfig struct {
	// RevealDelayMs is the pause between revealed characters. Zero
	// prints replies instantly.
	RevealDelayMs int `toml:"reveal_delay_ms"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			RateLimitPerSec: 5,
			RateLimitBurst:  20,
		},
		Upstream: UpstreamConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			MaxTokens:   1024,
			TimeoutSecs: 30,
		},
		Client: ClientConfig{
			RelayURL:    "http://127.0.0.1:3000",
			TimeoutSecs: 15,
		},
		Title: TitleConfig{
			MaxLength: 20,
			Remote:    true,
		},
		UI: UIConfig{
			RevealDelayMs: 15,
		},
	}
}

// ConfigDir returns the kaiwa configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".kaiwa"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultStateDir returns the default transcript storage directory.
func DefaultStateDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions fixes permissions on the config file.
// SECURITY: Config files should be 0600 to protect the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back
// to defaults when none exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file: %w", err)
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.RateLimitPerSec == 0 {
		cfg.Server.RateLimitPerSec = defaults.Server.RateLimitPerSec
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = defaults.Server.RateLimitBurst
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = defaults.Upstream.BaseURL
	}
	if cfg.Upstream.Model == "" {
		cfg.Upstream.Model = defaults.Upstream.Model
	}
	if cfg.Upstream.MaxTokens == 0 {
		cfg.Upstream.MaxTokens = defaults.Upstream.MaxTokens
	}
	if cfg.Upstream.TimeoutSecs == 0 {
		cfg.Upstream.TimeoutSecs = defaults.Upstream.TimeoutSecs
	}

	if cfg.Client.RelayURL == "" {
		cfg.Client.RelayURL = defaults.Client.RelayURL
	}
	if cfg.Client.TimeoutSecs == 0 {
		cfg.Client.TimeoutSecs = defaults.Client.TimeoutSecs
	}

	if cfg.Title.MaxLength == 0 {
		cfg.Title.MaxLength = defaults.Title.MaxLength
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides. Environment
// always wins over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KAIWA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("KAIWA_RELAY_URL"); v != "" {
		c.Client.RelayURL = v
	}
	if v := os.Getenv("KAIWA_STATE_DIR"); v != "" {
		c.Storage.StateDir = v
	}
	if v := os.Getenv("KAIWA_MODEL"); v != "" {
		c.Upstream.Model = v
	}
	if v := os.Getenv("KAIWA_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors aggregates all validation failures.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{"server.port", "must be between 1 and 65535"})
	}
	if c.Server.RateLimitPerSec < 0 {
		errs = append(errs, ValidationError{"server.rate_limit_per_sec", "must not be negative"})
	}
	if c.Server.RateLimitBurst < 0 {
		errs = append(errs, ValidationError{"server.rate_limit_burst", "must not be negative"})
	}

	if _, err := url.Parse(c.Upstream.BaseURL); err != nil || c.Upstream.BaseURL == "" {
		errs = append(errs, ValidationError{"upstream.base_url", "must be a valid URL"})
	}
	if c.Upstream.MaxTokens < 1 {
		errs = append(errs, ValidationError{"upstream.max_tokens", "must be positive"})
	}
	if c.Upstream.TimeoutSecs < 1 {
		errs = append(errs, ValidationError{"upstream.timeout_secs", "must be positive"})
	}

	if _, err := url.Parse(c.Client.RelayURL); err != nil || c.Client.RelayURL == "" {
		errs = append(errs, ValidationError{"client.relay_url", "must be a valid URL"})
	}

	if c.Title.MaxLength < 1 || c.Title.MaxLength > 200 {
		errs = append(errs, ValidationError{"title.max_length", "must be between 1 and 200"})
	}
	if c.UI.RevealDelayMs < 0 {
		errs = append(errs, ValidationError{"ui.reveal_delay_ms", "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// StateDir resolves the transcript storage directory.
func (c *Config) StateDir() (string, error) {
	if c.Storage.StateDir != "" {
		return c.Storage.StateDir, nil
	}
	return DefaultStateDir()
}

// UpstreamTimeout returns the upstream timeout as a duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSecs) * time.Second
}

// ClientTimeout returns the relay client timeout as a duration.
func (c *Config) ClientTimeout() time.Duration {
	return time.Duration(c.Client.TimeoutSecs) * time.Second
}

// RevealDelay returns the reveal pacing as a duration.
func (c *Config) RevealDelay() time.Duration {
	return time.Duration(c.UI.RevealDelayMs) * time.Millisecond
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# kaiwa configuration file")
	fmt.Fprintln(file, "# Generated by kaiwa - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
