// Package config loads and manages chatvk configuration.
// Configuration source priority (highest to lowest):
// 1. Command-line flags (applied by cmd after Load)
// 2. Environment variables (CHATVK_BASE_URL, CHATVK_TIMEOUT, CHATVK_RETRIES, ...),
//    including values from a .env file in the working directory
// 3. Config file path specified via --config flag
// 4. ~/.config/chatvk/config.yaml
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the backend address used when nothing else is configured.
const DefaultBaseURL = "http://localhost:5000"

// AuthConfig holds settings for the login flow and 401 handling.
type AuthConfig struct {
	// LoginPath and SignupPath are the backend endpoints that issue sessions.
	LoginPath  string `yaml:"login_path"`
	SignupPath string `yaml:"signup_path"`

	// RedirectOnAny401 sends the user back to login on a 401 from any call.
	// false keeps the per-call behaviour: only loading the conversation list
	// redirects.
	RedirectOnAny401 bool `yaml:"redirect_on_any_401"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level: "debug" | "info" (default) | "warn" | "error"
	Level string `yaml:"level"`

	// File receives log output. Empty = ~/.local/share/chatvk/chatvk.log
	// "-" = stderr.
	File string `yaml:"file"`
}

// UIConfig holds settings for the interactive chat screen.
type UIConfig struct {
	// Markdown renders assistant replies with glamour.
	Markdown bool `yaml:"markdown"`

	// ShowWelcome prints the welcome box when the chat screen opens.
	ShowWelcome bool `yaml:"show_welcome"`
}

// Config is the complete configuration structure for chatvk.
type Config struct {
	// BaseURL is the root of the chat backend (e.g. "http://localhost:5000").
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every HTTP request. 0 = no client-side timeout.
	Timeout Duration `yaml:"timeout"`

	// Retries is how often a failed read (list, messages, health) is repeated
	// on a gateway error or dropped connection. 0 (default) surfaces every
	// failure at once. Sends are never repeated.
	Retries int `yaml:"retries"`

	// SessionDB is the SQLite file holding the saved session.
	// Empty = ~/.local/share/chatvk/session.db
	SessionDB string `yaml:"session_db"`

	Auth AuthConfig `yaml:"auth"`
	Log  LogConfig  `yaml:"log"`
	UI   UIConfig   `yaml:"ui"`
}

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: Duration(60 * time.Second),
		Auth: AuthConfig{
			LoginPath:  "/auth/login",
			SignupPath: "/auth/signup",
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			Markdown:    true,
			ShowWelcome: true,
		},
	}
}

// DefaultPath returns ~/.config/chatvk/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chatvk", "config.yaml"), nil
}

// DataDir returns ~/.local/share/chatvk, where the session db and log live.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "chatvk"), nil
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if configPath == "" {
		if p, err := DefaultPath(); err == nil {
			configPath = p
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return cfg, nil
}

// applyEnvOverrides applies CHATVK_* environment variables to cfg.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("CHATVK_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CHATVK_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("CHATVK_TIMEOUT: %w", err)
		}
		cfg.Timeout = Duration(d)
	}
	if v := os.Getenv("CHATVK_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("CHATVK_RETRIES: invalid count %q", v)
		}
		cfg.Retries = n
	}
	if v := os.Getenv("CHATVK_SESSION_DB"); v != "" {
		cfg.SessionDB = v
	}
	if v := os.Getenv("CHATVK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CHATVK_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	return nil
}

// SessionDBPath resolves the session database location.
func (c *Config) SessionDBPath() (string, error) {
	if c.SessionDB != "" {
		return c.SessionDB, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.db"), nil
}

// SaveBaseURL persists the backend base URL into the config file at path
// (DefaultPath when empty), preserving all other user settings.
func SaveBaseURL(path, baseURL string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = p
	}

	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &raw) // start fresh if corrupt
	}
	raw["base_url"] = strings.TrimRight(baseURL, "/")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
