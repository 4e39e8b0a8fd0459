// Package config handles layered configuration for voxchat.
//
// Values are resolved from built-in defaults, then ~/.voxchat/config.toml,
// then a .env file in the working directory, then VOXCHAT_* environment
// variables. Nested keys use a double underscore in the environment, e.g.
// VOXCHAT_CAPTURE__COMMAND sets capture.command.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
)

// EnvPrefix is the prefix of environment overrides
const EnvPrefix = "VOXCHAT_"

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	Style            string `koanf:"style"`              // "dark", "light", or path to JSON theme
	EnableEmoji      bool   `koanf:"enable_emoji"`       // Convert :emoji: to unicode
	PreserveNewLines bool   `koanf:"preserve_newlines"`  // Preserve original line breaks
	TableWrap        bool   `koanf:"table_wrap"`         // Enable word wrap in table cells
	InlineTableLinks bool   `koanf:"inline_table_links"` // Render links inline in tables
}

// CaptureConfig configures the external recorder used for the microphone
type CaptureConfig struct {
	// Command is the recorder binary; empty selects ffmpeg with platform defaults
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	ChunkSize int      `koanf:"chunk_size"`
	MaxBytes  int      `koanf:"max_bytes"`
}

// PlaybackConfig configures the external player for reply audio
type PlaybackConfig struct {
	// Command is the player binary; empty picks the first known player on PATH
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
}

// Config represents the user configuration
type Config struct {
	BackendURL  string `koanf:"backend_url"`
	Personality string `koanf:"personality"`
	Language    string `koanf:"language"`
	// RequestTimeout is a client-side deadline in seconds. 0 waits for the
	// backend indefinitely.
	RequestTimeout  int            `koanf:"request_timeout"`
	CopyToClipboard bool           `koanf:"copy_to_clipboard"`
	AutoPlay        bool           `koanf:"auto_play"`
	TUITheme        string         `koanf:"tui_theme"`
	CacheDir        string         `koanf:"cache_dir"`
	LogLevel        string         `koanf:"log_level"`
	Capture         CaptureConfig  `koanf:"capture"`
	Playback        PlaybackConfig `koanf:"playback"`
	Markdown        MarkdownConfig `koanf:"markdown"`
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		Style:            "dark",
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
		InlineTableLinks: false,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	homeDir, _ := os.UserHomeDir()
	return Config{
		BackendURL:      "http://localhost:8000",
		Personality:     string(models.DefaultPersonality),
		Language:        string(models.DefaultLanguage),
		RequestTimeout:  0,
		CopyToClipboard: false,
		AutoPlay:        false,
		TUITheme:        "tokyonight",
		CacheDir:        filepath.Join(homeDir, ".voxchat", "audio"),
		LogLevel:        "warn",
		Capture: CaptureConfig{
			ChunkSize: 4096,
			MaxBytes:  10 * 1024 * 1024,
		},
		Markdown: DefaultMarkdownConfig(),
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".voxchat"), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// GetCacheDir returns the audio cache directory from config, creating it if necessary
func GetCacheDir(cfg Config) (string, error) {
	dir := cfg.CacheDir
	if dir == "" {
		dir = DefaultConfig().CacheDir
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return dir, nil
}

// LoadConfig loads the configuration from the default locations
func LoadConfig() (Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFrom(configPath, ".env")
}

// LoadFrom loads the configuration from configPath, the given dotenv files
// and the environment. Missing files are skipped.
func LoadFrom(configPath string, envFiles ...string) (Config, error) {
	k, err := loadKoanf(configPath)
	if err != nil {
		return DefaultConfig(), err
	}

	for _, f := range envFiles {
		if _, statErr := os.Stat(f); statErr != nil {
			continue
		}
		// Existing environment variables win over the dotenv file
		if err := godotenv.Load(f); err != nil {
			return DefaultConfig(), fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// loadKoanf layers the defaults and the config file
func loadKoanf(configPath string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(DefaultConfig().toMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		return k, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return k, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return k, nil
}

// envKey maps VOXCHAT_CAPTURE__CHUNK_SIZE to capture.chunk_size
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SaveConfig saves the configuration to disk
func SaveConfig(cfg Config) error {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}
	return SaveTo(filepath.Join(configDir, "config.toml"), cfg)
}

// SaveTo writes the configuration as TOML to path
func SaveTo(path string, cfg Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that cannot be repaired by falling back to defaults
func Validate(cfg Config) error {
	u, err := url.Parse(cfg.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apierrors.NewConfigError("backend_url", "must be an http(s) URL")
	}
	if _, err := models.ParsePersonality(cfg.Personality); err != nil {
		return err
	}
	if _, err := models.ParseLanguage(cfg.Language); err != nil {
		return err
	}
	if cfg.RequestTimeout < 0 {
		return apierrors.NewConfigError("request_timeout", "must not be negative")
	}
	if cfg.Capture.ChunkSize < 0 {
		return apierrors.NewConfigError("capture.chunk_size", "must not be negative")
	}
	if cfg.Capture.MaxBytes < 0 {
		return apierrors.NewConfigError("capture.max_bytes", "must not be negative")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return apierrors.NewConfigError("log_level", "unknown level "+cfg.LogLevel)
	}
	return nil
}

// toMap flattens the configuration into dotted keys
func (c Config) toMap() map[string]interface{} {
	return map[string]interface{}{
		"backend_url":                 c.BackendURL,
		"personality":                 c.Personality,
		"language":                    c.Language,
		"request_timeout":             c.RequestTimeout,
		"copy_to_clipboard":           c.CopyToClipboard,
		"auto_play":                   c.AutoPlay,
		"tui_theme":                   c.TUITheme,
		"cache_dir":                   c.CacheDir,
		"log_level":                   c.LogLevel,
		"capture.command":             c.Capture.Command,
		"capture.args":                nonNil(c.Capture.Args),
		"capture.chunk_size":          c.Capture.ChunkSize,
		"capture.max_bytes":           c.Capture.MaxBytes,
		"playback.command":            c.Playback.Command,
		"playback.args":               nonNil(c.Playback.Args),
		"markdown.style":              c.Markdown.Style,
		"markdown.enable_emoji":       c.Markdown.EnableEmoji,
		"markdown.preserve_newlines":  c.Markdown.PreserveNewLines,
		"markdown.table_wrap":         c.Markdown.TableWrap,
		"markdown.inline_table_links": c.Markdown.InlineTableLinks,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
