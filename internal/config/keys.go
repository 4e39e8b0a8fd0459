package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"

	apierrors "github.com/diogo/voxchat/internal/errors"
	"github.com/diogo/voxchat/internal/models"
)

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
	kindList
)

var keyKinds = map[string]valueKind{
	"backend_url":                 kindString,
	"personality":                 kindString,
	"language":                    kindString,
	"request_timeout":             kindInt,
	"copy_to_clipboard":           kindBool,
	"auto_play":                   kindBool,
	"tui_theme":                   kindString,
	"cache_dir":                   kindString,
	"log_level":                   kindString,
	"capture.command":             kindString,
	"capture.args":                kindList,
	"capture.chunk_size":          kindInt,
	"capture.max_bytes":           kindInt,
	"playback.command":            kindString,
	"playback.args":               kindList,
	"markdown.style":              kindString,
	"markdown.enable_emoji":       kindBool,
	"markdown.preserve_newlines":  kindBool,
	"markdown.table_wrap":         kindBool,
	"markdown.inline_table_links": kindBool,
}

// Keys returns every configuration key in sorted order
func Keys() []string {
	keys := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsKnownKey reports whether key is a configuration key
func IsKnownKey(key string) bool {
	_, ok := keyKinds[key]
	return ok
}

// Values returns the flattened configuration as display strings
func (c Config) Values() map[string]string {
	out := make(map[string]string, len(keyKinds))
	for key, v := range c.toMap() {
		switch val := v.(type) {
		case []string:
			out[key] = strings.Join(val, " ")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out
}

// Set applies a single key=value assignment to cfg and validates the result
func (c Config) Set(key, value string) (Config, error) {
	kind, ok := keyKinds[key]
	if !ok {
		return c, apierrors.NewConfigError(key, "unknown key")
	}

	parsed, err := parseValue(kind, value)
	if err != nil {
		return c, apierrors.NewConfigError(key, err.Error())
	}
	switch key {
	case "personality":
		p, err := models.ParsePersonality(value)
		if err != nil {
			return c, err
		}
		parsed = string(p)
	case "language":
		l, err := models.ParseLanguage(value)
		if err != nil {
			return c, err
		}
		parsed = string(l)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(c.toMap(), "."), nil); err != nil {
		return c, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := k.Set(key, parsed); err != nil {
		return c, apierrors.NewConfigError(key, err.Error())
	}

	var next Config
	if err := k.Unmarshal("", &next); err != nil {
		return c, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(next); err != nil {
		return c, err
	}
	return next, nil
}

// SetValue updates one key in the config file, leaving the environment
// layers out of the saved result
func SetValue(key, value string) (Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return Config{}, err
	}
	k, err := loadKoanf(configPath)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg, err = cfg.Set(key, value)
	if err != nil {
		return cfg, err
	}
	return cfg, SaveConfig(cfg)
}

// Marshal renders the configuration as TOML
func (c Config) Marshal() ([]byte, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(c.toMap(), "."), nil); err != nil {
		return nil, err
	}
	return k.Marshal(toml.Parser())
}

func parseValue(kind valueKind, value string) (interface{}, error) {
	value = strings.TrimSpace(value)
	switch kind {
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", value)
		}
		return b, nil
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", value)
		}
		return n, nil
	case kindList:
		return strings.Fields(value), nil
	default:
		return value, nil
	}
}
