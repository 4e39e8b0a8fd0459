// Package logging configures the global zerolog logger.
//
// The TUI owns the terminal, so interactive sessions log to
// ~/.voxchat/voxchat.log instead of stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileName is the log file written inside the config directory
const FileName = "voxchat.log"

// ParseLevel maps a config level name to a zerolog level. Empty means warn.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(strings.ToLower(level))
	if level == "" {
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.WarnLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Setup points the global logger at w
func Setup(w io.Writer, level string) error {
	lvl, err := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return err
}

// SetupConsole logs human-readable lines to stderr
func SetupConsole(level string) error {
	return Setup(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, level)
}

// SetupFile appends JSON lines to dir/voxchat.log. The returned closer
// releases the file.
func SetupFile(dir, level string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	if err := Setup(f, level); err != nil {
		return f, err
	}
	return f, nil
}

// Discard silences the global logger
func Discard() {
	log.Logger = zerolog.Nop()
}
