// Package logging holds the process-wide zerolog logger used by every
// octrecon component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	logger = New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// New returns a timestamped logger writing to w.
func New(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Logger returns the package logger.
func Logger() zerolog.Logger {
	return logger
}

// Component returns the package logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// SetOutput replaces the writer of the package logger, keeping its level.
func SetOutput(w io.Writer) {
	logger = New(w).Level(logger.GetLevel())
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and applies
// it to the package logger. Unknown names fall back to info.
func SetLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger = logger.Level(lvl)
	return lvl
}
