// Package logging builds the zerolog.Logger every other chordkeep
// package takes as a plain value. It is trimmed from the teacher's
// pkg/logger.go: the same level parsing, console/json writer switch, and
// lumberjack-backed file rotation, stripped of the wrapper type, global
// singleton, diode async writer, and sampling knobs nothing here
// exercises.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log output goes and how it's formatted.
type Config struct {
	// Level is the minimum level emitted (trace, debug, info, warn, error).
	Level string

	// Format is "console" for human-readable output or "json".
	Format string

	// FilePath, if non-empty, also writes logs to a lumberjack-rotated
	// file at this path alongside stdout.
	FilePath   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

// DefaultConfig returns the design defaults.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		MaxSizeMB:  100,
		MaxAgeDays: 30,
		MaxBackups: 10,
	}
}

// New builds a zerolog.Logger writing to stdout and, if FilePath is set,
// to a rotated log file.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Format == "console" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("logging: create log directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
			Compress:   true,
		})
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Caller().Logger()
	return logger, nil
}
