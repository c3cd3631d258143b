// Package logging provides the structured logger threaded through the
// database handle, the task queue, and the sync engine. It is a thin
// wrapper over zerolog so every component logs with consistent fields
// (db, task_id, path) instead of ad-hoc fmt.Fprintf calls.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is the configured minimum severity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how a Logger is constructed.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds a root zerolog.Logger from cfg. A zero Config logs at info
// level, human-readable, to stderr.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	case InfoLevel, "":
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var base zerolog.Logger
	if cfg.JSONOutput {
		base = zerolog.New(output).Level(level).With().Timestamp().Logger()
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).Level(level).With().Timestamp().Logger()
	}
	return base
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithDatabase tags a logger with the owning database name.
func WithDatabase(l zerolog.Logger, dbName string) zerolog.Logger {
	return l.With().Str("db", dbName).Logger()
}

// WithTask tags a logger with a task queue identifier, so start/complete/
// error log lines for the same task can be correlated the way the emitted
// events are (see internal/taskqueue).
func WithTask(l zerolog.Logger, taskID string, kind string) zerolog.Logger {
	return l.With().Str("task_id", taskID).Str("kind", kind).Logger()
}

// WithPath tags a logger with the document path under merge or diff.
func WithPath(l zerolog.Logger, path string) zerolog.Logger {
	return l.With().Str("path", path).Logger()
}
