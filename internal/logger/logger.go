// Package logger provides process-wide logging for Doraemo.
// Messages are written through zerolog to stderr. The --verbose flag
// lowers the level to debug so users can follow the ingestion and chat
// pipelines step by step.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	level   = zerolog.WarnLevel
	format  = FormatConsole
	output  io.Writer = os.Stderr
	base    = build()
)

// build creates the zerolog logger from the current settings.
// Callers must hold mu for writing, except during package init.
func build() zerolog.Logger {
	w := output
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339, NoColor: true}
	}
	lvl := level
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	base = build()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetLevel sets the minimum level when not verbose ("debug", "info", "warn", "error").
func SetLevel(name string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", name, err)
	}
	mu.Lock()
	defer mu.Unlock()
	level = lvl
	base = build()
	return nil
}

// SetFormat selects console or JSON output.
func SetFormat(f string) error {
	if f != FormatConsole && f != FormatJSON {
		return fmt.Errorf("unknown log format %q", f)
	}
	mu.Lock()
	defer mu.Unlock()
	format = f
	base = build()
	return nil
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build()
}

// Debug logs a debug message; shown only in verbose mode unless the level allows it.
func Debug(format string, args ...any) {
	emit(zerolog.DebugLevel, nil, format, args...)
}

// Info logs an informational message.
func Info(format string, args ...any) {
	emit(zerolog.InfoLevel, nil, format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	emit(zerolog.WarnLevel, nil, format, args...)
}

// Error logs an error.
func Error(format string, args ...any) {
	emit(zerolog.ErrorLevel, nil, format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		base.Debug().Str("section", name).Msgf("=== %s ===", name)
	}
}

// Logger carries structured fields for a component.
type Logger struct {
	fields map[string]any
}

// With returns a logger that attaches fields to every message.
func With(fields map[string]any) *Logger {
	l := &Logger{fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		l.fields[k] = v
	}
	return l
}

// Component is shorthand for With(map[string]any{"component": name}).
func Component(name string) *Logger {
	return With(map[string]any{"component": name})
}

// With returns a copy of l with one more field.
func (l *Logger) With(key string, value any) *Logger {
	next := With(l.fields)
	next.fields[key] = value
	return next
}

// Debug logs a debug message with the logger's fields.
func (l *Logger) Debug(format string, args ...any) {
	emit(zerolog.DebugLevel, l.fields, format, args...)
}

// Info logs an informational message with the logger's fields.
func (l *Logger) Info(format string, args ...any) {
	emit(zerolog.InfoLevel, l.fields, format, args...)
}

// Warn logs a warning with the logger's fields.
func (l *Logger) Warn(format string, args ...any) {
	emit(zerolog.WarnLevel, l.fields, format, args...)
}

// Error logs an error with the logger's fields.
func (l *Logger) Error(format string, args ...any) {
	emit(zerolog.ErrorLevel, l.fields, format, args...)
}

func emit(lvl zerolog.Level, fields map[string]any, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	ev := base.WithLevel(lvl)
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msgf(format, args...)
}
