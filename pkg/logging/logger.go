// Package logging configures zerolog for the CallRail extractor.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File, when set, receives a JSON copy of every line. It is truncated by Open.
	File string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// Open is Setup plus the optional log file. The returned close function
// flushes and closes the file and is never nil.
func Open(cfg Config) (zerolog.Logger, func() error, error) {
	if cfg.File == "" {
		return Setup(cfg), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
	}

	console := cfg.Output
	if console == nil {
		console = os.Stderr
	}
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: console}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	logger := zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	log.Logger = logger

	return logger, f.Close, nil
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRunID returns a component logger that also carries run_id.
func WithRunID(component, runID string) zerolog.Logger {
	return log.With().Str("component", component).Str("run_id", runID).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request flow (method, path, query)
//   - Batch windows (offset, size, records)
//   - Scope cache hits and misses
//
// Info: Normal operation events
//   - Endpoint start and completion
//   - Account scope resolved
//   - Output files written and uploaded
//   - The run summary block
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Request budget close to exhaustion
//   - Company scope unavailable (request sent without company_id)
//   - Endpoints that returned no records
//
// Error: Error conditions requiring attention
//   - Failed batches (after retries)
//   - Failed endpoints (sink errors, panics)
//   - Unresolvable account scope
//   - Configuration errors
//
// Context Fields:
//   - component: callrail-client, retry, fetcher, orchestrator, coordinator, scope, sink, ratelimit, cache
//   - run_id: uuid of the current run
//   - endpoint: catalog endpoint name
//   - status_code: HTTP status code
//   - kind: error kind (unauthenticated, rate_limited, server_failure, ...)
//   - attempts: attempts used by a retried operation
//   - offset, size: fetch window
