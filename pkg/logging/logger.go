// Package logging provides structured logging configuration using zerolog.
//
// Every package of the reporter logs through a component logger obtained
// from NewLogger. The CLI calls Setup once, before any component logger is
// created, so that all of them share the configured level and output.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs request flow, permit waits and recorded results.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs reports, created test runs and command summaries.
	LevelInfo LogLevel = "info"

	// LevelWarn logs conditions the reporter works around.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed reports only.
	LevelError LogLevel = "error"
)

// Component names used with NewLogger.
const (
	ComponentClient   = "qatouch-client"
	ComponentResults  = "results"
	ComponentReporter = "reporter"
	ComponentAdapter  = "gotest-adapter"
	ComponentCLI      = "cli"
)

// levels maps accepted level names, including aliases, to zerolog levels.
var levels = map[string]struct {
	name  LogLevel
	level zerolog.Level
}{
	"debug":   {LevelDebug, zerolog.DebugLevel},
	"info":    {LevelInfo, zerolog.InfoLevel},
	"":        {LevelInfo, zerolog.InfoLevel},
	"warn":    {LevelWarn, zerolog.WarnLevel},
	"warning": {LevelWarn, zerolog.WarnLevel},
	"error":   {LevelError, zerolog.ErrorLevel},
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON lines.
	Pretty bool

	// Output receives log lines. Nil means os.Stderr, which keeps stdout
	// free for the test stream passed through by the report command.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name from flags or configuration.
// Matching ignores case and surrounding space; empty means info.
func ParseLevel(name string) (LogLevel, error) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
	}
	return l.name, nil
}

// zerologLevel converts a LogLevel, falling back to info for unknown names.
func zerologLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[strings.ToLower(string(level))]; ok {
		return l.level
	}
	return zerolog.InfoLevel
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request flow (endpoint, method, status)
//   - Permit waits and grants
//   - Page fan-out progress
//   - Cache hit/miss and recorded results
//
// Info: Normal operation events
//   - Results reported to a test run
//   - Test runs created
//   - Command summaries
//
// Warn: Warning conditions that don't prevent operation
//   - Cache errors (fallback to direct request)
//   - Tests without a case marker
//
// Error: Error conditions requiring attention
//   - Failed report flushes
//   - Configuration errors
//
// Context Fields:
//   - component: one of the Component* constants
//   - endpoint: QA Touch endpoint name
//   - status: HTTP status code
//   - error_class: Error classification (client, server, network, service, malformed)
//   - testrun: Test run key
//   - case: Test case id
//   - duration / waited: Request or permit wait duration
