// Package logging configures zerolog for the migrator and its libraries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelTrace LogLevel = "trace"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentClient   = "xog-client"
	ComponentMigrator = "migrator"
	ComponentJournal  = "journal"
	ComponentCLI      = "xog-migrate"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	// Colors are used only when Output is a terminal.
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
// Loggers created with NewLogger afterwards inherit its output.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: !isTerminal(out)}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// ParseLevel converts a level name to a zerolog level. Unknown names map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Trace: raw XOG envelopes (request and response bodies)
//
// Debug: per-page and per-call flow
//   - page read / page written
//   - call outcome and duration
//   - resty transport messages
//
// Info: run lifecycle
//   - login / logout
//   - migration start and completion
//   - journal run start and finish
//   - metrics server startup/shutdown
//
// Warn: conditions that don't stop the run
//   - a page write that failed (the run error follows at error level)
//   - journal failures (the journal never fails a migration)
//
// Error: the run failed
//   - migration failed (first error wins)
//   - login failed
//   - configuration errors
//
// Context Fields:
//   - client: endpoint name ("source", "destination")
//   - object_type: XOG object type of the bundle
//   - bundle: 1-based position of the bundle in the request
//   - page: 1-based page index
//   - skip: offset the page was read from
//   - error_class: client, server, network, protocol, unclassified, malformed
//   - severity: XOG error severity
//   - duration: call or run duration
//   - run_id: journal run ID
