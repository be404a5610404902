package logging

import (
	"crypto/rand"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a config log level name to a zerolog level.
// Unknown or empty names fall back to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init sets up the global logger writing human-readable lines to w.
// Every line carries the op id of the current invocation.
// Returns the op id.
func Init(level string, w io.Writer) string {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)

	opID := NewOpID()
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: !isTerminal(w)}
	ctx := zerolog.New(output).With().Timestamp().Str("op", opID)
	if lvl == zerolog.TraceLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return opID
}

// Component returns a child of the global logger for a specific component.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// isTerminal reports whether w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// NewOpID returns a new ULID identifying one CLI invocation or MCP session.
func NewOpID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
