// Package logging configures the process-wide zerolog logger and hands out
// component loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var initialized atomic.Bool

// Logger is the logger type used across the module.
type Logger = zerolog.Logger

// ParseLevel maps a level name to a zerolog level. Unknown names fall back
// to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Init sets up the global logger with console formatting on w. A nil w
// writes to stderr so command output on stdout stays clean.
func Init(level string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	lvl := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)

	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	ctx := zerolog.New(output).With().Timestamp()
	if lvl == zerolog.TraceLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	initialized.Store(true)
}

// For returns a logger for a specific component. Until Init runs it is a
// no-op logger, so library users see nothing unless they opt in.
func For(component string) zerolog.Logger {
	if !initialized.Load() {
		return zerolog.Nop()
	}
	return log.With().Str("component", component).Logger()
}
