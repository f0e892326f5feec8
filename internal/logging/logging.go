// Package logging configures the zerolog logger shared by every command.
//
// Diagnostics always go to stderr so stdout stays reserved for tool output
// and JSON summaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options controls logger construction.
type Options struct {
	// Level is a level name as accepted by ParseLevel. Unknown or empty
	// values fall back to warn.
	Level string

	// Verbose forces debug level regardless of Level.
	Verbose bool

	// Out is the destination. Defaults to os.Stderr.
	Out io.Writer

	// NoColor disables ANSI colors. Colors are also disabled when Out is
	// a file that is not a terminal.
	NoColor bool
}

// New builds a console logger from opts.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	noColor := opts.NoColor
	if f, ok := out.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		noColor = true
	}

	level, _ := ParseLevel(opts.Level)
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: time.Kitchen,
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level. ok is false when raw is
// empty or unrecognized, in which case warn is returned.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.WarnLevel, false
	}
}
