// Package logging configures the broker's structured logger: zerolog's
// console writer, colorized via mattn/go-colorable the same way franz-go's
// kzerolog plugin wires it up for production use.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger is an alias so callers outside this package never need to import
// zerolog directly.
type Logger = zerolog.Logger

// New builds a Logger at the given level ("debug", "info", "warn",
// "error"). An unrecognized level falls back to info. When stdout is a
// terminal, output is a colorized human-readable console line; otherwise
// it is newline-delimited JSON suitable for log collection.
func New(level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if isatty.IsTerminal(os.Stdout.Fd()) {
		w = zerolog.ConsoleWriter{
			Out:        colorable.NewColorableStdout(),
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests that don't want
// log noise but still need to satisfy a Logger-shaped dependency.
func Nop() Logger {
	return zerolog.Nop()
}
