// Package logging configures slog for clipit commands.
//
// All loggers built here share one level, so a settings reload can raise
// or lower verbosity of a running daemon with SetLevel.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var formatAliases = map[string]Format{
	"text":  FormatText,
	"tint":  FormatText,
	"human": FormatText,
	"json":  FormatJSON,
}

// level is shared by every handler New creates
var level = new(slog.LevelVar)

// ParseFormat maps a settings value to a Format. Unknown values mean auto.
func ParseFormat(s string) Format {
	if f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f
	}
	return FormatAuto
}

// ParseLevel converts a settings value to a slog.Level, yielding fallback
// when s is empty or not a level name.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return fallback
	}
	return l
}

// SetLevel changes the level of every logger built by New or Setup
func SetLevel(s string, fallback slog.Level) {
	level.Set(ParseLevel(s, fallback))
}

// Level returns the current shared level
func Level() slog.Level {
	return level.Level()
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New builds a logger writing to w at lvl. Auto format means tinter on a
// terminal and JSON everywhere else, so daemon output stays parseable.
func New(w io.Writer, format Format, lvl slog.Level) *slog.Logger {
	level.Set(lvl)

	if format == FormatText || (format == FormatAuto && IsTTY(w)) {
		return slog.New(tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup builds a logger from settings values, installs it as the slog
// default and returns it.
func Setup(w io.Writer, format, lvl string, fallback slog.Level) *slog.Logger {
	l := New(w, ParseFormat(format), ParseLevel(lvl, fallback))
	slog.SetDefault(l)
	return l
}

// Component tags l with the subsystem that logs through it. A nil l uses
// the slog default.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}
