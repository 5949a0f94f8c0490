package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
)

var level = new(slog.LevelVar)

// Configure installs a text slog handler as the default logger. When file is
// set, records are appended there instead of stderr; the terminal UI needs
// this because it owns the screen. The returned closer releases the file.
func Configure(levelName, file string) (*slog.Logger, io.Closer, error) {
	SetLevel(levelName)

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if file != "" {
		f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closer = f
	}

	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(l)
	return l, closer, nil
}

// SetLevel changes the level of the configured handler. Unknown names mean info.
func SetLevel(name string) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "WARN", "WARNING":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Level returns the current level.
func Level() slog.Level { return level.Level() }

// Screen prints a progress line for a human operator.
func Screen(text string, c *color.Color) {
	if c == nil {
		fmt.Println(text)
		return
	}
	c.Println(text)
}

// Colours used by the command line tools.
var (
	Info    = color.RGB(150, 150, 250)
	Success = color.RGB(150, 250, 150)
	Failure = color.RGB(250, 120, 120)
	Notice  = color.RGB(250, 250, 150)
)
