package logging

import (
	"io"
	"strings"

	"github.com/kataras/golog"
)

// Setup configures the process-wide root logger. Component loggers created
// afterwards with Child inherit level and output.
func Setup(level string, w io.Writer) {
	if w != nil {
		golog.SetOutput(w)
	}
	golog.SetLevel(normalizeLevel(level))
	golog.SetTimeFormat("15:04:05.000")
}

// Child returns a component logger whose lines are prefixed with "[name]"
func Child(name string) *golog.Logger {
	return golog.Child("[" + name + "]")
}

// New returns an independent logger writing to w, for tests and embedding
func New(w io.Writer, level string) *golog.Logger {
	l := golog.New()
	l.SetOutput(w)
	l.SetLevel(normalizeLevel(level))
	l.SetTimeFormat("")
	return l
}

// Discard returns a logger that drops everything
func Discard() *golog.Logger {
	return New(io.Discard, "disable")
}

func normalizeLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "":
		return "info"
	case "warning":
		return "warn"
	case "off", "none", "quiet":
		return "disable"
	default:
		return l
	}
}
