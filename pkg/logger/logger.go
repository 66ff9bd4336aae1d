// Package logger initializes the process-wide slog logger: colorized,
// level-filtered text output for a terminal, plain JSON for machine
// consumption, and filtering of third-party library logs unless running at
// debug level.
package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const codeforgePackagePrefix = "github.com/codeforge-dev/codeforge"

// ParseLevel converts a string log level to slog.Level. Unrecognized
// strings fall back to Info rather than failing, since this is almost
// always called after config.Validate has already rejected a bad value.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// filteringHandler suppresses log lines emitted from outside this module
// unless the configured level is Debug, so a vendored dependency's own
// logging doesn't drown out the orchestrator's.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), codeforgePackagePrefix) || strings.Contains(file, "codeforge/")
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// coloredTextHandler renders level + message + attrs with an ANSI color
// keyed to severity, for interactive terminal sessions.
type coloredTextHandler struct {
	writer  *os.File
	minimum slog.Level
}

func (h *coloredTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minimum
}

func (h *coloredTextHandler) Handle(ctx context.Context, record slog.Record) error {
	var buf strings.Builder
	buf.WriteString(record.Time.Format("15:04:05 "))
	buf.WriteString(levelColor(record.Level))
	buf.WriteString(record.Level.String())
	buf.WriteString("\033[0m ")
	buf.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})
	buf.WriteString("\n")
	_, err := h.writer.WriteString(buf.String())
	return err
}

func (h *coloredTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *coloredTextHandler) WithGroup(name string) slog.Handler      { return h }

// Init sets the process-wide slog default logger: "json" for machine
// consumption, anything else for the colorized text format (plain when
// output isn't a terminal).
func Init(level slog.Level, output *os.File, format string) {
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	default:
		if isTerminal(output) {
			handler = &coloredTextHandler{writer: output, minimum: level}
		} else {
			handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
		}
	}

	defaultLogger = slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens (creating if needed) a file for append-only logging,
// returning the handle and a close func.
func OpenLogFile(path string) (*os.File, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// Get returns the process-wide logger, initializing it with Info-level
// colorized text output to stderr if Init hasn't been called yet.
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, "text")
	}
	return defaultLogger
}
