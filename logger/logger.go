// Package logger configures the process-wide slog default: colored,
// single-line output on stdout, optionally mirrored as plain text to the
// file named by LOG_FILE.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

const logTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// levelTrace sits below debug; enabled via -log-level=trace.
const levelTrace = slog.Level(-8)

// levelVar holds the current log level; defaults to Info.
var levelVar slog.LevelVar

// colorHandler prints "timestamp LEVEL message" itself to control ordering
// and styling, then delegates the keyed attrs to a text handler.
type colorHandler struct {
	inner  slog.Handler
	writer io.Writer
}

func (h *colorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *colorHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String()
	var color string
	switch {
	case r.Level >= slog.LevelError:
		color, level = colorRed+colorBold, "ERROR"
	case r.Level >= slog.LevelWarn:
		color, level = colorYellow+colorBold, "WARN"
	case r.Level >= slog.LevelInfo:
		color, level = colorBlue, "INFO"
	case r.Level >= slog.LevelDebug:
		color, level = colorGray, "DEBUG"
	default:
		color, level = colorGray, "TRACE"
	}

	attrsOnly := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		attrsOnly.AddAttrs(a)
		return true
	})

	ts := r.Time.Format(logTimeLayout)
	if colorsEnabled() {
		fmt.Fprintf(h.writer, "%s%s%s %s%s%s %s%s%s ",
			colorGray, ts, colorReset,
			color, level, colorReset,
			colorCyan, r.Message, colorReset,
		)
	} else {
		fmt.Fprintf(h.writer, "%s %s %s ", ts, level, r.Message)
	}
	return h.inner.Handle(ctx, attrsOnly)
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{inner: h.inner.WithAttrs(attrs), writer: h.writer}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{inner: h.inner.WithGroup(name), writer: h.writer}
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// dualWriter mirrors colored terminal output to a plain-text file.
type dualWriter struct {
	color io.Writer
	plain io.Writer
}

func (w dualWriter) Write(p []byte) (int, error) {
	if _, err := w.color.Write(p); err != nil {
		return 0, err
	}
	if _, err := w.plain.Write(ansiRegex.ReplaceAll(p, nil)); err != nil {
		return 0, err
	}
	return len(p), nil
}

var logger *slog.Logger

func init() {
	out := io.Writer(os.Stdout)
	if path := strings.TrimSpace(os.Getenv("LOG_FILE")); path != "" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "failed to create log directory %s: %v\n", dir, err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		} else {
			out = dualWriter{color: os.Stdout, plain: f}
		}
	}

	handler := &colorHandler{
		inner: slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:       &levelVar,
			ReplaceAttr: replaceAttr,
		}),
		writer: out,
	}
	logger = slog.New(handler)
	levelVar.Set(slog.LevelInfo)
	slog.SetDefault(logger)
}

func colorsEnabled() bool {
	return os.Getenv("NO_COLOR") == ""
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	// Drop default time/level/msg; the handler prints those in its prefix.
	switch a.Key {
	case slog.TimeKey, slog.LevelKey, slog.MessageKey:
		return slog.Attr{}
	}
	if a.Key == "error" || a.Key == "err" {
		if colorsEnabled() && a.Value.Kind() == slog.KindString {
			a.Value = slog.StringValue(colorRed + a.Value.String() + colorReset)
		}
	}
	return a
}

// Configure sets the global level from its string spelling.
func Configure(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		levelVar.Set(slog.LevelError)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "trace":
		levelVar.Set(levelTrace)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// L returns the global logger.
func L() *slog.Logger { return logger }
