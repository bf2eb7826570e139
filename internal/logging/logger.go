package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"

	"sfxforwarder/internal/config"
)

const (
	ansiReset   = "\x1b[0m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
	ansiGray    = "\x1b[90m"
)

var (
	stderr = io.Writer(os.Stderr)

	tokenPattern = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|\b\d{1,3}(?:\.\d{1,3}){3}\b|\b\d+(?:\.\d+)?\b`)
	ipPattern    = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}$`)
)

// New builds a slog logger from console/file sink settings.
// Params: cfg logging section of runtime settings.
// Returns: logger, close func for opened sinks, or error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var (
		handlers []slog.Handler
		closers  []io.Closer
	)

	if cfg.Console.Enabled {
		handler, err := newHandler(consoleWriter(cfg.Console.Format), cfg.Console)
		if err != nil {
			return nil, nil, fmt.Errorf("console sink: %w", err)
		}
		handlers = append(handlers, handler)
	}

	if cfg.File.Enabled {
		file, err := openLogFile(cfg.File.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("file sink: %w", err)
		}
		handler, err := newHandler(file, cfg.File)
		if err != nil {
			_ = file.Close()
			return nil, nil, fmt.Errorf("file sink: %w", err)
		}
		handlers = append(handlers, handler)
		closers = append(closers, file)
	}

	closeFn := func() {
		var err error
		for _, closer := range closers {
			err = multierr.Append(err, closer.Close())
		}
		if err != nil {
			fmt.Fprintf(stderr, "close log sinks: %v\n", err)
		}
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil)), closeFn, nil
	case 1:
		return slog.New(handlers[0]), closeFn, nil
	default:
		return slog.New(&fanoutHandler{handlers: handlers}), closeFn, nil
	}
}

// ParseLevel maps a level name to slog level.
// Params: level is debug, info, warn or error.
// Returns: slog level or error.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", level)
	}
}

func newHandler(dst io.Writer, sink config.LogSinkConfig) (slog.Handler, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(sink.Format) {
	case "json":
		return slog.NewJSONHandler(dst, opts), nil
	case "", "line":
		return slog.NewTextHandler(dst, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", sink.Format)
	}
}

// consoleWriter colorizes line output when stderr is a terminal.
func consoleWriter(format string) io.Writer {
	if strings.ToLower(format) == "json" {
		return stderr
	}
	file, ok := stderr.(*os.File)
	if !ok {
		return stderr
	}
	info, err := file.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return stderr
	}
	return &colorLineWriter{dst: stderr}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return file, nil
}

// colorLineWriter paints slog text lines: level sets the base color,
// quoted strings, IPs and numbers get their own color.
type colorLineWriter struct {
	dst io.Writer
}

// Write colorizes one formatted log line.
// Params: p is one slog text line, optionally newline terminated.
// Returns: len(p) on success or the destination write error.
func (w *colorLineWriter) Write(p []byte) (int, error) {
	line := p
	var newline []byte
	if bytes.HasSuffix(line, []byte("\n")) {
		line = line[:len(line)-1]
		newline = []byte("\n")
	}

	base := levelColor(line)
	if base == "" {
		if _, err := w.dst.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	var out bytes.Buffer
	out.Grow(len(p) + 64)
	out.WriteString(base)
	last := 0
	for _, loc := range tokenPattern.FindAllIndex(line, -1) {
		out.Write(line[last:loc[0]])
		token := line[loc[0]:loc[1]]
		out.WriteString(tokenColor(token))
		out.Write(token)
		out.WriteString(ansiReset)
		out.WriteString(base)
		last = loc[1]
	}
	out.Write(line[last:])
	out.WriteString(ansiReset)
	out.Write(newline)

	if _, err := w.dst.Write(out.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func levelColor(line []byte) string {
	switch {
	case bytes.Contains(line, []byte("level=ERROR")):
		return ansiRed
	case bytes.Contains(line, []byte("level=WARN")):
		return ansiMagenta
	case bytes.Contains(line, []byte("level=INFO")):
		return ansiBlue
	case bytes.Contains(line, []byte("level=DEBUG")):
		return ansiGray
	default:
		return ""
	}
}

func tokenColor(token []byte) string {
	switch {
	case token[0] == '"':
		return ansiGreen
	case ipPattern.Match(token):
		return ansiCyan
	default:
		return ansiYellow
	}
}

// fanoutHandler sends every record to all sinks that enable its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		err = multierr.Append(err, handler.Handle(ctx, record.Clone()))
	}
	return err
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for idx, handler := range h.handlers {
		next[idx] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for idx, handler := range h.handlers {
		next[idx] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
