package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// LevelSuccess marks a completed mutation or restore. It sits between INFO and WARN.
const LevelSuccess = slog.Level(2)

// levelName returns the name written to the log stream for l.
func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < LevelSuccess:
		return "INFO"
	case l < slog.LevelWarn:
		return "SUCCESS"
	case l < slog.LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// dupxHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<session>\t<message>\t<key=value ...>
type dupxHandler struct {
	mu      *sync.Mutex
	w       io.Writer
	session string
	level   slog.Leveler
	attrs   []slog.Attr
}

func newHandler(w io.Writer, session string, level slog.Leveler) *dupxHandler {
	return &dupxHandler{mu: &sync.Mutex{}, w: w, session: session, level: level}
}

func (h *dupxHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *dupxHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, levelName(r.Level), h.session, r.Message)
	if err != nil {
		return err
	}

	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *dupxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dupxHandler{
		mu:      h.mu,
		w:       h.w,
		session: h.session,
		level:   h.level,
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *dupxHandler) WithGroup(string) slog.Handler { return h }

// consoleLevel is the minimum level shown on the console.
func consoleLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelInfo
	}
	return LevelSuccess
}

// newLogger creates a structured logger that writes everything to logDir/dupx.log
// and SUCCESS and above (INFO and above when verbose) to console.
// It returns the slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir, session string, console io.Writer, verbose bool) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "dupx.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return newFanoutLogger(f, console, session, verbose), f, nil
}

func newFanoutLogger(file, console io.Writer, session string, verbose bool) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		newHandler(file, session, slog.LevelDebug),
		newHandler(console, session, consoleLevel(verbose)),
	))
}

// slogAdapter wraps *slog.Logger to satisfy the dupx.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

func (a *slogAdapter) Success(msg string, args ...any) {
	a.l.Log(context.Background(), LevelSuccess, msg, args...)
}
