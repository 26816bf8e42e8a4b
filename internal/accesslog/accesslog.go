// Package accesslog writes the host's console: prefixed protocol lines and
// pseudo-HTTP access lines for served requests.
package accesslog

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Line prefixes.
const (
	PrefixInfo  = "[info]"
	PrefixDebug = "[debug]"
	PrefixWarn  = "[warn]"
)

// Logger writes user-visible lines to a console writer and every line,
// debug included, to a zap trace sink.
type Logger struct {
	mu      sync.Mutex
	console io.Writer
	trace   *zap.Logger
	now     func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithTrace sets the zap sink for all lines.
func WithTrace(z *zap.Logger) Option {
	return func(l *Logger) { l.trace = z }
}

// New creates a logger writing console lines to w (os.Stdout if nil).
func New(w io.Writer, opts ...Option) *Logger {
	if w == nil {
		w = os.Stdout
	}
	l := &Logger{
		console: w,
		trace:   zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Info logs an [info] line.
func (l *Logger) Info(format string, args ...interface{}) {
	l.Line(PrefixInfo + " " + fmt.Sprintf(format, args...))
}

// Debug logs a [debug] line; it only reaches the trace sink.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.Line(PrefixDebug + " " + fmt.Sprintf(format, args...))
}

// Warn logs a [warn] line.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.Line(PrefixWarn + " " + fmt.Sprintf(format, args...))
}

// Line writes s as-is. Lines starting with [debug] are kept off the console.
func (l *Logger) Line(s string) {
	switch {
	case strings.HasPrefix(s, PrefixDebug):
		l.trace.Debug(s)
		return
	case strings.HasPrefix(s, PrefixWarn):
		l.trace.Warn(s)
	default:
		l.trace.Info(s)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console, s)
}

// Access logs a served request in the shape of an HTTP access log.
// A negative size is omitted from the line.
func (l *Logger) Access(ip, path string, status int, size int64) {
	l.Line(FormatAccess(l.now(), ip, path, status, size))
}

// FormatAccess renders "<ip> [<RFC1123>] <path> <status> [<size>]".
func FormatAccess(t time.Time, ip, path string, status int, size int64) string {
	if ip == "" {
		ip = "-"
	}
	line := fmt.Sprintf("%s [%s] %s %d", ip, t.UTC().Format(http.TimeFormat), path, status)
	if size >= 0 {
		line += fmt.Sprintf(" %d", size)
	}
	return line
}
