// Package logger configures log/slog for the service.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
)

// Module provides the application logger and the HTTP access log.
var Module = fx.Module("logger",
	fx.Provide(
		NewLogger,
		NewHTTPLogger,
	),
)

// NewLogger builds the root logger. LOG_LEVEL selects the level (default
// info); GO_ENV=production switches to JSON output.
func NewLogger() *slog.Logger {
	return newLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("GO_ENV"))
}

func newLogger(w io.Writer, level, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if env == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Scope tags a logger with the component it belongs to.
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error wraps err as the "error" attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// HTTPLogger writes one access log line per request in combined-log style.
// HTTP_LOG_FILE names the file; without it lines are discarded.
type HTTPLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHTTPLogger opens the access log named by HTTP_LOG_FILE.
func NewHTTPLogger(log *slog.Logger) *HTTPLogger {
	path := os.Getenv("HTTP_LOG_FILE")
	if path == "" {
		return &HTTPLogger{w: io.Discard}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.Warn("http log directory unavailable, access log disabled", Error(err))
		return &HTTPLogger{w: io.Discard}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		log.Warn("http log file unavailable, access log disabled", Error(err))
		return &HTTPLogger{w: io.Discard}
	}
	return &HTTPLogger{w: f}
}

// NewHTTPLoggerWriter returns an access logger on w.
func NewHTTPLoggerWriter(w io.Writer) *HTTPLogger {
	return &HTTPLogger{w: w}
}

// LogRequest appends one access log line.
func (l *HTTPLogger) LogRequest(ip, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s - - [%s] %q %d %s %q %s\n",
		ip,
		time.Now().UTC().Format("02/Jan/2006:15:04:05 -0700"),
		method+" "+uri,
		status,
		latency,
		userAgent,
		requestID,
	)
}
