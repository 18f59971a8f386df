// Package logging provides structured JSON logging for the Karaoke Bar client.
// It uses the standard library log/slog package for structured logging.
package logging

import (
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// NewLogger creates a new structured JSON logger with the specified log level.
// Supported levels: debug, info, warn, error
func NewLogger(level string) *slog.Logger {
	lvl := ParseLevel(level)

	opts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location for debug level
		AddSource: lvl == slog.LevelDebug,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithRequestID returns a logger with request_id attribute
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithComponent returns a logger with component attribute
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithSessionID returns a logger with session_id attribute.
// Only a prefix of the ID is logged since it doubles as the cookie value.
func WithSessionID(logger *slog.Logger, sessionID string) *slog.Logger {
	if len(sessionID) > 8 {
		sessionID = sessionID[:8]
	}
	return logger.With("session_id", sessionID)
}

// SanitizeURL strips the query string and credentials from a URL.
// Song and artist names travel in the query, so they stay out of info logs.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Size formats a byte count for log attributes, e.g. "4.2 MB".
func Size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
