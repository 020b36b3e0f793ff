// Package logging configures the process-wide slog logger and the helpers used
// to keep personal data out of log lines.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a logger writing to stdout. format is "json" or "text"; level is
// one of debug, info, warn, error (unknown values fall back to info).
func New(format, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, format, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Discard returns a logger that drops everything. Used by tests and as a nil fallback.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RedactEmail replaces the local part of an email with a short SHA-256 prefix,
// keeping the domain so operators can still spot provider-wide problems.
// The same address always redacts to the same value.
func RedactEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		domain = ""
	}
	sum := sha256.Sum256([]byte(local))
	redacted := hex.EncodeToString(sum[:])[:10]
	if domain == "" {
		return redacted
	}
	return redacted + "@" + domain
}

// Email is a slog attribute carrying a redacted email.
func Email(email string) slog.Attr {
	return slog.String("email", RedactEmail(email))
}
