// Package internal holds support code shared by the ipv4 and tcp packages
// that has no business being part of their public API: logging helpers,
// the byte ring buffer backing send/receive queues, and initial sequence
// number generation.
package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is one step more verbose than slog.LevelDebug, used for
// per-segment trace logging (every emitted/received segment) that would
// otherwise drown out ordinary debug logging.
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogEnabled reports whether l has a handler enabled for lvl. A nil logger
// is always disabled.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// LogAttrs is the logging helper used by every package logger here so that
// a nil *slog.Logger silently disables logging instead of panicking.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
