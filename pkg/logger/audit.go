package logger

import (
	"context"
	"log/slog"
	"time"
)

// FallbackEvent is the flattened form of an audit entry written to the local
// fallback log when the durable audit store is unavailable.
type FallbackEvent struct {
	EventType string
	Subject   string
	Severity  string
	Detail    map[string]interface{}
}

// FallbackAuditLogger writes audit events to the process log. It is the
// best-effort destination of last resort: a logging outage must never block
// an authentication decision, so callers treat Write as infallible.
type FallbackAuditLogger struct {
	logger *slog.Logger
}

// NewFallbackAuditLogger creates a new fallback audit logger
func NewFallbackAuditLogger(logger *slog.Logger) *FallbackAuditLogger {
	return &FallbackAuditLogger{logger: logger}
}

// Write emits the event to the process log at a level matching its severity.
func (fl *FallbackAuditLogger) Write(event FallbackEvent) {
	attrs := []slog.Attr{
		slog.String("audit_fallback", "true"),
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Subject != "" {
		attrs = append(attrs, slog.String("subject", event.Subject))
	}
	for key, val := range event.Detail {
		attrs = append(attrs, slog.Any(key, val))
	}

	level := slog.LevelInfo
	switch event.Severity {
	case "warning":
		level = slog.LevelWarn
	case "error", "security":
		level = slog.LevelError
	}

	fl.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
