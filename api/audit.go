package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/postcraft-hq/postcraft/guard"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditCSRFRejected        AuditEvent = "csrf_rejected"
	AuditRateLimited         AuditEvent = "rate_limited"
	AuditRateLimitFailOpen   AuditEvent = "rate_limit_fail_open"
	AuditOnboardingCompleted AuditEvent = "onboarding_completed"
	AuditOnboardingSkipped   AuditEvent = "onboarding_skipped"
	AuditContactSubmitted    AuditEvent = "contact_submitted"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logUser is a convenience for events tied to a user.
func (al *auditLogger) logUser(event AuditEvent, r *http.Request, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// guardRejected is the guard.RejectFunc for the API's pipeline.
func (al *auditLogger) guardRejected(r *http.Request, code string) {
	reason := slog.String("reason", code)
	switch code {
	case guard.CodeCSRFTokenMissing, guard.CodeCSRFTokenInvalid:
		al.log(AuditCSRFRejected, r, reason)
	case guard.CodeRateLimitExceeded:
		al.log(AuditRateLimited, r, reason)
	case guard.CodeRateLimitFailOpen:
		al.log(AuditRateLimitFailOpen, r, reason)
	}
}
