package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/syncgate/tokenserver/internal/uuid"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditTokenIssued         AuditEvent = "token_issued"
	AuditAuthFailed          AuditEvent = "auth_failed"
	AuditAssignmentMissing   AuditEvent = "assignment_missing"
	AuditClientStateMismatch AuditEvent = "client_state_mismatch"
	AuditAssignmentPut       AuditEvent = "assignment_put"
	AuditAssignmentDeleted   AuditEvent = "assignment_deleted"
	AuditAdminDenied         AuditEvent = "admin_denied"
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

// log writes a structured audit log entry. Only pseudonymized identifiers
// may appear in attrs; raw account identifiers never reach the log.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("event_id", uuid.New()),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logEvent is a convenience for events carrying a hashed account ID.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, hashedAccountID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("hashed_account_id", hashedAccountID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a failed or rejected token request.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
