package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditResourceCreated      AuditEvent = "resource_created"
	AuditResourceDeleted      AuditEvent = "resource_deleted"
	AuditProtectionSet        AuditEvent = "protection_set"
	AuditTwoFactorSetup       AuditEvent = "2fa_setup"
	AuditTwoFactorEnabled     AuditEvent = "2fa_enabled"
	AuditTwoFactorVerified    AuditEvent = "2fa_verified"
	AuditTwoFactorFailed      AuditEvent = "2fa_failed"
	AuditTwoFactorDisabled    AuditEvent = "2fa_disabled"
	AuditTwoFactorRateLimited AuditEvent = "2fa_rate_limited"
	AuditLockoutsReset        AuditEvent = "lockouts_reset"
	AuditCronUnauthorized     AuditEvent = "cron_unauthorized"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Only identifiers and outcomes are logged, never codes, passwords, or key
// material.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", append(baseAttrs, attrs...)...)
}

func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, attrs ...slog.Attr) {
	al.log(event, r, append([]slog.Attr{slog.String("reason", reason)}, attrs...)...)
}
