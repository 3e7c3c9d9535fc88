package audit

import (
	"context"
	"log/slog"
	"time"
)

type ctxKey string

// RequestIDKey carries the inbound request id for audit lines.
const RequestIDKey ctxKey = "request_id"

// Logger writes structured audit lines for state-changing operations.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("log_type", "audit"))}
}

func (al *Logger) LogAction(ctx context.Context, tenantID, userID, action, resource, resourceID, status, details string) {
	if al == nil {
		return
	}
	requestID, _ := ctx.Value(RequestIDKey).(string)

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestID),
		slog.Time("timestamp", time.Now()),
	)
}

// LogTransition records a lifecycle status change attempt.
func (al *Logger) LogTransition(ctx context.Context, tenantID, userID, resource, resourceID, toStatus string, err error) {
	al.LogAction(ctx, tenantID, userID, "transition:"+toStatus, resource, resourceID, outcome(err), errDetails(err))
}

// LogConversion records a repair request conversion attempt.
func (al *Logger) LogConversion(ctx context.Context, tenantID, userID, requestID, projectID string, err error) {
	details := errDetails(err)
	if err == nil {
		details = "project " + projectID
	}
	al.LogAction(ctx, tenantID, userID, "convert", "repair_request", requestID, outcome(err), details)
}

// LogTenantDeletion records a cascading tenant deletion.
func (al *Logger) LogTenantDeletion(ctx context.Context, tenantID, userID, status, details string) {
	al.LogAction(ctx, tenantID, userID, "delete", "tenant", tenantID, status, details)
}

// LogRegistrationReview records an approval or rejection of a strata registration.
func (al *Logger) LogRegistrationReview(ctx context.Context, tenantID, userID, action, registrationID, details string, err error) {
	if err != nil {
		details = errDetails(err)
	}
	al.LogAction(ctx, tenantID, userID, action, "registration", registrationID, outcome(err), details)
}

func (al *Logger) LogDenied(ctx context.Context, tenantID, userID, reason string) {
	al.LogAction(ctx, tenantID, userID, "access_denied", "api", "", "denied", reason)
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

func errDetails(err error) string {
	if err != nil {
		return err.Error()
	}
	return ""
}
