package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	Email         string // masked before it is written
	FlowID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

func (al *AuditLogger) write(auditType string, event AuditEvent) {
	if al == nil || al.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.FlowID != "" {
		attrs = append(attrs, slog.String("flow_id", event.FlowID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAuthAttempt logs credential checks and second-factor submissions
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	al.write("auth", event)
}

// LogFlowTransition records a login flow moving between states
func (al *AuditLogger) LogFlowTransition(flowID, email, from, to string) {
	al.write("login_flow", AuditEvent{
		EventType: "state_transition",
		Email:     email,
		FlowID:    flowID,
		Success:   true,
		Metadata:  map[string]string{"from": from, "to": to},
	})
}

// LogTwoFactorChange records enrollment, confirmation, disable and
// recovery-code regeneration for an account
func (al *AuditLogger) LogTwoFactorChange(eventType, email, method string, success bool) {
	event := AuditEvent{
		EventType: eventType,
		Email:     email,
		Success:   success,
	}
	if method != "" {
		event.Metadata = map[string]string{"method": method}
	}
	al.write("two_factor", event)
}
