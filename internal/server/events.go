package server

import (
	"github.com/charmbracelet/log"
)

// SecurityEvent names an audited gate or session decision.
type SecurityEvent string

const (
	EventRateLimited       SecurityEvent = "rate_limited"
	EventBruteForceLockout SecurityEvent = "brute_force_lockout"
	EventBruteForceFailure SecurityEvent = "brute_force_failure"
	EventAuthFailure       SecurityEvent = "auth_failure"
	EventInsufficientScope SecurityEvent = "insufficient_scope"
	EventMissingUserAgent  SecurityEvent = "missing_user_agent"
	EventSessionCreated    SecurityEvent = "session_created"
	EventSessionRevoked    SecurityEvent = "session_revoked"
	EventSessionRefreshed  SecurityEvent = "session_refreshed"
	EventSessionsPurged    SecurityEvent = "sessions_purged"
)

// SecurityLog writes audit events on a child logger tagged component=security and counts
// them in [Metrics] when set.
type SecurityLog struct {
	logger  *log.Logger
	metrics *Metrics
}

// NewSecurityLog derives the audit logger from l. metrics may be nil.
func NewSecurityLog(l *log.Logger, metrics *Metrics) *SecurityLog {
	return &SecurityLog{logger: l.With("component", "security"), metrics: metrics}
}

// Event logs ev for client and path. Rejections log at WARN, lifecycle events at INFO.
func (s *SecurityLog) Event(ev SecurityEvent, client, path string, kv ...any) {
	if s == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.SecurityEvents.WithLabelValues(string(ev)).Inc()
	}

	args := append([]any{"event", string(ev), "client", client, "path", path}, kv...)
	switch ev {
	case EventSessionCreated, EventSessionRevoked, EventSessionRefreshed, EventSessionsPurged:
		s.logger.Info("security event", args...)
	default:
		s.logger.Warn("security event", args...)
	}
}
