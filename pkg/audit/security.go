// Package audit provides security audit logging for SIEM consumption.
// Authentication failures and authorization denials are logged as
// structured JSON events under a dedicated logger namespace so they can
// be filtered and alerted on independently of application logs.
package audit

import (
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering
// and alerting.
type SecurityEventType string

const (
	// EventAuthFailure is logged when a Bearer JWT is missing, malformed
	// or fails validation.
	EventAuthFailure SecurityEventType = "auth_failure"
	// EventServiceTokenRejected is logged when an internal endpoint is
	// called with a wrong or missing service token. Repeated events from
	// one address suggest probing of the agent API.
	EventServiceTokenRejected SecurityEventType = "service_token_rejected"
	// EventRoleDenied is logged when an authenticated user lacks the
	// role an endpoint requires.
	EventRoleDenied SecurityEventType = "role_denied"
)

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor. Events are emitted
// under the "security_audit" namespace for easy filtering.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogAuthFailure records a rejected Bearer authentication attempt.
func (a *SecurityAuditor) LogAuthFailure(r *http.Request, reason error) {
	a.logger.Warn("Authentication failure",
		zap.String("event_type", string(EventAuthFailure)),
		zap.Time("event_time", time.Now().UTC()),
		zap.String("client_ip", clientIP(r)),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.String("severity", "warning"),
		zap.Error(reason))
}

// LogServiceTokenRejected records a rejected internal-endpoint call.
func (a *SecurityAuditor) LogServiceTokenRejected(r *http.Request) {
	a.logger.Error("Service token rejected",
		zap.String("event_type", string(EventServiceTokenRejected)),
		zap.Time("event_time", time.Now().UTC()),
		zap.String("client_ip", clientIP(r)),
		zap.String("path", r.URL.Path),
		zap.String("severity", "critical"))
}

// LogRoleDenied records an authenticated request denied by role.
func (a *SecurityAuditor) LogRoleDenied(r *http.Request, userID, role string) {
	a.logger.Warn("Role denied",
		zap.String("event_type", string(EventRoleDenied)),
		zap.Time("event_time", time.Now().UTC()),
		zap.String("client_ip", clientIP(r)),
		zap.String("path", r.URL.Path),
		zap.String("user_id", userID),
		zap.String("role", role),
		zap.String("severity", "warning"))
}

// clientIP strips the port from RemoteAddr. Proxy headers are not
// trusted here; the deployment terminates TLS at the engine itself.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
