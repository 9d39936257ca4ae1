package audit

import "time"

// EventType names a security event. Values are stable; downstream consumers
// filter on them.
type EventType string

const (
	EventAuthRequest  EventType = "auth_request"
	EventLoginFailed  EventType = "login_failed"
	EventLoginSuccess EventType = "login_success"
	EventTokenRefresh EventType = "token_refresh"
	EventLogout       EventType = "logout"
	EventRateLimited  EventType = "rate_limited"
	EventLoginLocked  EventType = "login_locked"
	EventCSRFRejected EventType = "csrf_rejected"
	EventOriginDenied EventType = "origin_denied"
)

// Event is a security-relevant occurrence. Client fields are filled from the
// request context by NewEvent; Details carries event-specific values.
type Event struct {
	Type      EventType         `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
	ClientIP  string            `json:"client_ip_prefix"`
	UserAgent string            `json:"user_agent,omitempty"`
	Browser   string            `json:"browser,omitempty"`
	OS        string            `json:"os,omitempty"`
	Mobile    bool              `json:"mobile,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}
