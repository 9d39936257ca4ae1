package models

import (
	"fmt"
	"math"
	"time"
)

// Record is the per-client counter state. Request and login counters are
// tracked independently; a zero time means the counter was never started.
type Record struct {
	RequestCount     int
	WindowStart      time.Time
	LoginAttempts    int
	LastLoginAttempt time.Time
}

// InWindow reports whether now still falls inside the request window that
// began at WindowStart.
func (r Record) InWindow(now time.Time, window time.Duration) bool {
	return !r.WindowStart.IsZero() && now.Sub(r.WindowStart) < window
}

// LockoutRemaining returns how long the login lockout still applies at now.
// Zero means the lockout has elapsed (or never started).
func (r Record) LockoutRemaining(now time.Time, lockout time.Duration) time.Duration {
	if r.LastLoginAttempt.IsZero() {
		return 0
	}
	remaining := lockout - now.Sub(r.LastLoginAttempt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IdleSince returns the most recent activity on the record.
func (r Record) IdleSince() time.Time {
	if r.LastLoginAttempt.After(r.WindowStart) {
		return r.LastLoginAttempt
	}
	return r.WindowStart
}

type Reason string

const (
	ReasonNone         Reason = ""
	ReasonRequestLimit Reason = "request_limit"
	ReasonLoginLockout Reason = "login_lockout"
)

const MessageTooManyRequests = "Too many requests. Please try again later."

// LoginLockoutMessage renders the lockout denial, rounding the remaining time
// up to whole minutes.
func LoginLockoutMessage(remaining time.Duration) string {
	return fmt.Sprintf("Too many login attempts. Please try again in %d minutes.", RemainingMinutes(remaining))
}

func RemainingMinutes(remaining time.Duration) int {
	return int(math.Ceil(float64(remaining) / float64(time.Minute)))
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Reason     Reason
	Message    string
	RetryAfter time.Duration
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func DenyRequests(retryAfter time.Duration) Decision {
	return Decision{
		Reason:     ReasonRequestLimit,
		Message:    MessageTooManyRequests,
		RetryAfter: retryAfter,
	}
}

func DenyLogin(remaining time.Duration) Decision {
	return Decision{
		Reason:     ReasonLoginLockout,
		Message:    LoginLockoutMessage(remaining),
		RetryAfter: remaining,
	}
}
