// Package requesttime pins one "now" per HTTP request. Window and lockout
// arithmetic, event timestamps and response envelopes all read the same
// instant through requestcontext.Now.
package requesttime

import (
	"net/http"
	"time"

	"thgate/pkg/requestcontext"
)

// Middleware captures time.Now at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock captures the time from clock instead of the wall clock. Feature
// tests use it to move through rate-limit windows and lockouts.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
