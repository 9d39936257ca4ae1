// Package headers hardens every response with a fixed set of security headers.
package headers

import "net/http"

const ContentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://www.gstatic.com https://cdn.jsdelivr.net https://cdnjs.cloudflare.com; " +
	"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net https://cdnjs.cloudflare.com; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' https://cdnjs.cloudflare.com;"

// Security is applied to every response, overriding any value a handler set.
var Security = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Content-Security-Policy":   ContentSecurityPolicy,
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Cache-Control":             "no-store, no-cache, must-revalidate, proxy-revalidate",
	"Pragma":                    "no-cache",
	"Expires":                   "0",
}

// Apply writes the security headers into h.
func Apply(h http.Header) {
	for k, v := range Security {
		h.Set(k, v)
	}
}

// Middleware applies the headers just before the status line is written, so
// handler values are overridden and every exit path (denials, 404s,
// recovered panics) carries them.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(Wrap(w), r)
	})
}

// ResponseWriter defers header hardening until the response is committed.
type ResponseWriter struct {
	http.ResponseWriter
	written bool
}

// Wrap returns w wrapped, or w itself when already wrapped.
func Wrap(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.written = true
		Apply(rw.ResponseWriter.Header())
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Written reports whether the response has been committed.
func (rw *ResponseWriter) Written() bool {
	return rw.written
}

func (rw *ResponseWriter) Flush() {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
