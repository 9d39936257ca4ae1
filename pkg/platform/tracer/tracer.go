// Package tracer is a small tracing facade over OpenTelemetry. Callers depend
// on Tracer and Span only; tests use the recorder.
package tracer

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names emitted by the request pipeline.
const (
	SpanPipeline  = "pipeline.request"
	SpanRateLimit = "pipeline.rate_limit"
	SpanCSRF      = "pipeline.csrf"
	SpanSanitize  = "pipeline.sanitize"
	SpanHandler   = "pipeline.handler"
)

// Attribute keys emitted by the request pipeline.
const (
	AttrMethod         = "http.method"
	AttrRoute          = "http.route"
	AttrClientIPPrefix = "client.ip_prefix"
	AttrLogin          = "auth.login"
	AttrAllowed        = "decision.allowed"
	AttrReason         = "decision.reason"
	AttrStatus         = "http.status_code"
)
