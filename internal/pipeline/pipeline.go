// Package pipeline gates handlers behind the request prechecks: rate limit,
// CSRF and input sanitizing, in that order. The first failing check answers
// the request and the handler never runs. Every response, including
// denials and recovered panics, leaves with the hardening headers.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"thgate/internal/audit"
	"thgate/internal/ratelimit/models"
	"thgate/internal/security/csrf"
	"thgate/internal/security/headers"
	"thgate/internal/security/sanitize"
	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/platform/httputil"
	"thgate/pkg/platform/middleware/metadata"
	"thgate/pkg/platform/privacy"
	"thgate/pkg/platform/tracer"
	"thgate/pkg/requestcontext"
)

// Stages, used as metric and event labels.
const (
	StageRateLimit = "rate_limit"
	StageCSRF      = "csrf"
	StageSanitize  = "sanitize"
)

// RateLimiter decides whether a client may proceed.
type RateLimiter interface {
	Check(ctx context.Context, clientID string, isLogin bool) models.Decision
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Pipeline struct {
	limiter        RateLimiter
	identity       *metadata.Middleware
	sanitizer      sanitize.Sanitizer
	logger         *slog.Logger
	metrics        *Metrics
	tracer         tracer.Tracer
	auditPublisher AuditPublisher
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(p *Pipeline) {
		p.auditPublisher = publisher
	}
}

// WithIdentity sets how the client identity is resolved.
func WithIdentity(m *metadata.Middleware) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.identity = m
		}
	}
}

func WithSanitizer(s sanitize.Sanitizer) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.sanitizer = s
		}
	}
}

func New(limiter RateLimiter, opts ...Option) (*Pipeline, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	p := &Pipeline{
		limiter:   limiter,
		identity:  metadata.NewMiddleware(nil),
		sanitizer: sanitize.New(),
		logger:    slog.Default(),
		tracer:    tracer.NewOTel(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// IsLoginRequest reports whether r is a credential check for the lockout:
// a POST to /auth itself or to any path naming login.
func IsLoginRequest(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	return strings.Contains(path, "/login") || strings.HasSuffix(path, "/auth")
}

// Wrap returns next gated behind the prechecks. It has the middleware
// signature so it can be passed to chi's Use or With.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hw := headers.Wrap(w)
		defer p.recoverPanic(hw, r)

		clientID := p.identity.ClientIdentity(r)
		ctx := requestcontext.WithClientMetadata(r.Context(), clientID, r.Header.Get("User-Agent"))
		ctx, span := p.tracer.Start(ctx, tracer.SpanPipeline,
			tracer.String(tracer.AttrMethod, r.Method),
			tracer.String(tracer.AttrClientIPPrefix, privacy.AnonymizeIP(clientID)),
		)
		r = r.WithContext(ctx)

		body, err := p.precheck(hw, r, clientID)
		if err != nil {
			span.End(err)
			return
		}
		if body != nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
		}

		_, hspan := p.tracer.Start(ctx, tracer.SpanHandler)
		next.ServeHTTP(hw, r)
		hspan.End(nil)
		if !hw.Written() {
			hw.WriteHeader(http.StatusOK)
		}
		span.End(nil)
	})
}

// precheck runs the checks in order and writes the denial itself. On success
// it returns the body the handler should see, or nil to leave it untouched.
func (p *Pipeline) precheck(w http.ResponseWriter, r *http.Request, clientID string) ([]byte, error) {
	ctx := r.Context()

	if err := p.checkRateLimit(w, r, clientID); err != nil {
		return nil, err
	}

	if csrf.SafeMethod(r.Method) {
		return nil, nil
	}

	body, err := httputil.ReadBody(r)
	if err != nil {
		p.deny(ctx, StageCSRF, "body", err)
		httputil.WriteBodyError(w, err)
		return nil, err
	}

	_, span := p.tracer.Start(ctx, tracer.SpanCSRF)
	if err := csrf.Validate(r.Method, body, r.Header); err != nil {
		span.End(err)
		p.deny(ctx, StageCSRF, csrfReason(err), err)
		p.emit(ctx, audit.NewEvent(ctx, audit.EventCSRFRejected, "reason", csrfReason(err)))
		httputil.WriteError(w, err)
		return nil, err
	}
	span.End(nil)

	if r.Method != http.MethodPost {
		return body, nil
	}

	_, span = p.tracer.Start(ctx, tracer.SpanSanitize)
	clean, err := sanitizeBody(p.sanitizer, body)
	span.End(err)
	if err != nil {
		p.deny(ctx, StageSanitize, sanitizeReason(err), err)
		httputil.WriteError(w, err)
		return nil, err
	}
	return clean, nil
}

func (p *Pipeline) checkRateLimit(w http.ResponseWriter, r *http.Request, clientID string) error {
	ctx := r.Context()
	isLogin := IsLoginRequest(r)

	_, span := p.tracer.Start(ctx, tracer.SpanRateLimit, tracer.Bool(tracer.AttrLogin, isLogin))
	decision := p.limiter.Check(ctx, clientID, isLogin)
	span.SetAttributes(tracer.Bool(tracer.AttrAllowed, decision.Allowed))
	if decision.Allowed {
		span.End(nil)
		return nil
	}

	err := dErrors.New(dErrors.CodeRateLimited, decision.Message)
	span.SetAttributes(tracer.String(tracer.AttrReason, string(decision.Reason)))
	span.End(err)
	p.deny(ctx, StageRateLimit, string(decision.Reason), err)
	p.emit(ctx, audit.NewEvent(ctx, audit.EventRateLimited, "reason", string(decision.Reason)))
	httputil.WriteMessage(w, http.StatusTooManyRequests, decision.Message)
	return err
}

func (p *Pipeline) recoverPanic(w *headers.ResponseWriter, r *http.Request) {
	rec := recover()
	if rec == nil {
		return
	}
	if rec == http.ErrAbortHandler {
		panic(rec)
	}
	ctx := r.Context()
	p.logger.ErrorContext(ctx, "handler panic recovered",
		"panic", rec,
		"stack", string(debug.Stack()),
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
	)
	if p.metrics != nil {
		p.metrics.IncrementPanic()
	}
	if !w.Written() {
		httputil.WriteMessage(w, http.StatusInternalServerError, httputil.GenericInternalMessage)
	}
}

func (p *Pipeline) deny(ctx context.Context, stage, reason string, err error) {
	if p.metrics != nil {
		p.metrics.IncrementDenial(stage, reason)
	}
	p.logger.WarnContext(ctx, "request denied",
		"stage", stage,
		"reason", reason,
		"error", err,
		"client_ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (p *Pipeline) emit(ctx context.Context, event audit.Event) {
	if p.auditPublisher == nil {
		return
	}
	if err := p.auditPublisher.Emit(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "failed to emit security event",
			"event", event.Type,
			"error", err,
		)
	}
}

func csrfReason(err error) string {
	switch err {
	case csrf.ErrTokenMissing:
		return "missing"
	case csrf.ErrTokenInvalid:
		return "invalid"
	default:
		return "body"
	}
}

func sanitizeReason(err error) string {
	switch err {
	case ErrInvalidEmail:
		return "email"
	case ErrInvalidPassword:
		return "password"
	default:
		return "input"
	}
}
