// Package siteconfig serves the public Firebase web client configuration.
package siteconfig

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"thgate/internal/audit"
	"thgate/internal/platform/config"
	"thgate/pkg/platform/httputil"
	"thgate/pkg/requestcontext"
)

const (
	MessageMethodNotAllowed = "Method not allowed"
	MessageOriginNotAllowed = "Origin not allowed"
	MessageConfigIncomplete = "Firebase configuration incomplete"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Handler struct {
	firebase       config.Firebase
	allowed        map[string]struct{}
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Handler)

// WithAllowedOrigins restricts callers to the given origins. Without it
// every origin is served.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		for _, o := range origins {
			if o = normalizeOrigin(o); o != "" {
				h.allowed[o] = struct{}{}
			}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(h *Handler) {
		h.auditPublisher = publisher
	}
}

func New(firebase config.Firebase, opts ...Option) *Handler {
	h := &Handler{
		firebase: firebase,
		allowed:  make(map[string]struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.HandleFunc("/firebase-config", h.HandleFirebaseConfig)
}

type Response struct {
	Success bool            `json:"success"`
	Config  config.Firebase `json:"config"`
}

// HandleFirebaseConfig implements GET /firebase-config.
func (h *Handler) HandleFirebaseConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		httputil.WriteMessage(w, http.StatusMethodNotAllowed, MessageMethodNotAllowed)
		return
	}

	if len(h.allowed) > 0 {
		origin := requestOrigin(r)
		if _, ok := h.allowed[origin]; !ok {
			h.logger.WarnContext(ctx, "firebase config requested from disallowed origin",
				"origin", origin,
				"request_id", requestcontext.RequestID(ctx),
			)
			h.emit(ctx, audit.NewEvent(ctx, audit.EventOriginDenied, "origin", origin))
			httputil.WriteMessage(w, http.StatusForbidden, MessageOriginNotAllowed)
			return
		}
	}

	if h.firebase.APIKey == "" || h.firebase.ProjectID == "" {
		h.logger.ErrorContext(ctx, "firebase configuration incomplete",
			"missing", h.firebase.Missing(),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteMessage(w, http.StatusInternalServerError, MessageConfigIncomplete)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, Response{Success: true, Config: h.firebase})
}

func (h *Handler) emit(ctx context.Context, event audit.Event) {
	if h.auditPublisher == nil {
		return
	}
	if err := h.auditPublisher.Emit(ctx, event); err != nil {
		h.logger.WarnContext(ctx, "failed to emit security event",
			"event", event.Type,
			"error", err,
		)
	}
}

// requestOrigin returns the Origin header, or the origin of the Referer when
// the browser sent no Origin. Empty when neither is usable.
func requestOrigin(r *http.Request) string {
	if o := normalizeOrigin(r.Header.Get("Origin")); o != "" {
		return o
	}
	return normalizeOrigin(r.Header.Get("Referer"))
}

// normalizeOrigin reduces a URL to scheme://host[:port] in lower case.
func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
