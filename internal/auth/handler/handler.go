package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"thgate/internal/audit"
	"thgate/internal/auth/models"
	jwttoken "thgate/internal/jwt_token"
	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/platform/httputil"
	"thgate/pkg/requestcontext"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// Service defines the authentication operations behind the /auth endpoints.
type Service interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*models.RefreshResult, error)
	Session(ctx context.Context, accessToken string) (*models.User, error)
	Logout(ctx context.Context, accessToken string)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CookieConfig controls the token cookies. MaxAge values are in seconds and
// should match the token lifetimes.
type CookieConfig struct {
	Secure        bool
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

type Handler struct {
	auth           Service
	logger         *slog.Logger
	cookies        CookieConfig
	auditPublisher AuditPublisher
}

type Option func(*Handler)

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(h *Handler) {
		h.auditPublisher = publisher
	}
}

func New(auth Service, logger *slog.Logger, cookies CookieConfig, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cookies.AccessMaxAge <= 0 {
		cookies.AccessMaxAge = jwttoken.DefaultAccessTTL
	}
	if cookies.RefreshMaxAge <= 0 {
		cookies.RefreshMaxAge = jwttoken.DefaultRefreshTTL
	}
	h := &Handler{
		auth:    auth,
		logger:  logger,
		cookies: cookies,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the auth routes. A POST to the bare /auth path logs in.
// Anything else under /auth is a 404, except POSTs whose path still names
// login or refresh.
func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Use(h.recordRequest)
		r.Post("/", h.HandleLogin)
		r.Post("/login", h.HandleLogin)
		r.Post("/refresh", h.HandleRefresh)
		r.Get("/session", h.HandleSession)
		r.Post("/logout", h.HandleLogout)
		r.NotFound(h.HandleFallback)
		r.MethodNotAllowed(h.HandleFallback)
	})
}

// HandleLogin implements POST /auth/login.
//
// Input: { "email": "user@example.com", "password": "..." }
// Output: { "success": true, "message": "...", "user": { "id", "email", "fullName" } }
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.auth.Login(ctx, req)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "login failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteMessage(w, http.StatusInternalServerError, models.MessageLoginFailed)
		return
	}

	h.setCookie(w, AccessTokenCookie, res.AccessToken, h.cookies.AccessMaxAge)
	h.setCookie(w, RefreshTokenCookie, res.RefreshToken, h.cookies.RefreshMaxAge)
	httputil.WriteJSON(w, http.StatusOK, models.LoginResponse{
		Success: true,
		Message: models.MessageLoginSuccessful,
		User:    models.NewUserResponse(res.User),
	})
}

// HandleRefresh implements POST /auth/refresh. The token comes from the body
// or, when the body has none, from the refresh_token cookie.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[models.RefreshRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(RefreshTokenCookie); err == nil {
			req.RefreshToken = c.Value
		}
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			h.logger.ErrorContext(ctx, "token refresh failed",
				"error", err,
				"request_id", requestID,
			)
		}
		httputil.WriteMessage(w, http.StatusUnauthorized, models.MessageInvalidRefresh)
		return
	}

	h.setCookie(w, AccessTokenCookie, res.AccessToken, h.cookies.AccessMaxAge)
	httputil.WriteJSON(w, http.StatusOK, models.MessageResponse{
		Success: true,
		Message: models.MessageTokenRefreshed,
	})
}

// HandleSession implements GET /auth/session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Session(r.Context(), accessToken(r))
	if err != nil {
		httputil.WriteMessage(w, http.StatusUnauthorized, models.MessageNotAuthenticated)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.SessionResponse{
		Success: true,
		User:    models.NewUserResponse(user),
	})
}

// HandleLogout implements POST /auth/logout. It always succeeds.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), accessToken(r))
	h.expireCookie(w, AccessTokenCookie)
	h.expireCookie(w, RefreshTokenCookie)
	httputil.WriteJSON(w, http.StatusOK, models.MessageResponse{
		Success: true,
		Message: models.MessageLoggedOut,
	})
}

// HandleFallback routes unmatched POSTs by path substring and answers
// everything else with 404.
func (h *Handler) HandleFallback(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		switch {
		case strings.Contains(r.URL.Path, "/login"):
			h.HandleLogin(w, r)
			return
		case strings.Contains(r.URL.Path, "/refresh"):
			h.HandleRefresh(w, r)
			return
		}
	}
	httputil.WriteMessage(w, http.StatusNotFound, models.MessageEndpointNotFound)
}

func (h *Handler) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.auditPublisher != nil {
			ev := audit.NewEvent(r.Context(), audit.EventAuthRequest,
				"method", r.Method,
				"path", r.URL.Path,
			)
			if err := h.auditPublisher.Emit(r.Context(), ev); err != nil {
				h.logger.WarnContext(r.Context(), "failed to emit security event",
					"event", ev.Type,
					"error", err,
				)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// accessToken prefers the cookie over an Authorization bearer header.
func accessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if token, ok := jwttoken.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return ""
}
