package handler

//go:generate mockgen -source=handler.go -destination=mocks/auth-mocks.go -package=mocks Service

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"thgate/internal/audit"
	"thgate/internal/auth/handler/mocks"
	"thgate/internal/auth/models"
	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/platform/httputil"
)

var demoUser = &models.User{ID: "user123", Email: "demo@themehackers.com", FullName: "ThemeHackers Demo User"}

// =============================================================================
// Auth Handler Test Suite
// =============================================================================
// Justification: the handler owns the HTTP contract of the auth endpoints:
// status codes, message texts, cookie attributes and the path fallback.

type AuthHandlerSuite struct {
	suite.Suite
}

func TestAuthHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerSuite))
}

func (s *AuthHandlerSuite) newHandler(t *testing.T, secure bool) (*mocks.MockService, *audit.MemorySink, chi.Router) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	sink := audit.NewMemorySink()
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)),
		CookieConfig{Secure: secure, AccessMaxAge: 15 * time.Minute, RefreshMaxAge: 7 * 24 * time.Hour},
		WithAuditPublisher(audit.NewPublisher([]audit.Sink{sink})),
	)
	r := chi.NewRouter()
	h.Register(r)
	return svc, sink, r
}

func do(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Error)
	assert.NotEmpty(t, body.Timestamp)
	return body
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// =============================================================================
// Login Tests
// =============================================================================

func (s *AuthHandlerSuite) TestHandleLogin() {
	s.T().Run("successful login sets both cookies", func(t *testing.T) {
		svc, sink, router := s.newHandler(t, true)
		svc.EXPECT().Login(gomock.Any(), &models.LoginRequest{Email: "demo@themehackers.com", Password: "ThemeHackers2024!"}).
			Return(&models.LoginResult{User: demoUser, AccessToken: "acc", RefreshToken: "ref"}, nil)

		rec := do(router, http.MethodPost, "/auth/login", `{"email":"demo@themehackers.com","password":"ThemeHackers2024!"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var got models.LoginResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.True(t, got.Success)
		assert.Equal(t, "ThemeHackers Security: Login successful", got.Message)
		assert.Equal(t, models.UserResponse{ID: "user123", Email: "demo@themehackers.com", FullName: "ThemeHackers Demo User"}, got.User)

		access := cookieByName(rec, AccessTokenCookie)
		require.NotNil(t, access)
		assert.Equal(t, "acc", access.Value)
		assert.Equal(t, 900, access.MaxAge)
		assert.True(t, access.HttpOnly)
		assert.True(t, access.Secure)
		assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
		assert.Equal(t, "/", access.Path)

		refresh := cookieByName(rec, RefreshTokenCookie)
		require.NotNil(t, refresh)
		assert.Equal(t, 604800, refresh.MaxAge)

		assert.Len(t, sink.OfType(audit.EventAuthRequest), 1)
	})

	s.T().Run("bare auth path logs in", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(&models.LoginResult{User: demoUser, AccessToken: "acc", RefreshToken: "ref"}, nil)

		rec := do(router, http.MethodPost, "/auth", `{"email":"a@b.co","password":"x"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, cookieByName(rec, AccessTokenCookie).Secure)
	})

	s.T().Run("missing credentials - 400", func(t *testing.T) {
		_, _, router := s.newHandler(t, false)

		for _, body := range []string{`{}`, `{"email":"a@b.co"}`, `{"password":"x"}`, ``} {
			rec := do(router, http.MethodPost, "/auth/login", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Equal(t, models.MessageCredentialsRequired, decodeError(t, rec).Message)
		}
	})

	s.T().Run("malformed JSON - 400", func(t *testing.T) {
		_, _, router := s.newHandler(t, false)
		rec := do(router, http.MethodPost, "/auth/login", `{"email":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	s.T().Run("invalid credentials - 401", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, models.MessageInvalidCredentials))

		rec := do(router, http.MethodPost, "/auth/login", `{"email":"a@b.co","password":"WrongPass123!"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "ThemeHackers Security: Invalid credentials", decodeError(t, rec).Message)
		assert.Nil(t, cookieByName(rec, AccessTokenCookie))
	})

	s.T().Run("internal failure hides detail - 500", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, errors.New("pq: connection refused"))

		rec := do(router, http.MethodPost, "/auth/login", `{"email":"a@b.co","password":"x"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, models.MessageLoginFailed, decodeError(t, rec).Message)
	})
}

// =============================================================================
// Refresh Tests
// =============================================================================

func (s *AuthHandlerSuite) TestHandleRefresh() {
	s.T().Run("token from body", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Refresh(gomock.Any(), "ref-body").
			Return(&models.RefreshResult{User: demoUser, AccessToken: "new-acc"}, nil)

		rec := do(router, http.MethodPost, "/auth/refresh", `{"refreshToken":"ref-body"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var got models.MessageResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, models.MessageResponse{Success: true, Message: "ThemeHackers Security: Token refreshed successfully"}, got)
		assert.Equal(t, "new-acc", cookieByName(rec, AccessTokenCookie).Value)
		assert.Nil(t, cookieByName(rec, RefreshTokenCookie), "refresh token is not rotated")
	})

	s.T().Run("token from cookie", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Refresh(gomock.Any(), "ref-cookie").
			Return(&models.RefreshResult{User: demoUser, AccessToken: "new-acc"}, nil)

		rec := do(router, http.MethodPost, "/auth/refresh", `{}`, &http.Cookie{Name: RefreshTokenCookie, Value: "ref-cookie"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	s.T().Run("missing token - 400", func(t *testing.T) {
		_, _, router := s.newHandler(t, false)
		rec := do(router, http.MethodPost, "/auth/refresh", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, models.MessageRefreshRequired, decodeError(t, rec).Message)
	})

	s.T().Run("invalid token - 401", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Refresh(gomock.Any(), "bad").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, models.MessageInvalidRefresh))

		rec := do(router, http.MethodPost, "/auth/refresh", `{"refreshToken":"bad"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "ThemeHackers Security: Invalid refresh token", decodeError(t, rec).Message)
	})
}

// =============================================================================
// Session and Logout Tests
// =============================================================================

func (s *AuthHandlerSuite) TestHandleSession() {
	s.T().Run("cookie token", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Session(gomock.Any(), "acc").Return(demoUser, nil)

		rec := do(router, http.MethodGet, "/auth/session", "", &http.Cookie{Name: AccessTokenCookie, Value: "acc"})
		require.Equal(t, http.StatusOK, rec.Code)
		var got models.SessionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "user123", got.User.ID)
	})

	s.T().Run("bearer token", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Session(gomock.Any(), "acc").Return(demoUser, nil)

		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		req.Header.Set("Authorization", "Bearer acc")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	s.T().Run("no token - 401", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Session(gomock.Any(), "").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, models.MessageNotAuthenticated))

		rec := do(router, http.MethodGet, "/auth/session", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, models.MessageNotAuthenticated, decodeError(t, rec).Message)
	})
}

func (s *AuthHandlerSuite) TestHandleLogout() {
	svc, _, router := s.newHandler(s.T(), false)
	svc.EXPECT().Logout(gomock.Any(), "acc")

	rec := do(router, http.MethodPost, "/auth/logout", "", &http.Cookie{Name: AccessTokenCookie, Value: "acc"})

	s.Equal(http.StatusOK, rec.Code)
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		c := cookieByName(rec, name)
		s.Require().NotNil(c, name)
		s.Equal(-1, c.MaxAge)
		s.Empty(c.Value)
	}
}

// =============================================================================
// Routing Fallback Tests
// =============================================================================

func (s *AuthHandlerSuite) TestFallback() {
	s.T().Run("unknown paths and methods - 404", func(t *testing.T) {
		_, _, router := s.newHandler(t, false)
		cases := []struct{ method, path string }{
			{http.MethodGet, "/auth/login"},
			{http.MethodGet, "/auth"},
			{http.MethodPost, "/auth/unknown"},
			{http.MethodDelete, "/auth/refresh"},
		}
		for _, tc := range cases {
			rec := do(router, tc.method, tc.path, "")
			assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
			assert.Equal(t, "ThemeHackers Security: Endpoint not found", decodeError(t, rec).Message)
		}
	})

	s.T().Run("nested login path still logs in", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Login(gomock.Any(), gomock.Any()).
			Return(&models.LoginResult{User: demoUser, AccessToken: "a", RefreshToken: "r"}, nil)

		rec := do(router, http.MethodPost, "/auth/v1/login", `{"email":"a@b.co","password":"x"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	s.T().Run("nested refresh path still refreshes", func(t *testing.T) {
		svc, _, router := s.newHandler(t, false)
		svc.EXPECT().Refresh(gomock.Any(), "r").
			Return(&models.RefreshResult{User: demoUser, AccessToken: "a"}, nil)

		rec := do(router, http.MethodPost, "/auth/token/refresh", `{"refreshToken":"r"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
