package service

import (
	"errors"
	"strings"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"thgate/internal/audit"
	"thgate/internal/auth/models"
	jwttoken "thgate/internal/jwt_token"
	dErrors "thgate/pkg/domain-errors"
)

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil credential repository", func() {
		_, err := New(nil, s.mockTokens)
		s.Require().Error(err)
		s.Contains(err.Error(), "credential repository is required")
	})

	s.Run("nil token service", func() {
		_, err := New(s.mockCreds, nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "token service is required")
	})
}

// =============================================================================
// Login Tests
// =============================================================================
// Justification: every credential failure must look the same to the caller
// and must be reported to the limiter, otherwise the lockout can be bypassed
// or emails enumerated.

func (s *ServiceSuite) TestLogin_Success() {
	ctx := s.ctx()
	pair := &jwttoken.Pair{AccessToken: "access", RefreshToken: "refresh"}

	s.mockCreds.EXPECT().FindByEmail(ctx, "alice@example.com").Return(s.user, nil)
	s.mockTokens.EXPECT().GenerateTokens(ctx, jwttoken.Subject{
		UserID: "user-1", Email: "alice@example.com", FullName: "Alice Example",
	}).Return(pair, nil)
	s.mockLimiter.EXPECT().ClearLoginAttempts(ctx, testClientIP)
	s.mockAudit.EXPECT().Emit(ctx, gomock.Any()).DoAndReturn(func(_ any, ev audit.Event) error {
		s.Equal(audit.EventLoginSuccess, ev.Type)
		s.Equal("user-1", ev.UserID)
		return nil
	})

	result, err := s.service.Login(ctx, &models.LoginRequest{Email: "alice@example.com", Password: testPassword})
	s.Require().NoError(err)
	s.Equal("access", result.AccessToken)
	s.Equal("refresh", result.RefreshToken)
	s.Equal(s.user, result.User)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.LoginsTotal.WithLabelValues("success")))
}

func (s *ServiceSuite) TestLogin_Failures() {
	tests := []struct {
		name   string
		req    *models.LoginRequest
		setup  func()
		reason string
	}{
		{
			name: "wrong password",
			req:  &models.LoginRequest{Email: "alice@example.com", Password: "WrongPass123!"},
			setup: func() {
				s.mockCreds.EXPECT().FindByEmail(gomock.Any(), "alice@example.com").Return(s.user, nil)
			},
			reason: "wrong_password",
		},
		{
			name: "unknown email",
			req:  &models.LoginRequest{Email: "nobody@example.com", Password: testPassword},
			setup: func() {
				s.mockCreds.EXPECT().FindByEmail(gomock.Any(), "nobody@example.com").
					Return(nil, dErrors.New(dErrors.CodeNotFound, "user not found"))
			},
			reason: "unknown_email",
		},
		{
			name:   "password longer than bcrypt accepts",
			req:    &models.LoginRequest{Email: "alice@example.com", Password: string(make([]byte, 73))},
			setup:  func() {},
			reason: "oversized_input",
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			ctx := s.ctx()
			tc.setup()
			s.mockLimiter.EXPECT().RecordLoginFailure(ctx, testClientIP)
			s.mockAudit.EXPECT().Emit(ctx, gomock.Any()).DoAndReturn(func(_ any, ev audit.Event) error {
				s.Equal(audit.EventLoginFailed, ev.Type)
				s.Equal(tc.reason, ev.Details["reason"])
				return nil
			})

			result, err := s.service.Login(ctx, tc.req)
			s.Nil(result)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
			s.Equal(models.MessageInvalidCredentials, err.Error())
		})
	}
}

func (s *ServiceSuite) TestLogin_StoreFailureIsNotACredentialFailure() {
	ctx := s.ctx()
	s.mockCreds.EXPECT().FindByEmail(ctx, "alice@example.com").Return(nil, errors.New("connection reset"))

	_, err := s.service.Login(ctx, &models.LoginRequest{Email: "alice@example.com", Password: testPassword})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.LoginsTotal.WithLabelValues("error")))
}

func (s *ServiceSuite) TestLogin_AuditFailureDoesNotFailLogin() {
	ctx := s.ctx()
	s.mockCreds.EXPECT().FindByEmail(ctx, gomock.Any()).Return(s.user, nil)
	s.mockTokens.EXPECT().GenerateTokens(ctx, gomock.Any()).Return(&jwttoken.Pair{AccessToken: "a", RefreshToken: "r"}, nil)
	s.mockLimiter.EXPECT().ClearLoginAttempts(ctx, testClientIP)
	s.mockAudit.EXPECT().Emit(ctx, gomock.Any()).Return(errors.New("broker down"))

	_, err := s.service.Login(ctx, &models.LoginRequest{Email: "alice@example.com", Password: testPassword})
	s.NoError(err)
}

func (s *ServiceSuite) TestLogin_WithoutLimiter() {
	svc, err := New(s.mockCreds, s.mockTokens, WithPasswordCost(4))
	s.Require().NoError(err)
	s.mockCreds.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(s.user, nil)

	_, err = svc.Login(s.ctx(), &models.LoginRequest{Email: "alice@example.com", Password: strings.ToUpper(testPassword)})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

// =============================================================================
// Refresh Tests
// =============================================================================

func (s *ServiceSuite) TestRefresh() {
	claims := &jwttoken.Claims{UserID: "user-1", Email: "alice@example.com", FullName: "Alice Example"}

	s.Run("valid refresh token issues a new access token", func() {
		ctx := s.ctx()
		s.mockTokens.EXPECT().ValidateRefreshToken(ctx, "refresh").Return(claims, nil)
		s.mockTokens.EXPECT().GenerateAccessToken(ctx, claims.Subject()).Return("new-access", nil)
		s.mockAudit.EXPECT().Emit(ctx, gomock.Any()).DoAndReturn(func(_ any, ev audit.Event) error {
			s.Equal(audit.EventTokenRefresh, ev.Type)
			return nil
		})

		result, err := s.service.Refresh(ctx, "refresh")
		s.Require().NoError(err)
		s.Equal("new-access", result.AccessToken)
		s.Equal("user-1", result.User.ID)
		s.Equal("Alice Example", result.User.FullName)
	})

	s.Run("invalid refresh token", func() {
		ctx := s.ctx()
		s.mockTokens.EXPECT().ValidateRefreshToken(ctx, "forged").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))

		result, err := s.service.Refresh(ctx, "forged")
		s.Nil(result)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(models.MessageInvalidRefresh, err.Error())
		s.Equal(1.0, promtestutil.ToFloat64(s.metrics.TokenRefreshesTotal.WithLabelValues("invalid")))
	})
}

// =============================================================================
// Session and Logout Tests
// =============================================================================

func (s *ServiceSuite) TestSession() {
	s.Run("valid access token", func() {
		ctx := s.ctx()
		s.mockTokens.EXPECT().ValidateAccessToken(ctx, "access").
			Return(&jwttoken.Claims{UserID: "user-1", Email: "alice@example.com"}, nil)

		user, err := s.service.Session(ctx, "access")
		s.Require().NoError(err)
		s.Equal("user-1", user.ID)
		s.Empty(user.PasswordHash)
	})

	s.Run("invalid access token", func() {
		ctx := s.ctx()
		s.mockTokens.EXPECT().ValidateAccessToken(ctx, "").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))

		_, err := s.service.Session(ctx, "")
		s.Equal(models.MessageNotAuthenticated, err.Error())
	})
}

func (s *ServiceSuite) TestLogout() {
	ctx := s.ctx()
	s.mockTokens.EXPECT().ValidateAccessToken(ctx, "access").
		Return(&jwttoken.Claims{UserID: "user-1"}, nil)
	s.mockAudit.EXPECT().Emit(ctx, gomock.Any()).DoAndReturn(func(_ any, ev audit.Event) error {
		s.Equal(audit.EventLogout, ev.Type)
		s.Equal("user-1", ev.UserID)
		return nil
	})

	s.service.Logout(ctx, "access")
}
