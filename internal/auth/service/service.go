package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"thgate/internal/audit"
	"thgate/internal/auth/metrics"
	"thgate/internal/auth/models"
	jwttoken "thgate/internal/jwt_token"
	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/platform/privacy"
	"thgate/pkg/requestcontext"
	"thgate/pkg/secrets"
)

// CredentialRepository looks up users by email.
// Error Contract: FindByEmail returns an error with CodeNotFound for unknown emails.
type CredentialRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type TokenService interface {
	GenerateTokens(ctx context.Context, subject jwttoken.Subject) (*jwttoken.Pair, error)
	GenerateAccessToken(ctx context.Context, subject jwttoken.Subject) (string, error)
	ValidateAccessToken(ctx context.Context, token string) (*jwttoken.Claims, error)
	ValidateRefreshToken(ctx context.Context, token string) (*jwttoken.Claims, error)
}

// LoginLimiter is told about login outcomes so it can lock out clients that
// keep failing.
type LoginLimiter interface {
	RecordLoginFailure(ctx context.Context, clientID string)
	ClearLoginAttempts(ctx context.Context, clientID string)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	credentials    CredentialRepository
	tokens         TokenService
	limiter        LoginLimiter
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	passwordCost   int

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithLoginLimiter(limiter LoginLimiter) Option {
	return func(s *Service) {
		s.limiter = limiter
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithPasswordCost sets the bcrypt cost of the hash compared for unknown
// emails. It should match the cost of stored hashes so both paths take the
// same time.
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		if cost > 0 {
			s.passwordCost = cost
		}
	}
}

func New(credentials CredentialRepository, tokens TokenService, opts ...Option) (*Service, error) {
	if credentials == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "credential repository is required")
	}
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "token service is required")
	}
	svc := &Service{
		credentials:  credentials,
		tokens:       tokens,
		logger:       slog.Default(),
		passwordCost: secrets.PasswordCost,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Login checks credentials and issues a token pair. Every failure other than
// an infrastructure error is the same CodeUnauthorized, whether the email is
// unknown or the password wrong, and is reported to the login limiter.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveLoginDuration(time.Since(start).Seconds())
		}
	}()

	if !req.WithinLimits() {
		return nil, s.loginFailed(ctx, req.Email, "oversized_input")
	}

	user, err := s.credentials.FindByEmail(ctx, req.Email)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.incrementLogin("error")
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find credentials")
		}
		// Spend the same bcrypt time as a real comparison.
		_ = secrets.Verify(req.Password, s.dummy())
		return nil, s.loginFailed(ctx, req.Email, "unknown_email")
	}

	if err := secrets.Verify(req.Password, user.PasswordHash); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.incrementLogin("error")
			return nil, err
		}
		return nil, s.loginFailed(ctx, req.Email, "wrong_password")
	}

	pair, err := s.tokens.GenerateTokens(ctx, subjectOf(user))
	if err != nil {
		s.incrementLogin("error")
		return nil, err
	}

	if s.limiter != nil {
		s.limiter.ClearLoginAttempts(ctx, requestcontext.ClientIP(ctx))
	}
	s.incrementLogin("success")
	s.logger.InfoContext(ctx, "login successful",
		"user_id", user.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.NewEvent(ctx, audit.EventLoginSuccess, "email", privacy.MaskEmail(user.Email)).WithUser(user.ID))

	return &models.LoginResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh verifies a refresh token and issues a new access token for the
// same claims. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.RefreshResult, error) {
	claims, err := s.tokens.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		s.incrementRefresh("invalid")
		s.logger.WarnContext(ctx, "refresh token rejected",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, models.MessageInvalidRefresh)
	}

	subject := claims.Subject()
	access, err := s.tokens.GenerateAccessToken(ctx, subject)
	if err != nil {
		s.incrementRefresh("error")
		return nil, err
	}

	s.incrementRefresh("success")
	s.emit(ctx, audit.NewEvent(ctx, audit.EventTokenRefresh).WithUser(subject.UserID))
	return &models.RefreshResult{
		User:        &models.User{ID: subject.UserID, Email: subject.Email, FullName: subject.FullName},
		AccessToken: access,
	}, nil
}

// Session resolves the user behind an access token.
func (s *Service) Session(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.tokens.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, models.MessageNotAuthenticated)
	}
	return &models.User{ID: claims.UserID, Email: claims.Email, FullName: claims.FullName}, nil
}

// Logout records the event. Tokens are stateless; the handler expires the
// cookies and nothing is revoked server-side.
func (s *Service) Logout(ctx context.Context, accessToken string) {
	ev := audit.NewEvent(ctx, audit.EventLogout)
	if claims, err := s.tokens.ValidateAccessToken(ctx, accessToken); err == nil {
		ev = ev.WithUser(claims.UserID)
	}
	s.emit(ctx, ev)
}

func (s *Service) loginFailed(ctx context.Context, email, reason string) error {
	clientID := requestcontext.ClientIP(ctx)
	if s.limiter != nil {
		s.limiter.RecordLoginFailure(ctx, clientID)
	}
	s.incrementLogin("failure")
	s.logger.WarnContext(ctx, "login failed",
		"reason", reason,
		"email", privacy.MaskEmail(email),
		"client_ip_prefix", privacy.AnonymizeIP(clientID),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.NewEvent(ctx, audit.EventLoginFailed,
		"email", privacy.MaskEmail(email),
		"reason", reason,
	))
	return dErrors.New(dErrors.CodeUnauthorized, models.MessageInvalidCredentials)
}

// dummy lazily hashes a throwaway password at the configured cost.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := secrets.Hash("thgate-timing-equalizer", s.passwordCost)
		if err != nil {
			s.logger.Error("failed to prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) incrementLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementLogin(outcome)
	}
}

func (s *Service) incrementRefresh(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementRefresh(outcome)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit security event",
			"event", event.Type,
			"error", err,
		)
	}
}

func subjectOf(u *models.User) jwttoken.Subject {
	return jwttoken.Subject{UserID: u.ID, Email: u.Email, FullName: u.FullName}
}
