package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"thgate/internal/audit"
	"thgate/internal/ratelimit/config"
	"thgate/internal/ratelimit/metrics"
	"thgate/internal/ratelimit/models"
	"thgate/pkg/platform/privacy"
	"thgate/pkg/requestcontext"
)

// Backend stores client records. Each method must be atomic for its key so
// that concurrent requests from one client are counted exactly.
type Backend interface {
	IncrementRequests(ctx context.Context, key string, now time.Time, window time.Duration) (models.Record, error)
	IncrementLoginAttempts(ctx context.Context, key string, now time.Time, lockout time.Duration) (models.Record, error)
	ResetLoginAttempts(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (models.Record, bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service applies the per-client request window and the login lockout.
// It never fails a request because of its own backend: errors are logged
// and the request is allowed.
type Service struct {
	backend        Backend
	config         *config.Config
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.config = cfg.WithDefaults()
		}
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

func New(backend Backend, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("rate limit backend is required")
	}
	svc := &Service{
		backend: backend,
		config:  config.DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Check counts the request against the client's window and, for login
// attempts, enforces the lockout. The request is counted even when denied.
func (s *Service) Check(ctx context.Context, clientID string, isLogin bool) models.Decision {
	now := requestcontext.Now(ctx)
	key := models.NewClientKey(clientID).String()

	record, err := s.backend.IncrementRequests(ctx, key, now, s.config.Window)
	if err != nil {
		s.backendFailed(ctx, "increment_requests", clientID, err)
		return models.Allow()
	}

	if record.RequestCount > s.config.RequestsPerWindow {
		retryAfter := record.WindowStart.Add(s.config.Window).Sub(now)
		s.observe("request_limited")
		return models.DenyRequests(retryAfter)
	}

	if isLogin && record.LoginAttempts >= s.config.LoginMaxAttempts {
		if remaining := record.LockoutRemaining(now, s.config.LoginLockout); remaining > 0 {
			s.observe("login_locked")
			return models.DenyLogin(remaining)
		}
		// Elapsed. The backend restarts the counter on the next failure.
	}

	s.observe("allowed")
	return models.Allow()
}

// RecordLoginFailure counts a failed login. Reaching the ceiling starts the
// lockout; the lockout is measured from the most recent failure.
func (s *Service) RecordLoginFailure(ctx context.Context, clientID string) {
	now := requestcontext.Now(ctx)
	key := models.NewClientKey(clientID).String()

	record, err := s.backend.IncrementLoginAttempts(ctx, key, now, s.config.LoginLockout)
	if err != nil {
		s.backendFailed(ctx, "increment_login_attempts", clientID, err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementLoginFailures()
	}

	if record.LoginAttempts == s.config.LoginMaxAttempts {
		s.logger.WarnContext(ctx, "login_lockout_started",
			"client_ip_prefix", privacy.AnonymizeIP(clientID),
			"attempts", record.LoginAttempts,
			"lockout_minutes", models.RemainingMinutes(s.config.LoginLockout),
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.IncrementLoginLockouts()
		}
		s.emit(ctx, audit.NewEvent(ctx, audit.EventLoginLocked,
			"attempts", strconv.Itoa(record.LoginAttempts),
		))
	}
}

// ClearLoginAttempts forgets failed logins after a successful one.
func (s *Service) ClearLoginAttempts(ctx context.Context, clientID string) {
	key := models.NewClientKey(clientID).String()
	if err := s.backend.ResetLoginAttempts(ctx, key); err != nil {
		s.backendFailed(ctx, "reset_login_attempts", clientID, err)
	}
}

// Snapshot returns the stored record for a client. Used by diagnostics and tests.
func (s *Service) Snapshot(ctx context.Context, clientID string) (models.Record, bool, error) {
	return s.backend.Get(ctx, models.NewClientKey(clientID).String())
}

func (s *Service) backendFailed(ctx context.Context, op, clientID string, err error) {
	s.logger.ErrorContext(ctx, "rate limit backend failed, allowing request",
		"operation", op,
		"error", err,
		"client_ip_prefix", privacy.AnonymizeIP(clientID),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementBackendErrors(op)
	}
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementDecision(outcome)
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
