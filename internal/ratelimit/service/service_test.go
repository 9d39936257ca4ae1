package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"thgate/internal/audit"
	"thgate/internal/ratelimit/config"
	"thgate/internal/ratelimit/metrics"
	"thgate/internal/ratelimit/models"
	"thgate/internal/ratelimit/store/memory"
	dErrors "thgate/pkg/domain-errors"
	"thgate/pkg/requestcontext"
	"thgate/pkg/testutil"
)

type erroringBackend struct{ err error }

func (b erroringBackend) IncrementRequests(context.Context, string, time.Time, time.Duration) (models.Record, error) {
	return models.Record{}, b.err
}

func (b erroringBackend) IncrementLoginAttempts(context.Context, string, time.Time, time.Duration) (models.Record, error) {
	return models.Record{}, b.err
}

func (b erroringBackend) ResetLoginAttempts(context.Context, string) error { return b.err }

func (b erroringBackend) Get(context.Context, string) (models.Record, bool, error) {
	return models.Record{}, false, b.err
}

// =============================================================================
// Rate Limiter Service Test Suite
// =============================================================================
// Justification: The window and lockout rules are time-driven. These tests pin
// the request clock so boundary behavior (the 60th vs 61st request, the last
// second of a lockout) is checked without sleeping.

type ServiceSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	service *Service
	metrics *metrics.Metrics
	events  *audit.MemorySink
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.events = audit.NewMemorySink()
	s.now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	var err error
	s.service, err = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConfig(config.DefaultConfig()),
		WithMetrics(s.metrics),
		WithAuditPublisher(audit.NewPublisher([]audit.Sink{s.events})),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil backend returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "rate limit backend is required")
	})

	s.Run("zero config values fall back to defaults", func() {
		svc, err := New(s.store, WithConfig(&config.Config{RequestsPerWindow: 3}))
		s.Require().NoError(err)
		s.Equal(3, svc.config.RequestsPerWindow)
		s.Equal(time.Minute, svc.config.Window)
		s.Equal(5, svc.config.LoginMaxAttempts)
	})
}

// =============================================================================
// Request Window Tests
// =============================================================================

func (s *ServiceSuite) TestRequestWindow() {
	client := "203.0.113.10"

	s.Run("the first 60 requests in a window are allowed", func() {
		for i := range 60 {
			d := s.service.Check(s.at(time.Duration(i)*time.Second/2), client, false)
			s.Require().True(d.Allowed, "request %d should be allowed", i+1)
		}
	})

	s.Run("the 61st request is denied", func() {
		d := s.service.Check(s.at(45*time.Second), client, false)
		s.False(d.Allowed)
		s.Equal(models.ReasonRequestLimit, d.Reason)
		s.Equal("Too many requests. Please try again later.", d.Message)
		s.Equal(15*time.Second, d.RetryAfter)
	})

	s.Run("denied requests keep counting", func() {
		_ = s.service.Check(s.at(50*time.Second), client, false)
		rec, ok, err := s.service.Snapshot(context.Background(), client)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(62, rec.RequestCount)
	})

	s.Run("the window rolls over after 60 seconds", func() {
		d := s.service.Check(s.at(time.Minute), client, false)
		s.True(d.Allowed)
	})

	s.Run("other clients are unaffected", func() {
		d := s.service.Check(s.at(55*time.Second), "198.51.100.1", false)
		s.True(d.Allowed)
	})
}

// =============================================================================
// Login Lockout Tests
// =============================================================================

func (s *ServiceSuite) TestLoginLockout() {
	client := "192.0.2.44"

	for i := range 5 {
		ctx := s.at(time.Duration(i) * time.Second)
		s.Require().True(s.service.Check(ctx, client, true).Allowed, "attempt %d should be checked normally", i+1)
		s.service.RecordLoginFailure(ctx, client)
	}
	lastFailure := 4 * time.Second

	s.Run("sixth attempt is locked out with remaining minutes", func() {
		d := s.service.Check(s.at(lastFailure+time.Second), client, true)
		s.False(d.Allowed)
		s.Equal(models.ReasonLoginLockout, d.Reason)
		s.Equal("Too many login attempts. Please try again in 15 minutes.", d.Message)
	})

	s.Run("lockout starts a security event", func() {
		s.Len(s.events.OfType(audit.EventLoginLocked), 1)
		s.Equal(1.0, promtestutil.ToFloat64(s.metrics.RateLimitLoginLockoutsTotal))
		s.Equal(5.0, promtestutil.ToFloat64(s.metrics.RateLimitLoginFailures))
	})

	s.Run("remaining minutes round up", func() {
		d := s.service.Check(s.at(lastFailure+14*time.Minute+time.Second), client, true)
		s.False(d.Allowed)
		s.Equal("Too many login attempts. Please try again in 1 minutes.", d.Message)
	})

	s.Run("non-login requests pass during lockout", func() {
		d := s.service.Check(s.at(lastFailure+2*time.Minute), client, false)
		s.True(d.Allowed)
	})

	s.Run("lockout expires", func() {
		d := s.service.Check(s.at(lastFailure+15*time.Minute), client, true)
		s.True(d.Allowed)
	})

	s.Run("the next failure after expiry starts a fresh count", func() {
		s.service.RecordLoginFailure(s.at(lastFailure+15*time.Minute+time.Second), client)
		rec, _, err := s.service.Snapshot(context.Background(), client)
		s.Require().NoError(err)
		s.Equal(1, rec.LoginAttempts)

		d := s.service.Check(s.at(lastFailure+15*time.Minute+2*time.Second), client, true)
		s.True(d.Allowed)
	})
}

// resetCountingBackend records ResetLoginAttempts calls made through it.
type resetCountingBackend struct {
	*memory.InMemoryStore
	resets int
}

func (b *resetCountingBackend) ResetLoginAttempts(ctx context.Context, key string) error {
	b.resets++
	return b.InMemoryStore.ResetLoginAttempts(ctx, key)
}

func (s *ServiceSuite) TestExpiredLockoutKeepsConcurrentFailures() {
	backend := &resetCountingBackend{InMemoryStore: memory.New()}
	svc, err := New(backend, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	client := "192.0.2.47"
	for i := range 5 {
		svc.RecordLoginFailure(s.at(time.Duration(i)*time.Second), client)
	}
	expired := 4*time.Second + 15*time.Minute

	// A failure from a parallel request lands before the login check runs.
	svc.RecordLoginFailure(s.at(expired), client)
	d := svc.Check(s.at(expired+time.Millisecond), client, true)
	s.True(d.Allowed)

	s.Zero(backend.resets, "checking a login never clears attempts")
	rec, _, err := svc.Snapshot(context.Background(), client)
	s.Require().NoError(err)
	s.Equal(1, rec.LoginAttempts, "the concurrent failure is still counted")
}

func (s *ServiceSuite) TestLockoutHoldsForCorrectCredentials() {
	client := "192.0.2.45"
	for i := range 5 {
		s.service.RecordLoginFailure(s.at(time.Duration(i)*time.Second), client)
	}

	// The lockout is decided before credentials are looked at, so every
	// attempt is denied regardless of what it carries.
	for i := range 3 {
		d := s.service.Check(s.at(time.Minute+time.Duration(i)*time.Second), client, true)
		s.False(d.Allowed)
	}
}

func (s *ServiceSuite) TestClearLoginAttempts() {
	client := "192.0.2.46"
	for range 4 {
		s.service.RecordLoginFailure(s.at(0), client)
	}
	s.service.ClearLoginAttempts(s.at(time.Second), client)

	s.service.RecordLoginFailure(s.at(2*time.Second), client)
	d := s.service.Check(s.at(3*time.Second), client, true)
	s.True(d.Allowed, "a success resets the failure count")
}

// =============================================================================
// Failure Mode Tests
// =============================================================================

func (s *ServiceSuite) TestBackendFailureAllows() {
	svc, err := New(erroringBackend{err: errors.New("connection refused")},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)

	d := svc.Check(s.at(0), "203.0.113.99", true)
	s.True(d.Allowed)

	svc.RecordLoginFailure(s.at(0), "203.0.113.99")
	svc.ClearLoginAttempts(s.at(0), "203.0.113.99")

	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.RateLimitBackendErrorsTotal.WithLabelValues("increment_requests")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.RateLimitBackendErrorsTotal.WithLabelValues("increment_login_attempts")))
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func (s *ServiceSuite) TestConcurrentRequestsCountedExactly() {
	ctx := s.at(0)
	result := testutil.RunConcurrent(100, func(int) error {
		if d := s.service.Check(ctx, "203.0.113.200", false); !d.Allowed {
			return dErrors.New(dErrors.CodeRateLimited, d.Message)
		}
		return nil
	})

	s.Equal(int32(60), result.Successes)
	s.Equal(int32(40), result.RateLimited)
}
