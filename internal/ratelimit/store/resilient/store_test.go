package resilient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"thgate/internal/ratelimit/models"
	"thgate/internal/ratelimit/store/memory"
	"thgate/pkg/platform/circuit"
)

// flakyBackend fails every call while down is set.
type flakyBackend struct {
	down  atomic.Bool
	inner *memory.InMemoryStore
	calls atomic.Int32
}

var errUnreachable = errors.New("connection refused")

func (b *flakyBackend) IncrementRequests(ctx context.Context, key string, now time.Time, window time.Duration) (models.Record, error) {
	b.calls.Add(1)
	if b.down.Load() {
		return models.Record{}, errUnreachable
	}
	return b.inner.IncrementRequests(ctx, key, now, window)
}

func (b *flakyBackend) IncrementLoginAttempts(ctx context.Context, key string, now time.Time, lockout time.Duration) (models.Record, error) {
	b.calls.Add(1)
	if b.down.Load() {
		return models.Record{}, errUnreachable
	}
	return b.inner.IncrementLoginAttempts(ctx, key, now, lockout)
}

func (b *flakyBackend) ResetLoginAttempts(ctx context.Context, key string) error {
	b.calls.Add(1)
	if b.down.Load() {
		return errUnreachable
	}
	return b.inner.ResetLoginAttempts(ctx, key)
}

func (b *flakyBackend) Get(ctx context.Context, key string) (models.Record, bool, error) {
	b.calls.Add(1)
	if b.down.Load() {
		return models.Record{}, false, errUnreachable
	}
	return b.inner.Get(ctx, key)
}

// =============================================================================
// Resilient Store Test Suite
// =============================================================================
// Justification: A shared backend outage must not silently turn rate limiting
// off, and must not make every request wait on the dead backend. These tests
// drive the breaker through open, half-open and closed and check which backend
// answers at each step.

type StoreSuite struct {
	suite.Suite
	primary *flakyBackend
	local   *memory.InMemoryStore
	store   *Store
	states  []circuit.State
	now     time.Time
	clock   time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.primary = &flakyBackend{inner: memory.New()}
	s.local = memory.New()
	s.states = nil
	s.now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	s.clock = s.now
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(2),
		circuit.WithCooldown(10*time.Second),
		circuit.WithClock(func() time.Time { return s.clock }),
	)
	s.store = New(s.primary, s.local,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithBreaker(breaker),
		WithStateHook(func(state circuit.State) { s.states = append(s.states, state) }),
	)
}

func (s *StoreSuite) increment() (models.Record, error) {
	return s.store.IncrementRequests(context.Background(), "client:a", s.now, time.Minute)
}

func (s *StoreSuite) TestHealthyPrimaryAnswers() {
	r, err := s.increment()
	s.Require().NoError(err)
	s.Equal(1, r.RequestCount)
	s.Zero(s.local.Len(), "local backend untouched while the primary answers")
}

func (s *StoreSuite) TestFailuresBelowThresholdSurface() {
	s.primary.down.Store(true)

	_, err := s.increment()
	s.ErrorIs(err, errUnreachable)
	s.Equal(circuit.StateClosed, s.store.State())
}

func (s *StoreSuite) TestOpenBreakerUsesLocalBackend() {
	s.primary.down.Store(true)
	_, _ = s.increment()

	r, err := s.increment()
	s.Require().NoError(err, "the call that opens the breaker is served locally")
	s.Equal(1, r.RequestCount)
	s.Equal([]circuit.State{circuit.StateOpen}, s.states)

	r, err = s.increment()
	s.Require().NoError(err)
	s.Equal(2, r.RequestCount, "local counts accumulate while open")
}

func (s *StoreSuite) TestOpenBreakerSkipsPrimary() {
	s.primary.down.Store(true)
	_, _ = s.increment()
	_, _ = s.increment()
	s.Require().Equal(circuit.StateOpen, s.store.State())
	callsAtTrip := s.primary.calls.Load()

	for range 20 {
		_, err := s.increment()
		s.Require().NoError(err)
	}
	s.Equal(callsAtTrip, s.primary.calls.Load(), "no call reaches the primary during the cooldown")

	s.clock = s.clock.Add(10 * time.Second)
	_, err := s.increment()
	s.Require().NoError(err, "a failed trial is answered locally")
	s.Equal(callsAtTrip+1, s.primary.calls.Load(), "one trial call after the cooldown")
	s.Equal(circuit.StateOpen, s.store.State(), "the failed trial reopens the breaker")

	_, _ = s.increment()
	s.Equal(callsAtTrip+1, s.primary.calls.Load())
}

func (s *StoreSuite) TestRecoveryClosesBreaker() {
	s.primary.down.Store(true)
	_, _ = s.increment()
	_, _ = s.increment()
	s.Require().Equal(circuit.StateOpen, s.store.State())

	s.primary.down.Store(false)
	_, err := s.increment()
	s.Require().NoError(err)
	s.Equal(circuit.StateOpen, s.store.State(), "still cooling down")

	s.clock = s.clock.Add(10 * time.Second)
	_, err = s.increment()
	s.Require().NoError(err)
	s.Equal(circuit.StateHalfOpen, s.store.State(), "one success is not enough")

	_, err = s.increment()
	s.Require().NoError(err)
	s.Equal(circuit.StateClosed, s.store.State())
	s.Equal([]circuit.State{circuit.StateOpen, circuit.StateClosed}, s.states)
}

func (s *StoreSuite) TestResetClearsBothBackends() {
	ctx := context.Background()
	_, err := s.local.IncrementLoginAttempts(ctx, "client:b", s.now, 15*time.Minute)
	s.Require().NoError(err)
	_, err = s.primary.inner.IncrementLoginAttempts(ctx, "client:b", s.now, 15*time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(s.store.ResetLoginAttempts(ctx, "client:b"))

	r, _, _ := s.local.Get(ctx, "client:b")
	s.Zero(r.LoginAttempts)
	r, _, _ = s.primary.inner.Get(ctx, "client:b")
	s.Zero(r.LoginAttempts)
}

func (s *StoreSuite) TestSweepTargetsLocalBackend() {
	ctx := context.Background()
	_, _ = s.local.IncrementRequests(ctx, "client:old", s.now, time.Minute)

	evicted, err := s.store.Sweep(ctx, s.now.Add(time.Hour), 15*time.Minute)
	s.Require().NoError(err)
	s.Equal(1, evicted)
	s.Zero(s.store.Len())
}
