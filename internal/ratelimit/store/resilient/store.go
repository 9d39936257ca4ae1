// Package resilient keeps rate limiting local when the shared backend is
// unreachable.
package resilient

import (
	"context"
	"log/slog"
	"time"

	"thgate/internal/ratelimit/models"
	"thgate/pkg/platform/circuit"
)

// Backend is the store contract shared by the Redis and in-memory backends.
type Backend interface {
	IncrementRequests(ctx context.Context, key string, now time.Time, window time.Duration) (models.Record, error)
	IncrementLoginAttempts(ctx context.Context, key string, now time.Time, lockout time.Duration) (models.Record, error)
	ResetLoginAttempts(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (models.Record, bool, error)
}

// LocalBackend is the in-process fallback. It must also be sweepable so the
// cleanup worker can bound it.
type LocalBackend interface {
	Backend
	Sweep(ctx context.Context, now time.Time, idle time.Duration) (int, error)
	Len() int
}

// Store sends calls to the primary while its breaker is closed. Once the
// breaker opens, calls go straight to the local backend, so a Redis outage
// degrades limits to per-instance without every request waiting on a dead
// connection. After the cooldown a single trial call at a time goes to the
// primary until enough succeed to close the breaker.
type Store struct {
	primary  Backend
	local    LocalBackend
	breaker  *circuit.Breaker
	logger   *slog.Logger
	onChange func(state circuit.State)
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		if b != nil {
			s.breaker = b
		}
	}
}

// WithStateHook is called when the breaker trips open and when it closes.
func WithStateHook(fn func(state circuit.State)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

func New(primary Backend, local LocalBackend, opts ...Option) *Store {
	s := &Store{
		primary: primary,
		local:   local,
		breaker: circuit.New("ratelimit_backend"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) IncrementRequests(ctx context.Context, key string, now time.Time, window time.Duration) (models.Record, error) {
	return call(ctx, s, "increment_requests",
		func(b Backend) (models.Record, error) { return b.IncrementRequests(ctx, key, now, window) })
}

func (s *Store) IncrementLoginAttempts(ctx context.Context, key string, now time.Time, lockout time.Duration) (models.Record, error) {
	return call(ctx, s, "increment_login_attempts",
		func(b Backend) (models.Record, error) { return b.IncrementLoginAttempts(ctx, key, now, lockout) })
}

// ResetLoginAttempts clears both backends so a stale local lockout cannot
// outlive a successful login once the primary recovers.
func (s *Store) ResetLoginAttempts(ctx context.Context, key string) error {
	_ = s.local.ResetLoginAttempts(ctx, key)
	_, err := call(ctx, s, "reset_login_attempts",
		func(b Backend) (struct{}, error) { return struct{}{}, b.ResetLoginAttempts(ctx, key) })
	return err
}

func (s *Store) Get(ctx context.Context, key string) (models.Record, bool, error) {
	type found struct {
		record models.Record
		ok     bool
	}
	res, err := call(ctx, s, "get", func(b Backend) (found, error) {
		r, ok, err := b.Get(ctx, key)
		return found{r, ok}, err
	})
	return res.record, res.ok, err
}

// Sweep and Len act on the local backend only; the primary expires its own keys.
func (s *Store) Sweep(ctx context.Context, now time.Time, idle time.Duration) (int, error) {
	return s.local.Sweep(ctx, now, idle)
}

func (s *Store) Len() int {
	return s.local.Len()
}

func (s *Store) State() circuit.State {
	return s.breaker.State()
}

func call[T any](ctx context.Context, s *Store, op string, fn func(Backend) (T, error)) (T, error) {
	if !s.breaker.Allow() {
		return fn(s.local)
	}

	res, err := fn(s.primary)
	if err == nil {
		if s.breaker.Success() {
			s.logger.InfoContext(ctx, "circuit breaker closed", "circuit", s.breaker.Name())
			s.notify(circuit.StateClosed)
		}
		return res, nil
	}

	state, tripped := s.breaker.Failure()
	if tripped {
		s.logger.ErrorContext(ctx, "circuit breaker opened",
			"circuit", s.breaker.Name(),
			"operation", op,
			"error", err,
		)
		s.notify(circuit.StateOpen)
	}
	if state == circuit.StateClosed {
		return res, err
	}
	return fn(s.local)
}

func (s *Store) notify(state circuit.State) {
	if s.onChange != nil {
		s.onChange(state)
	}
}
