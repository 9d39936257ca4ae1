package cleanup

import (
	"context"
	"log/slog"
	"time"

	"thgate/internal/ratelimit/metrics"
)

// CleanupResult contains the results of a cleanup run.
type CleanupResult struct {
	Evicted   int           // Number of idle client records removed
	Remaining int           // Records still tracked after the run
	Duration  time.Duration // Time taken for cleanup run
}

// SweepStore evicts idle client records. Only the in-memory backend needs
// this; the Redis backend expires keys on its own.
type SweepStore interface {
	Sweep(ctx context.Context, now time.Time, idle time.Duration) (evicted int, err error)
	Len() int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithIdleTTL sets how long a record must be untouched before eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source. Tests use it to drive eviction.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service periodically sweeps idle rate-limit records so memory stays
// bounded by the number of recently active clients.
type Service struct {
	store    SweepStore
	logger   *slog.Logger
	interval time.Duration
	idleTTL  time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(store SweepStore, opts ...Option) *Service {
	service := &Service{
		store:    store,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
		idleTTL:  15 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Start runs the sweep on every tick until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("ratelimit_cleanup_failed",
					"error", err,
				)
				if s.metrics != nil {
					s.metrics.IncrementCleanupRuns("error")
				}
				continue
			}

			s.logger.Info("ratelimit_cleanup_completed",
				"evicted", res.Evicted,
				"remaining", res.Remaining,
				"duration_ms", res.Duration.Milliseconds(),
			)

			if s.metrics != nil {
				s.metrics.IncrementCleanupEvicted(res.Evicted)
				s.metrics.SetTrackedClients(res.Remaining)
				s.metrics.IncrementCleanupRuns("success")
				s.metrics.ObserveCleanupDuration(res.Duration.Seconds())
			}

		case <-ctx.Done():
			s.logger.Info("ratelimit cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single sweep. Logging is handled by the caller (Start).
func (s *Service) RunOnce(ctx context.Context) (*CleanupResult, error) {
	start := time.Now()
	evicted, err := s.store.Sweep(ctx, s.now(), s.idleTTL)
	if err != nil {
		return nil, err
	}
	return &CleanupResult{
		Evicted:   evicted,
		Remaining: s.store.Len(),
		Duration:  time.Since(start),
	}, nil
}
