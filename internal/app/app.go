// Package app is the composition root: it turns a Config into a running
// gateway with its optional backing services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"thgate/internal/audit"
	authhandler "thgate/internal/auth/handler"
	authmetrics "thgate/internal/auth/metrics"
	authservice "thgate/internal/auth/service"
	"thgate/internal/auth/store/credential"
	jwttoken "thgate/internal/jwt_token"
	"thgate/internal/pipeline"
	"thgate/internal/platform/config"
	"thgate/internal/platform/database"
	"thgate/internal/platform/health"
	"thgate/internal/platform/kafka"
	"thgate/internal/platform/kafka/producer"
	"thgate/internal/platform/metrics"
	redisclient "thgate/internal/platform/redis"
	ratelimitconfig "thgate/internal/ratelimit/config"
	ratelimitmetrics "thgate/internal/ratelimit/metrics"
	ratelimitsvc "thgate/internal/ratelimit/service"
	"thgate/internal/ratelimit/store/memory"
	redisstore "thgate/internal/ratelimit/store/redis"
	"thgate/internal/ratelimit/store/resilient"
	"thgate/internal/ratelimit/workers/cleanup"
	"thgate/internal/siteconfig"
	httptransport "thgate/internal/transport/http"
	"thgate/pkg/platform/circuit"
	"thgate/pkg/platform/middleware/metadata"
	"thgate/pkg/secrets"
)

const poolStatsInterval = 15 * time.Second

// App holds the wired handler and everything that must be started or closed
// with it.
type App struct {
	Handler  http.Handler
	Registry *prometheus.Registry
	Limiter  *ratelimitsvc.Service

	cfg       *config.Config
	logger    *slog.Logger
	redis     *redisclient.Client
	db        *database.Pool
	producer  *producer.Producer
	publisher *audit.Publisher
	cleanup   *cleanup.Service
}

type options struct {
	clock        func() time.Time
	passwordCost int
	sinks        []audit.Sink
}

type Option func(*options)

// WithClock replaces the wall clock for request time and record eviction.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithPasswordCost sets the bcrypt cost used to seed the demo account.
func WithPasswordCost(cost int) Option {
	return func(o *options) {
		o.passwordCost = cost
	}
}

// WithAuditSink adds a sink next to the log sink.
func WithAuditSink(sink audit.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sink)
	}
}

// New connects to the configured backing services and wires the router.
// Redis, Postgres and Kafka are each optional; without them the gateway runs
// on in-process state. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	o := options{passwordCost: secrets.PasswordCost}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		Registry: metrics.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.connect(ctx); err != nil {
		return nil, err
	}

	sinks := append([]audit.Sink{audit.NewLogSink(logger)}, o.sinks...)
	if a.producer != nil {
		sinks = append(sinks, audit.NewKafkaSink(a.producer))
	}
	a.publisher = audit.NewPublisher(sinks,
		audit.WithAsyncBuffer(1024),
		audit.WithPublisherLogger(logger),
	)

	credentials, err := a.credentials(ctx, o.passwordCost)
	if err != nil {
		return nil, err
	}

	tokens, err := jwttoken.NewJWTService(jwttoken.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	if err := a.buildLimiter(o.clock); err != nil {
		return nil, err
	}

	auth, err := authservice.New(credentials, tokens,
		authservice.WithLogger(logger),
		authservice.WithLoginLimiter(a.Limiter),
		authservice.WithMetrics(authmetrics.New(a.Registry)),
		authservice.WithAuditPublisher(a.publisher),
		authservice.WithPasswordCost(o.passwordCost),
	)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	identity := metadata.NewMiddleware(&metadata.Config{TrustedProxies: cfg.TrustedProxies})
	gate, err := pipeline.New(a.Limiter,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(pipeline.NewMetrics(a.Registry)),
		pipeline.WithAuditPublisher(a.publisher),
		pipeline.WithIdentity(identity),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	siteOpts := []siteconfig.Option{
		siteconfig.WithLogger(logger),
		siteconfig.WithAuditPublisher(a.publisher),
	}
	if cfg.IsProduction() {
		siteOpts = append(siteOpts, siteconfig.WithAllowedOrigins(cfg.AllowedOrigins))
	}

	probes := health.New(cfg.Environment, cfg.Firebase, health.WithLogger(logger))
	if a.redis != nil {
		probes.RegisterCheck("redis", a.redis.Health)
	}
	if a.db != nil {
		probes.RegisterCheck("database", a.db.Health)
	}
	if a.producer != nil {
		probes.RegisterCheck("kafka", a.producer.Health)
	}

	a.Handler = httptransport.NewRouter(httptransport.Config{
		Logger:         logger,
		Registry:       a.Registry,
		Identity:       identity,
		RequestTimeout: cfg.RequestTimeout,
		Clock:          o.clock,
	}, gate, probes,
		authhandler.New(auth, logger, authhandler.CookieConfig{
			Secure:        cfg.IsProduction(),
			AccessMaxAge:  cfg.JWT.AccessTTL,
			RefreshMaxAge: cfg.JWT.RefreshTTL,
		}, authhandler.WithAuditPublisher(a.publisher)),
		siteconfig.New(cfg.Firebase, siteOpts...),
		probes,
	)

	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	var err error
	if a.redis, err = redisclient.New(ctx, redisclient.DefaultConfig(a.cfg.RedisURL), a.Registry); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if a.db, err = database.New(ctx, database.DefaultConfig(a.cfg.DatabaseURL)); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.db != nil {
		if err := a.db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if len(a.cfg.Kafka.Brokers) > 0 {
		pc := kafka.DefaultProducerConfig()
		pc.Brokers = strings.Join(a.cfg.Kafka.Brokers, ",")
		pc.Topic = a.cfg.Kafka.Topic
		if a.producer, err = producer.New(pc, a.logger); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

// credentials returns the Postgres store when a database is configured,
// otherwise an in-memory store. The demo account is seeded everywhere but
// production.
func (a *App) credentials(ctx context.Context, cost int) (authservice.CredentialRepository, error) {
	type store interface {
		authservice.CredentialRepository
		credential.Saver
	}
	var st store
	if a.db != nil {
		st = credential.NewPostgres(a.db.DB())
	} else {
		st = credential.NewInMemory()
	}
	if a.cfg.IsProduction() {
		return st, nil
	}
	if err := credential.SeedDemo(ctx, st, a.cfg.DemoUser.Email, a.cfg.DemoUser.Password, cost); err != nil {
		return nil, fmt.Errorf("seed demo user: %w", err)
	}
	return st, nil
}

func (a *App) buildLimiter(clock func() time.Time) error {
	rl := a.cfg.RateLimit
	limitCfg := ratelimitconfig.Config{
		RequestsPerWindow: rl.RequestsPerWindow,
		Window:            rl.Window,
		LoginMaxAttempts:  rl.LoginMaxAttempts,
		LoginLockout:      rl.LoginLockout,
		CleanupInterval:   rl.CleanupInterval,
	}.WithDefaults()
	m := ratelimitmetrics.New(a.Registry)

	// The in-memory store is the whole backend without Redis and the
	// fallback behind the breaker with it; either way it needs sweeping.
	local := memory.New()
	var backend ratelimitsvc.Backend = local
	var sweep cleanup.SweepStore = local
	if a.redis != nil {
		shared := resilient.New(redisstore.New(a.redis.Client), local,
			resilient.WithLogger(a.logger),
			resilient.WithStateHook(func(state circuit.State) {
				m.SetBackendCircuitOpen(state == circuit.StateOpen)
			}),
		)
		backend, sweep = shared, shared
	}
	cleanupOpts := []cleanup.Option{
		cleanup.WithLogger(a.logger),
		cleanup.WithInterval(limitCfg.CleanupInterval),
		cleanup.WithIdleTTL(limitCfg.IdleTTL()),
		cleanup.WithMetrics(m),
	}
	if clock != nil {
		cleanupOpts = append(cleanupOpts, cleanup.WithClock(clock))
	}
	a.cleanup = cleanup.New(sweep, cleanupOpts...)

	var err error
	a.Limiter, err = ratelimitsvc.New(backend,
		ratelimitsvc.WithLogger(a.logger),
		ratelimitsvc.WithConfig(limitCfg),
		ratelimitsvc.WithMetrics(m),
		ratelimitsvc.WithAuditPublisher(a.publisher),
	)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// Run serves HTTP and runs the background workers until ctx is cancelled,
// then shuts the server down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting http server", "addr", a.cfg.Addr, "environment", a.cfg.Environment)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.cleanup != nil {
		g.Go(func() error {
			if err := a.cleanup.Start(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if a.redis != nil {
		g.Go(func() error {
			return a.redis.RunPoolStats(ctx, poolStatsInterval)
		})
	}
	return g.Wait()
}

// Close releases backing services. The audit publisher drains before the
// Kafka producer flushes.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close failed", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", "error", err)
		}
	}
}
