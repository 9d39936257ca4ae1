package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitDecisionsTotal         *prometheus.CounterVec
	RateLimitLoginFailures          prometheus.Counter
	RateLimitLoginLockoutsTotal     prometheus.Counter
	RateLimitBackendErrorsTotal     *prometheus.CounterVec
	RateLimitTrackedClients         prometheus.Gauge
	RateLimitCleanupEvictedTotal    prometheus.Counter
	RateLimitCleanupRunsTotal       *prometheus.CounterVec
	RateLimitCleanupDurationSeconds prometheus.Histogram
	RateLimitBackendCircuitOpen     prometheus.Gauge
}

// New registers the rate limiter metrics with reg. A nil reg uses the
// default prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RateLimitDecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thgate_ratelimit_decisions_total",
			Help: "Rate limit decisions by outcome",
		}, []string{"outcome"}),
		RateLimitLoginFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "thgate_ratelimit_login_failures_recorded_total",
			Help: "Total number of failed logins recorded for lockout tracking",
		}),
		RateLimitLoginLockoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "thgate_ratelimit_login_lockouts_total",
			Help: "Total number of clients that reached the login attempt ceiling",
		}),
		RateLimitBackendErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thgate_ratelimit_backend_errors_total",
			Help: "Backend failures by operation; requests are allowed when these occur",
		}, []string{"operation"}),
		RateLimitTrackedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "thgate_ratelimit_tracked_clients",
			Help: "Client records held by the in-memory backend after the last cleanup",
		}),
		RateLimitCleanupEvictedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "thgate_ratelimit_cleanup_evicted_total",
			Help: "Total number of idle client records evicted by the cleanup worker",
		}),
		RateLimitCleanupRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thgate_ratelimit_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		RateLimitCleanupDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name: "thgate_ratelimit_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
		RateLimitBackendCircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "thgate_ratelimit_backend_circuit_open",
			Help: "1 while the shared backend is bypassed for the local fallback",
		}),
	}
}

func (m *Metrics) IncrementDecision(outcome string) {
	m.RateLimitDecisionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLoginFailures() {
	m.RateLimitLoginFailures.Inc()
}

func (m *Metrics) IncrementLoginLockouts() {
	m.RateLimitLoginLockoutsTotal.Inc()
}

func (m *Metrics) IncrementBackendErrors(operation string) {
	m.RateLimitBackendErrorsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) SetTrackedClients(count int) {
	m.RateLimitTrackedClients.Set(float64(count))
}

func (m *Metrics) IncrementCleanupEvicted(count int) {
	m.RateLimitCleanupEvictedTotal.Add(float64(count))
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	m.RateLimitCleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	m.RateLimitCleanupDurationSeconds.Observe(durationSeconds)
}

func (m *Metrics) SetBackendCircuitOpen(open bool) {
	if open {
		m.RateLimitBackendCircuitOpen.Set(1)
		return
	}
	m.RateLimitBackendCircuitOpen.Set(0)
}
