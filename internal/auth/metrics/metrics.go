package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for auth operations.
type Metrics struct {
	LoginsTotal          *prometheus.CounterVec
	TokenRefreshesTotal  *prometheus.CounterVec
	LoginDurationSeconds prometheus.Histogram
}

// New registers auth collectors with reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		LoginsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thgate_auth_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		TokenRefreshesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thgate_auth_token_refreshes_total",
			Help: "Refresh attempts by outcome",
		}, []string{"outcome"}),
		LoginDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "thgate_auth_login_duration_seconds",
			Help:    "Time spent checking credentials, dominated by bcrypt",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
	}
}

func (m *Metrics) IncrementLogin(outcome string) {
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRefresh(outcome string) {
	m.TokenRefreshesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLoginDuration(seconds float64) {
	m.LoginDurationSeconds.Observe(seconds)
}
