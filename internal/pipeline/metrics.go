package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts requests stopped before reaching a handler.
type Metrics struct {
	DenialsTotal *prometheus.CounterVec
	PanicsTotal  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		DenialsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thgate_pipeline_denials_total",
			Help: "Requests rejected by a precheck, by stage and reason",
		}, []string{"stage", "reason"}),
		PanicsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "thgate_pipeline_panics_total",
			Help: "Handler panics converted to 500 responses",
		}),
	}
}

func (m *Metrics) IncrementDenial(stage, reason string) {
	m.DenialsTotal.WithLabelValues(stage, reason).Inc()
}

func (m *Metrics) IncrementPanic() {
	m.PanicsTotal.Inc()
}
