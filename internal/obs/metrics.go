// Package obs holds the Prometheus collectors the backtest pipeline reports into.
package obs

import (
	"time"

	"atlas/types"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Strategies      *prometheus.CounterVec
	Windows         *prometheus.CounterVec
	Violations      *prometheus.CounterVec
	SandboxDuration *prometheus.HistogramVec
	ActiveRuns      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Strategies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_strategies_total",
				Help: "Strategies processed, by terminal state",
			},
			[]string{"state"},
		),
		Windows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_windows_total",
				Help: "Walk-forward windows processed, by outcome",
			},
			[]string{"outcome"},
		),
		Violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_violations_total",
				Help: "Policy violations reported, by category",
			},
			[]string{"category"},
		),
		SandboxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atlas_sandbox_duration_seconds",
				Help:    "Wall time of one sandboxed strategy evaluation",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"segment"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlas_active_runs",
				Help: "Strategies currently being backtested",
			},
		),
	}
	reg.MustRegister(m.Strategies, m.Windows, m.Violations, m.SandboxDuration, m.ActiveRuns)
	return m
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

func (m *Metrics) RunFinished(state string) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.Strategies.WithLabelValues(state).Inc()
}

func (m *Metrics) WindowDone(outcome string) {
	if m == nil {
		return
	}
	m.Windows.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSandbox(segment types.Segment, d time.Duration) {
	if m == nil {
		return
	}
	m.SandboxDuration.WithLabelValues(string(segment)).Observe(d.Seconds())
}

func (m *Metrics) ObserveViolations(vs []types.Violation) {
	if m == nil {
		return
	}
	for _, v := range vs {
		m.Violations.WithLabelValues(string(v.Category)).Inc()
	}
}
