package hostmod

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes recorded by Metrics.
const (
	OutcomeOk   = "ok"
	OutcomeTrap = "trap"
)

// Metrics records guest calls into host modules.
type Metrics struct {
	calls *prometheus.CounterVec
	steps *prometheus.HistogramVec
}

// NewMetrics creates host call metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hoststate_host_calls_total",
			Help: "Guest calls into host functions by outcome",
		}, []string{"namespace", "func", "outcome"}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hoststate_host_call_steps",
			Help:    "Resumption steps taken per host call",
			Buckets: []float64{1, 2, 4, 8, 16, 64, 256},
		}, []string{"namespace", "func"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.steps)
	}
	return m
}

func (m *Metrics) observe(ns, name, outcome string, steps int) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(ns, name, outcome).Inc()
	m.steps.WithLabelValues(ns, name).Observe(float64(steps))
}

// Calls returns the call counter for tests and exporters.
func (m *Metrics) Calls() *prometheus.CounterVec {
	return m.calls
}

// Steps returns the per-call step histogram.
func (m *Metrics) Steps() *prometheus.HistogramVec {
	return m.steps
}
