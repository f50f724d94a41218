package powerflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/edp1096/toy-powerflow/pkg/solver"
)

// Metrics counts kernel runs, iterations and island outcomes. A nil
// *Metrics records nothing.
type Metrics struct {
	KernelRunsTotal  *prometheus.CounterVec
	KernelIterations *prometheus.HistogramVec
	OuterIterations  prometheus.Histogram
	IslandsTotal     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		KernelRunsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerflow_kernel_runs_total",
				Help: "Total number of inner kernel invocations",
			},
			[]string{"method", "outcome"}, // converged, failed
		),
		KernelIterations: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "powerflow_kernel_iterations",
				Help:    "Iterations used per inner kernel invocation",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
			},
			[]string{"method"},
		),
		OuterIterations: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "powerflow_outer_iterations",
				Help:    "Outer control loop iterations per island",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
			},
		),
		IslandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerflow_islands_total",
				Help: "Total number of islands processed",
			},
			[]string{"status"}, // converged, failed, skipped
		),
	}
}

func (m *Metrics) kernelRun(r solver.Result) {
	if m == nil {
		return
	}
	outcome := "failed"
	if r.Converged {
		outcome = "converged"
	}
	m.KernelRunsTotal.WithLabelValues(string(r.Method), outcome).Inc()
	m.KernelIterations.WithLabelValues(string(r.Method)).Observe(float64(r.Iterations))
}

func (m *Metrics) outerLoop(iterations int) {
	if m == nil {
		return
	}
	m.OuterIterations.Observe(float64(iterations))
}

func (m *Metrics) island(status string) {
	if m == nil {
		return
	}
	m.IslandsTotal.WithLabelValues(status).Inc()
}
