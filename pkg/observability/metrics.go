// Package observability exposes prometheus instrumentation for the
// executor, the tool dispatcher, and the guardrail layer.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the runtime reports into. A nil *Metrics
// is valid and records nothing, so components can treat instrumentation as
// optional.
type Metrics struct {
	stepDuration       *prometheus.HistogramVec
	stepFailures       *prometheus.CounterVec
	toolInvocations    *prometheus.CounterVec
	toolDuration       *prometheus.HistogramVec
	loopIterations     prometheus.Histogram
	guardrailFlags     *prometheus.CounterVec
	checkpointFailures prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epivigil",
			Name:      "step_duration_seconds",
			Help:      "Wall time per workflow step execution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topology", "step"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epivigil",
			Name:      "step_failures_total",
			Help:      "Step executions that ended with a captured error.",
		}, []string{"topology", "step"}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epivigil",
			Name:      "tool_invocations_total",
			Help:      "Tool dispatches by outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epivigil",
			Name:      "tool_duration_seconds",
			Help:      "Wall time per tool dispatch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		loopIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "epivigil",
			Name:      "loop_iterations",
			Help:      "Assistant/tool iterations per autonomous run.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		guardrailFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epivigil",
			Name:      "guardrail_flags_total",
			Help:      "Guardrail findings by kind (redaction, keyword, truncation).",
		}, []string{"kind"}),
		checkpointFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "epivigil",
			Name:      "checkpoint_failures_total",
			Help:      "Best-effort checkpoint appends that failed.",
		}),
	}
	reg.MustRegister(
		m.stepDuration,
		m.stepFailures,
		m.toolInvocations,
		m.toolDuration,
		m.loopIterations,
		m.guardrailFlags,
		m.checkpointFailures,
	)
	return m
}

// ObserveStep records one step execution.
func (m *Metrics) ObserveStep(topology, step string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(topology, step).Observe(d.Seconds())
	if failed {
		m.stepFailures.WithLabelValues(topology, step).Inc()
	}
}

// ObserveTool records one tool dispatch.
func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolInvocations.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveLoop records the iteration count of a finished autonomous run.
func (m *Metrics) ObserveLoop(iterations int) {
	if m == nil {
		return
	}
	m.loopIterations.Observe(float64(iterations))
}

// FlagGuardrail counts one guardrail finding.
func (m *Metrics) FlagGuardrail(kind string) {
	if m == nil {
		return
	}
	m.guardrailFlags.WithLabelValues(kind).Inc()
}

// CheckpointFailed counts one failed best-effort append.
func (m *Metrics) CheckpointFailed() {
	if m == nil {
		return
	}
	m.checkpointFailures.Inc()
}
