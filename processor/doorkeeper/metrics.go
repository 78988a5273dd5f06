package doorkeeper

import (
	"time"

	"github.com/c360studio/semstreams/metric"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semgate/rules"
)

// Metrics holds Prometheus metrics for the doorkeeper. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	validations    *prometheus.CounterVec
	ruleFailures   *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
	pidOperations  *prometheus.CounterVec
}

// NewMetrics creates doorkeeper metrics using MetricsRegistry.
func NewMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{}

	m.validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semgate_resource_validations_total",
			Help: "Total number of resource edits validated",
		},
		[]string{"result"},
	)
	registry.RegisterCounterVec("doorkeeper", "resource_validations_total", m.validations)

	m.ruleFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semgate_rule_failures_total",
			Help: "Total number of rule failures by stage and rule",
		},
		[]string{"stage", "rule"},
	)
	registry.RegisterCounterVec("doorkeeper", "rule_failures_total", m.ruleFailures)

	m.commitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "semgate_commit_duration_seconds",
			Help:    "Duration of transaction commit passes",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"result"},
	)
	registry.RegisterHistogramVec("doorkeeper", "commit_duration_seconds", m.commitDuration)

	m.pidOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semgate_pid_operations_total",
			Help: "Total number of PID registry operations",
		},
		[]string{"op", "result"},
	)
	registry.RegisterCounterVec("doorkeeper", "pid_operations_total", m.pidOperations)

	return m
}

// RecordValidation counts one resource edit outcome.
func (m *Metrics) RecordValidation(result string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(result).Inc()
}

// RuleFailed implements rules.Observer.
func (m *Metrics) RuleFailed(stage rules.Stage, rule string) {
	if m == nil {
		return
	}
	m.ruleFailures.WithLabelValues(string(stage), rule).Inc()
}

// PIDOperation implements pid.Observer.
func (m *Metrics) PIDOperation(op, result string) {
	if m == nil {
		return
	}
	m.pidOperations.WithLabelValues(op, result).Inc()
}

// ObserveCommit records the duration of one commit pass.
func (m *Metrics) ObserveCommit(d time.Duration, result string) {
	if m == nil {
		return
	}
	m.commitDuration.WithLabelValues(result).Observe(d.Seconds())
}
