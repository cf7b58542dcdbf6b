package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricPrefix = "voto_alerts_"

// Metrics are collected per batch run and pushed to a Pushgateway at the end.
// A private registry keeps runs from sharing state through the default one.
type Metrics struct {
	registry *prometheus.Registry

	dispatches    *prometheus.CounterVec
	plans         *prometheus.CounterVec
	phaseFailures *prometheus.CounterVec
	redials       prometheus.Counter
	failCount     prometheus.Gauge
	lastRun       *prometheus.GaugeVec
	runDuration   prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "dispatches_total",
			Help: "Notifications sent, by channel, role and result",
		}, []string{"channel", "role", "result"}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "escalations_total",
			Help: "Escalation outcomes",
		}, []string{"outcome"}),
		phaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "phase_failures_total",
			Help: "Failed run phases",
		}, []string{"phase"}),
		redials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "redials_total",
			Help: "Failed calls placed again",
		}),
		failCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "consecutive_failures",
			Help: "Consecutive failed runs",
		}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "last_run_timestamp_seconds",
			Help: "End of the last run, by result",
		}, []string{"result"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "run_duration_seconds",
			Help: "Duration of the last run",
		}),
	}
	m.registry.MustRegister(
		m.dispatches,
		m.plans,
		m.phaseFailures,
		m.redials,
		m.failCount,
		m.lastRun,
		m.runDuration,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDispatch counts one text or call.
func (m *Metrics) ObserveDispatch(channel, role string, err error) {
	m.dispatches.WithLabelValues(channel, role, result(err)).Inc()
}

// ObserveOutcome counts one escalation outcome.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.plans.WithLabelValues(outcome).Inc()
}

// ObservePhase counts a phase failure. Successful phases are not counted.
func (m *Metrics) ObservePhase(phase string, err error) {
	if err != nil {
		m.phaseFailures.WithLabelValues(phase).Inc()
	}
}

// ObserveRedial counts one redial.
func (m *Metrics) ObserveRedial() {
	m.redials.Inc()
}

// SetFailCount records the failure counter after a run.
func (m *Metrics) SetFailCount(count int) {
	m.failCount.Set(float64(count))
}

// ObserveRun records the end of a run.
func (m *Metrics) ObserveRun(start, end time.Time, err error) {
	m.lastRun.WithLabelValues(result(err)).Set(float64(end.Unix()))
	m.runDuration.Set(end.Sub(start).Seconds())
}

// Push sends every collector to the Pushgateway at url under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
