// Package metrics defines the Prometheus collectors exported by the harness.
//
// Collectors live on a private registry so that several harness instances (one
// per test binary, or a watch daemon) never collide on the default registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "e2eprobe"

// Metrics groups the harness collectors.
type Metrics struct {
	registry *prometheus.Registry

	// LoginAttempts counts login attempts.
	// Labels:
	//   - role: the logical role logged in as
	//   - result: success, rejected, ambiguous, form_not_found, timeout, unknown_role, error
	LoginAttempts *prometheus.CounterVec

	// NavigationResults counts classified navigations.
	// Labels:
	//   - outcome: reached, redirected_to_login, redirected, forbidden, not_found, error
	//   - strategy: link or direct
	NavigationResults *prometheus.CounterVec

	// EvidenceEvents counts captured evidence by kind
	// (console_error, page_error, network_failure, screenshot).
	EvidenceEvents *prometheus.CounterVec

	// AssertionFailures counts failed checks by check name.
	AssertionFailures *prometheus.CounterVec

	// ScenarioDuration measures whole scenario runs.
	ScenarioDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Total number of login attempts, by role and result.",
			},
			[]string{"role", "result"},
		),
		NavigationResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "navigation_results_total",
				Help:      "Total number of navigations, by outcome and strategy.",
			},
			[]string{"outcome", "strategy"},
		),
		EvidenceEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evidence_events_total",
				Help:      "Total number of evidence items captured, by kind.",
			},
			[]string{"kind"},
		),
		AssertionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assertion_failures_total",
				Help:      "Total number of failed checks, by check.",
			},
			[]string{"check"},
		),
		ScenarioDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scenario_duration_seconds",
				Help:      "Duration of scenario runs.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"scenario"},
		),
	}
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveLogin(role, result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(role, result).Inc()
}

func (m *Metrics) ObserveNavigation(outcome, strategy string) {
	if m == nil {
		return
	}
	m.NavigationResults.WithLabelValues(outcome, strategy).Inc()
}

func (m *Metrics) ObserveEvidence(kind string) {
	if m == nil {
		return
	}
	m.EvidenceEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveAssertionFailure(check string) {
	if m == nil {
		return
	}
	m.AssertionFailures.WithLabelValues(check).Inc()
}

func (m *Metrics) ObserveScenario(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScenarioDuration.WithLabelValues(name).Observe(d.Seconds())
}
