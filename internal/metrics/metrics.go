// Package metrics exposes prometheus counters for lock engine decisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all engine metrics on a private registry.
type Metrics struct {
	ForegroundEvents prometheus.Counter
	Triggers         *prometheus.CounterVec // kind: app|settings
	Debounced        prometheus.Counter
	Superseded       prometheus.Counter
	Prompts          *prometheus.CounterVec // delivery: push|queued|drained|failed
	Revocations      *prometheus.CounterVec // reason: left|screen_off|boot
	Unlocks          prometheus.Counter
	SettingsScans    *prometheus.CounterVec // result: match|no_match
	StoreErrors      *prometheus.CounterVec // op
	PromptListeners  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the engine metrics on a fresh registry.
// Each call is independent, so tests can create as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ForegroundEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "applock_foreground_events_total",
			Help: "Foreground-change notifications processed",
		}),
		Triggers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "applock_lock_triggers_total",
			Help: "Lock triggers issued, by decision path",
		}, []string{"kind"}),
		Debounced: f.NewCounter(prometheus.CounterOpts{
			Name: "applock_triggers_debounced_total",
			Help: "Lock triggers absorbed by the debounce window",
		}),
		Superseded: f.NewCounter(prometheus.CounterOpts{
			Name: "applock_prompts_superseded_total",
			Help: "Delayed prompts dropped because a newer trigger replaced them",
		}),
		Prompts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "applock_prompts_total",
			Help: "Lock prompt hand-offs to the prompt UI, by delivery mode",
		}, []string{"delivery"}),
		Revocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "applock_allowance_revocations_total",
			Help: "Allowances revoked, by reason",
		}, []string{"reason"}),
		Unlocks: f.NewCounter(prometheus.CounterOpts{
			Name: "applock_unlocks_total",
			Help: "Unlock-succeeded notifications received",
		}),
		SettingsScans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "applock_settings_scans_total",
			Help: "Settings screen content scans, by result",
		}, []string{"result"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "applock_store_errors_total",
			Help: "Configuration store failures, by operation",
		}, []string{"op"}),
		PromptListeners: f.NewGauge(prometheus.GaugeOpts{
			Name: "applock_prompt_listener_attached",
			Help: "1 when a lock prompt UI is listening for events",
		}),
	}
}

// Registry returns the underlying registry (for tests and custom exporters).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
