package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for the alert engine.
type Metrics struct {
	Evaluations      prometheus.Counter
	Transitions      prometheus.Counter
	CurrentLevel     prometheus.Gauge // numeric alert level, 0=none .. 4=emergency
	AlertActive      prometheus.Gauge
	OverrideActive   prometheus.Gauge
	EngineRunning    prometheus.Gauge
	EffectErrors     *prometheus.CounterVec // labels: effect={sensor,routine,notification,call,publish}
	PollErrors       *prometheus.CounterVec // labels: source={weather,eoc}
	SnapshotSize     *prometheus.GaugeVec   // labels: source={weather,eoc}
	CallsPlaced      *prometheus.CounterVec // labels: outcome={success,failure}
	SwitchCommands   prometheus.Counter
	TransitionEvents prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Evaluations,
		m.Transitions,
		m.CurrentLevel,
		m.AlertActive,
		m.OverrideActive,
		m.EngineRunning,
		m.EffectErrors,
		m.PollErrors,
		m.SnapshotSize,
		m.CallsPlaced,
		m.SwitchCommands,
		m.TransitionEvents,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forewarned",
			Name:      "evaluations_total",
			Help:      "Total alert state evaluations performed.",
		}),
		Transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forewarned",
			Name:      "transitions_total",
			Help:      "Total committed alert state transitions.",
		}),
		CurrentLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forewarned",
			Name:      "alert_level",
			Help:      "Current local alert level (0=none through 4=emergency).",
		}),
		AlertActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forewarned",
			Name:      "alert_active",
			Help:      "1 when a local alert is active, 0 otherwise.",
		}),
		OverrideActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forewarned",
			Name:      "override_active",
			Help:      "1 when the committed state came from a manual override.",
		}),
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "forewarned",
			Name:      "engine_running",
			Help:      "1 when the engine is active, 0 when shut down.",
		}),
		EffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forewarned",
			Name:      "effect_errors_total",
			Help:      "Dispatch failures by effect type.",
		}, []string{"effect"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forewarned",
			Name:      "poll_errors_total",
			Help:      "Feed poll failures by source.",
		}, []string{"source"}),
		SnapshotSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "forewarned",
			Name:      "snapshot_size",
			Help:      "Entries in the latest snapshot by source.",
		}, []string{"source"}),
		CallsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forewarned",
			Name:      "calls_placed_total",
			Help:      "Outbound alert calls by outcome.",
		}, []string{"outcome"}),
		SwitchCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forewarned",
			Name:      "switch_commands_total",
			Help:      "Manual override switch commands received over MQTT.",
		}),
		TransitionEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forewarned",
			Name:      "transition_events_total",
			Help:      "Transition events published to the event stream.",
		}),
	}
}
