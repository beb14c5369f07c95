// Package engine derives the single local alert level from the latest
// weather and EOC snapshots plus manual overrides, commits state changes,
// and hands transitions to the effect dispatcher.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/forewarned/forewarned/internal/domain"
	"github.com/forewarned/forewarned/internal/observability"
)

// OverrideSource reports whether the manual override switch for a level is
// on. Backed by either the MQTT switch registry or REST entity lookups;
// the engine treats both uniformly. A lookup error reads as "off".
type OverrideSource interface {
	Active(ctx context.Context, level domain.AlertLevel) (bool, error)
}

// Dispatcher receives committed transitions. It must not block: the engine
// calls it outside its critical section but on the submitting goroutine.
type Dispatcher interface {
	Dispatch(ctx context.Context, t domain.Transition)
}

// Engine owns the committed LocalAlertState and the two input snapshots.
// Every snapshot push runs override resolution, classification, and the
// compare-and-commit as one critical section, so near-simultaneous pushes
// from the two pollers cannot interleave. Effects run after the lock is
// released.
type Engine struct {
	mu      sync.Mutex
	state   domain.LocalAlertState
	weather domain.WeatherSnapshot
	eoc     domain.EOCSnapshot
	table   domain.LevelTable

	overrides  OverrideSource
	dispatcher Dispatcher
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

// New creates an Engine with the given level table. The table is the only
// hard startup requirement; overrides and dispatcher may be nil.
func New(table domain.LevelTable, overrides OverrideSource, dispatcher Dispatcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if len(table) == 0 {
		return nil, errors.New("engine: level table is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		state:      domain.LocalAlertState{Level: domain.LevelNone, Timestamp: clock.Now()},
		weather:    domain.WeatherSnapshot{},
		eoc:        domain.EOCSnapshot{},
		table:      table.Normalize(),
		overrides:  overrides,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// SubmitWeatherSnapshot replaces the weather snapshot wholesale and
// re-evaluates the alert state.
func (e *Engine) SubmitWeatherSnapshot(ctx context.Context, snapshot domain.WeatherSnapshot) {
	e.metrics.SnapshotSize.WithLabelValues("weather").Set(float64(len(snapshot)))
	e.submit(ctx, func() {
		e.weather = cloneWeather(snapshot)
	})
	e.ready.Store(true)
}

// SubmitEOCSnapshot replaces the EOC snapshot wholesale and re-evaluates the
// alert state.
func (e *Engine) SubmitEOCSnapshot(ctx context.Context, snapshot domain.EOCSnapshot) {
	e.metrics.SnapshotSize.WithLabelValues("eoc").Set(float64(len(snapshot)))
	e.submit(ctx, func() {
		e.eoc = cloneEOC(snapshot)
	})
	e.ready.Store(true)
}

// Reevaluate re-runs evaluation against the current snapshots. Used when an
// override switch flips between polls.
func (e *Engine) Reevaluate(ctx context.Context) {
	e.submit(ctx, func() {})
}

// ReloadLevelTable hot-swaps the rule configuration without restarting the
// engine and re-evaluates against it.
func (e *Engine) ReloadLevelTable(ctx context.Context, table domain.LevelTable) error {
	if len(table) == 0 {
		return errors.New("engine: level table is required")
	}
	normalized := table.Normalize()
	e.submit(ctx, func() {
		e.table = normalized
	})
	e.logger.Info("level table reloaded", "levels", len(normalized))
	return nil
}

// CurrentState returns a copy of the committed state.
func (e *Engine) CurrentState() domain.LocalAlertState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneState(e.state)
}

// Snapshots returns copies of the latest weather and EOC snapshots for the
// status surface.
func (e *Engine) Snapshots() (domain.WeatherSnapshot, domain.EOCSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneWeather(e.weather), cloneEOC(e.eoc)
}

// CheckReadiness returns nil once the engine has received at least one
// snapshot from either poller.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("engine has not received any snapshots yet")
	}
	return nil
}

// submit applies a mutation, evaluates, and commits under the lock, then
// dispatches any resulting transition outside it.
func (e *Engine) submit(ctx context.Context, apply func()) {
	e.mu.Lock()
	apply()
	transition := e.evaluateLocked(ctx)
	e.mu.Unlock()

	if transition != nil && e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, *transition)
	}
}

// evaluateLocked computes the candidate state and commits it. The committed
// state is always replaced whole (so reason text stays fresh), but a
// transition is emitted only when the (active, level) pair changed.
func (e *Engine) evaluateLocked(ctx context.Context) *domain.Transition {
	e.metrics.Evaluations.Inc()

	candidate, overridden := e.candidateLocked(ctx)

	old := e.state
	e.state = candidate

	e.metrics.CurrentLevel.Set(float64(candidate.Level))
	e.metrics.AlertActive.Set(boolGauge(candidate.Active))
	e.metrics.OverrideActive.Set(boolGauge(overridden))

	if old.Active == candidate.Active && old.Level == candidate.Level {
		return nil
	}

	e.metrics.Transitions.Inc()
	e.logger.Info("local alert state changed",
		"old_level", old.Level.String(),
		"new_level", candidate.Level.String(),
		"active", candidate.Active,
		"reason", candidate.Reason,
	)
	return &domain.Transition{Old: cloneState(old), New: cloneState(candidate)}
}

// candidateLocked resolves overrides first; only when none is active does it
// consult the classifier. The bool result reports whether an override won.
func (e *Engine) candidateLocked(ctx context.Context) (domain.LocalAlertState, bool) {
	if e.overrides != nil {
		for _, level := range domain.LevelsDescending() {
			on, err := e.overrides.Active(ctx, level)
			if err != nil {
				// Treated as "no override for this level".
				e.logger.Debug("override lookup failed", "level", level.String(), "error", err)
				continue
			}
			if on {
				reason := "Manual override: " + strings.ToUpper(level.String())
				return domain.LocalAlertState{
					Active:      true,
					Level:       level,
					Reason:      reason,
					TriggeredBy: []string{reason},
					Timestamp:   e.clock.Now(),
				}, true
			}
		}
	}

	result := domain.Classify(e.weather, e.eoc, e.table)
	return domain.LocalAlertState{
		Active:      result.Level != domain.LevelNone,
		Level:       result.Level,
		Reason:      domain.ReasonString(result.Reasons),
		TriggeredBy: result.Reasons,
		Timestamp:   e.clock.Now(),
	}, false
}

func cloneState(s domain.LocalAlertState) domain.LocalAlertState {
	out := s
	out.TriggeredBy = append([]string(nil), s.TriggeredBy...)
	return out
}

func cloneWeather(snapshot domain.WeatherSnapshot) domain.WeatherSnapshot {
	out := make(domain.WeatherSnapshot, len(snapshot))
	for id, alert := range snapshot {
		out[id] = alert
	}
	return out
}

func cloneEOC(snapshot domain.EOCSnapshot) domain.EOCSnapshot {
	out := make(domain.EOCSnapshot, len(snapshot))
	for site, state := range snapshot {
		out[site] = state
	}
	return out
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
