package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forewarned/forewarned/internal/domain"
	"github.com/forewarned/forewarned/internal/observability"
)

type stubOverrides struct {
	mu  sync.Mutex
	on  map[domain.AlertLevel]bool
	err error
}

func (s *stubOverrides) Active(_ context.Context, level domain.AlertLevel) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.on[level], nil
}

func (s *stubOverrides) set(level domain.AlertLevel, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.on == nil {
		s.on = make(map[domain.AlertLevel]bool)
	}
	s.on[level] = on
}

type recordingDispatcher struct {
	mu          sync.Mutex
	transitions []domain.Transition
}

func (r *recordingDispatcher) Dispatch(_ context.Context, t domain.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recordingDispatcher) all() []domain.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Transition(nil), r.transitions...)
}

func newTestEngine(t *testing.T, overrides OverrideSource) (*Engine, *recordingDispatcher) {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	eng, err := New(
		domain.DefaultLevelTable(),
		overrides,
		dispatcher,
		clockwork.NewFakeClock(),
		slog.Default(),
		observability.NewMetricsForTesting(),
	)
	require.NoError(t, err)
	return eng, dispatcher
}

func severeWeather() domain.WeatherSnapshot {
	return domain.WeatherSnapshot{
		"w1": {Event: "Severe Thunderstorm Warning for Townsville", Severity: domain.SeveritySevere},
	}
}

func TestNew_RequiresLevelTable(t *testing.T) {
	_, err := New(nil, nil, nil, clockwork.NewFakeClock(), slog.Default(), observability.NewMetricsForTesting())
	require.Error(t, err)
}

func TestSubmitWeatherSnapshot_ActivatesAlert(t *testing.T) {
	eng, dispatcher := newTestEngine(t, nil)

	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())

	state := eng.CurrentState()
	assert.True(t, state.Active)
	assert.Equal(t, domain.LevelWarning, state.Level)
	assert.Equal(t, "Weather: Severe Thunderstorm Warning", state.Reason)

	transitions := dispatcher.all()
	require.Len(t, transitions, 1)
	assert.False(t, transitions[0].Old.Active)
	assert.True(t, transitions[0].New.Active)
	assert.Equal(t, domain.LevelWarning, transitions[0].New.Level)
}

func TestSubmitEOCSnapshot_ActivatesAlert(t *testing.T) {
	eng, dispatcher := newTestEngine(t, nil)

	eng.SubmitEOCSnapshot(context.Background(), domain.EOCSnapshot{
		"townsville": {State: domain.EOCStandUp, Activated: true},
	})

	state := eng.CurrentState()
	assert.Equal(t, domain.LevelEmergency, state.Level)
	assert.Equal(t, "LDMG: STAND UP", state.Reason)
	assert.Len(t, dispatcher.all(), 1)
}

func TestOverridePreemptsClassification(t *testing.T) {
	overrides := &stubOverrides{}
	overrides.set(domain.LevelEmergency, true)
	eng, _ := newTestEngine(t, overrides)

	// Weather alone would only be a warning.
	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())

	state := eng.CurrentState()
	assert.True(t, state.Active)
	assert.Equal(t, domain.LevelEmergency, state.Level)
	assert.Equal(t, "Manual override: EMERGENCY", state.Reason)
	assert.Equal(t, []string{"Manual override: EMERGENCY"}, state.TriggeredBy)
}

func TestHighestOverrideWins(t *testing.T) {
	overrides := &stubOverrides{}
	overrides.set(domain.LevelAdvisory, true)
	overrides.set(domain.LevelWarning, true)
	eng, _ := newTestEngine(t, overrides)

	eng.Reevaluate(context.Background())

	assert.Equal(t, domain.LevelWarning, eng.CurrentState().Level)
}

func TestOverrideLookupErrorFallsThrough(t *testing.T) {
	overrides := &stubOverrides{err: errors.New("broker down")}
	eng, _ := newTestEngine(t, overrides)

	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())

	state := eng.CurrentState()
	assert.Equal(t, domain.LevelWarning, state.Level)
}

func TestClearingSnapshotDeactivates(t *testing.T) {
	eng, dispatcher := newTestEngine(t, nil)

	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())
	eng.SubmitWeatherSnapshot(context.Background(), domain.WeatherSnapshot{})

	state := eng.CurrentState()
	assert.False(t, state.Active)
	assert.Equal(t, domain.LevelNone, state.Level)
	assert.Equal(t, "No active alerts", state.Reason)

	transitions := dispatcher.all()
	require.Len(t, transitions, 2)
	assert.True(t, transitions[1].Old.Active)
	assert.False(t, transitions[1].New.Active)
}

func TestUnchangedLevelEmitsNoTransition(t *testing.T) {
	eng, dispatcher := newTestEngine(t, nil)

	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())
	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())
	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())

	assert.Len(t, dispatcher.all(), 1)
}

func TestSameLevelDifferentAlertsRefreshesReasonSilently(t *testing.T) {
	eng, dispatcher := newTestEngine(t, nil)

	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())
	eng.SubmitWeatherSnapshot(context.Background(), domain.WeatherSnapshot{
		"w2": {Event: "Flood Warning for Herbert River", Severity: domain.SeveritySevere},
	})

	assert.Len(t, dispatcher.all(), 1)
	assert.Equal(t, "Weather: Flood Warning", eng.CurrentState().Reason)
}

func TestReevaluate_PicksUpOverrideFlip(t *testing.T) {
	overrides := &stubOverrides{}
	eng, dispatcher := newTestEngine(t, overrides)

	overrides.set(domain.LevelWatch, true)
	eng.Reevaluate(context.Background())
	assert.Equal(t, domain.LevelWatch, eng.CurrentState().Level)

	overrides.set(domain.LevelWatch, false)
	eng.Reevaluate(context.Background())
	assert.Equal(t, domain.LevelNone, eng.CurrentState().Level)

	assert.Len(t, dispatcher.all(), 2)
}

func TestReloadLevelTable(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())
	require.Equal(t, domain.LevelWarning, eng.CurrentState().Level)

	// Severe now triggers emergency under the replacement table.
	replacement := domain.LevelTable{
		domain.LevelEmergency: {
			Weather: domain.ConditionSet{Operator: domain.OpOr, Rules: []domain.ConditionRule{
				domain.WeatherRule(domain.MatchAny, domain.SeveritySevere),
			}},
			Combine: domain.OpOr,
		},
	}
	require.NoError(t, eng.ReloadLevelTable(context.Background(), replacement))

	assert.Equal(t, domain.LevelEmergency, eng.CurrentState().Level)
}

func TestReloadLevelTable_RejectsEmptyTable(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	require.Error(t, eng.ReloadLevelTable(context.Background(), nil))
}

func TestCheckReadiness(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	require.Error(t, eng.CheckReadiness(context.Background()))

	eng.SubmitWeatherSnapshot(context.Background(), domain.WeatherSnapshot{})
	require.NoError(t, eng.CheckReadiness(context.Background()))
}

func TestSnapshotsReturnCopies(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	eng.SubmitWeatherSnapshot(context.Background(), severeWeather())

	weather, _ := eng.Snapshots()
	delete(weather, "w1")

	again, _ := eng.Snapshots()
	assert.Contains(t, again, "w1")
}

func TestConcurrentSubmissionsCommitConsistently(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			eng.SubmitWeatherSnapshot(context.Background(), severeWeather())
		}()
		go func() {
			defer wg.Done()
			eng.SubmitEOCSnapshot(context.Background(), domain.EOCSnapshot{
				"site": {State: domain.EOCStandUp, Activated: true},
			})
		}()
	}
	wg.Wait()

	// Both inputs have landed, so the final state reflects both of them.
	state := eng.CurrentState()
	assert.True(t, state.Active)
	assert.Equal(t, domain.LevelEmergency, state.Level)
}
