package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/forewarned/forewarned/internal/domain"
	"github.com/forewarned/forewarned/internal/observability"
)

// Automations is the slice of the home-automation platform API the
// dispatcher needs. Failures are logged and never fatal.
type Automations interface {
	SetSensorState(ctx context.Context, entityID, state string, attributes map[string]any) error
	SendNotification(ctx context.Context, message, title string) error
	ActivateScene(ctx context.Context, sceneID string) error
	RunScript(ctx context.Context, scriptID string) error
}

// Caller places one outbound alert call.
type Caller interface {
	PlaceAlertCall(ctx context.Context, destination string, level domain.AlertLevel, reason string) error
}

// TransitionPublisher emits a transition to an external event stream.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, t domain.Transition) error
}

// AlertSensorEntity is the binary sensor the dispatcher keeps in sync with
// the committed state.
const AlertSensorEntity = "binary_sensor.forewarned_local_alert"

// EffectDispatcher fans a transition out to its side effects. Every effect
// is fire-and-forget on its own goroutine with local error logging; no
// effect blocks state commitment or any other effect, and a failing effect
// never rolls the committed state back.
type EffectDispatcher struct {
	automations Automations
	caller      Caller              // nil disables voice calls
	publisher   TransitionPublisher // nil disables the event stream

	routines      map[domain.AlertLevel][]string
	clearRoutines []string
	alertCalls    map[domain.AlertLevel][]string

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEffectDispatcher wires the dispatcher. routines and alertCalls are
// keyed by the level that activates them; clearRoutines run when alerts
// clear.
func NewEffectDispatcher(
	automations Automations,
	caller Caller,
	publisher TransitionPublisher,
	routines map[domain.AlertLevel][]string,
	clearRoutines []string,
	alertCalls map[domain.AlertLevel][]string,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *EffectDispatcher {
	return &EffectDispatcher{
		automations:   automations,
		caller:        caller,
		publisher:     publisher,
		routines:      routines,
		clearRoutines: clearRoutines,
		alertCalls:    alertCalls,
		logger:        logger,
		metrics:       metrics,
	}
}

// Dispatch fans out the transition's effects. Cancellation of the submitting
// context is not propagated into effects already issued; the process
// tolerates fire-and-forget loss on termination.
func (d *EffectDispatcher) Dispatch(ctx context.Context, t domain.Transition) {
	ctx = context.WithoutCancel(ctx)

	if d.publisher != nil {
		go d.publish(ctx, t)
	}

	if t.New.Active {
		go d.updateSensor(ctx, t.New)
		go d.runRoutines(ctx, d.routines[t.New.Level])
		go d.notify(ctx,
			"Local alert activated: "+t.New.Reason,
			"Forewarned - "+strings.ToUpper(t.New.Level.String())+" Alert",
		)
		for _, destination := range d.alertCalls[t.New.Level] {
			go d.placeCall(ctx, destination, t.New.Level, t.New.Reason)
		}
		return
	}

	go d.updateSensor(ctx, t.New)
	go d.runRoutines(ctx, d.clearRoutines)
	go d.notify(ctx, "All alerts have been cleared", "Forewarned - All Clear")
}

func (d *EffectDispatcher) updateSensor(ctx context.Context, state domain.LocalAlertState) {
	sensorState := "off"
	if state.Active {
		sensorState = "on"
	}
	attributes := map[string]any{
		"friendly_name": "Forewarned Local Alert",
		"alert_level":   state.Level.String(),
		"reason":        state.Reason,
		"triggered_by":  strings.Join(state.TriggeredBy, ", "),
		"timestamp":     state.Timestamp,
	}
	if err := d.automations.SetSensorState(ctx, AlertSensorEntity, sensorState, attributes); err != nil {
		d.metrics.EffectErrors.WithLabelValues("sensor").Inc()
		d.logger.Error("alert sensor update failed", "error", err)
	}
}

// runRoutines invokes each routine by its prefix. Unrecognized prefixes are
// logged and skipped, not fatal.
func (d *EffectDispatcher) runRoutines(ctx context.Context, routines []string) {
	for _, routine := range routines {
		var err error
		switch {
		case strings.HasPrefix(routine, "scene."):
			err = d.automations.ActivateScene(ctx, routine)
		case strings.HasPrefix(routine, "script."):
			err = d.automations.RunScript(ctx, routine)
		default:
			d.logger.Warn("unknown routine type, skipping", "routine", routine)
			continue
		}
		if err != nil {
			d.metrics.EffectErrors.WithLabelValues("routine").Inc()
			d.logger.Error("routine trigger failed", "routine", routine, "error", err)
		}
	}
}

func (d *EffectDispatcher) notify(ctx context.Context, message, title string) {
	if err := d.automations.SendNotification(ctx, message, title); err != nil {
		d.metrics.EffectErrors.WithLabelValues("notification").Inc()
		d.logger.Error("notification failed", "error", err)
	}
}

// placeCall is independent per destination: one destination's failure does
// not block the others.
func (d *EffectDispatcher) placeCall(ctx context.Context, destination string, level domain.AlertLevel, reason string) {
	if d.caller == nil {
		return
	}
	if err := d.caller.PlaceAlertCall(ctx, destination, level, reason); err != nil {
		d.metrics.CallsPlaced.WithLabelValues("failure").Inc()
		d.metrics.EffectErrors.WithLabelValues("call").Inc()
		d.logger.Error("alert call failed", "destination", destination, "error", err)
		return
	}
	d.metrics.CallsPlaced.WithLabelValues("success").Inc()
	d.logger.Info("alert call initiated", "destination", destination, "level", level.String())
}

func (d *EffectDispatcher) publish(ctx context.Context, t domain.Transition) {
	if err := d.publisher.PublishTransition(ctx, t); err != nil {
		d.metrics.EffectErrors.WithLabelValues("publish").Inc()
		d.logger.Error("transition publish failed", "error", err)
		return
	}
	d.metrics.TransitionEvents.Inc()
}
