package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/forewarned/forewarned/internal/domain"
	"github.com/forewarned/forewarned/internal/observability"
)

// EOCSource fetches a fresh EOC snapshot.
type EOCSource interface {
	Fetch(ctx context.Context) (domain.EOCSnapshot, error)
}

// EOCSink receives snapshot pushes; implemented by the engine.
type EOCSink interface {
	SubmitEOCSnapshot(ctx context.Context, snapshot domain.EOCSnapshot)
}

// EOCSensorEntity reflects raw EOC activation, independent of the derived
// local alert level.
const EOCSensorEntity = "binary_sensor.forewarned_eoc_active"

// eocStatePriority orders aggregate reporting when sites disagree; the most
// escalated state wins.
var eocStatePriority = []string{
	domain.EOCStandUp,
	domain.EOCLeanForward,
	domain.EOCAlert,
	domain.EOCStandDown,
	domain.EOCInactive,
}

// NewEOCPoller builds the EOC poll loop: fetch, push into the sink, refresh
// the EOC sensor.
func NewEOCPoller(source EOCSource, sink EOCSink, sensors SensorWriter, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	poll := func(ctx context.Context) error {
		snapshot, err := source.Fetch(ctx)
		if err != nil {
			return err
		}
		sink.SubmitEOCSnapshot(ctx, snapshot)
		updateEOCSensor(ctx, sensors, snapshot, clock, logger)
		return nil
	}
	return New("eoc", interval, poll, clock, logger, metrics)
}

func updateEOCSensor(ctx context.Context, sensors SensorWriter, snapshot domain.EOCSnapshot, clock clockwork.Clock, logger *slog.Logger) {
	if sensors == nil {
		return
	}

	activated := 0
	for _, site := range snapshot {
		if site.Activated {
			activated++
		}
	}

	current := domain.EOCInactive
	for _, candidate := range eocStatePriority {
		found := false
		for _, site := range snapshot {
			if site.State == candidate {
				found = true
				break
			}
		}
		if found {
			current = candidate
			break
		}
	}

	state := "off"
	if activated > 0 {
		state = "on"
	}
	attributes := map[string]any{
		"monitored_sites": len(snapshot),
		"activated_sites": activated,
		"current_state":   current,
		"last_check":      clock.Now(),
	}
	if err := sensors.SetSensorState(ctx, EOCSensorEntity, state, attributes); err != nil {
		logger.Error("eoc sensor update failed", "error", err)
	}
}
