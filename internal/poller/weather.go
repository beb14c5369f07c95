package poller

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/forewarned/forewarned/internal/domain"
	"github.com/forewarned/forewarned/internal/observability"
)

// WeatherSource fetches a fresh weather snapshot.
type WeatherSource interface {
	Fetch(ctx context.Context) (domain.WeatherSnapshot, error)
}

// WeatherSink receives snapshot pushes; implemented by the engine.
type WeatherSink interface {
	SubmitWeatherSnapshot(ctx context.Context, snapshot domain.WeatherSnapshot)
}

// SensorWriter updates a status sensor on the automation platform; sensor
// write failures are logged and never fail a poll. May be nil.
type SensorWriter interface {
	SetSensorState(ctx context.Context, entityID, state string, attributes map[string]any) error
}

// WeatherSensorEntity reflects the raw weather-alert count, independent of
// the derived local alert level.
const WeatherSensorEntity = "binary_sensor.forewarned_weather_alert"

// NewWeatherPoller builds the weather poll loop: fetch, push into the sink,
// refresh the weather sensor.
func NewWeatherPoller(source WeatherSource, sink WeatherSink, sensors SensorWriter, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	poll := func(ctx context.Context) error {
		snapshot, err := source.Fetch(ctx)
		if err != nil {
			return err
		}
		sink.SubmitWeatherSnapshot(ctx, snapshot)
		updateWeatherSensor(ctx, sensors, snapshot, clock, logger)
		return nil
	}
	return New("weather", interval, poll, clock, logger, metrics)
}

func updateWeatherSensor(ctx context.Context, sensors SensorWriter, snapshot domain.WeatherSnapshot, clock clockwork.Clock, logger *slog.Logger) {
	if sensors == nil {
		return
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	alerts := make([]domain.WeatherAlert, 0, len(ids))
	for _, id := range ids {
		alerts = append(alerts, snapshot[id])
	}

	state := "off"
	if len(alerts) > 0 {
		state = "on"
	}
	attributes := map[string]any{
		"alert_count": len(alerts),
		"alerts":      alerts,
		"last_check":  clock.Now(),
	}
	if err := sensors.SetSensorState(ctx, WeatherSensorEntity, state, attributes); err != nil {
		logger.Error("weather sensor update failed", "error", err)
	}
}
