package homeassistant

import (
	"context"

	"github.com/forewarned/forewarned/internal/domain"
)

// overrideEntities maps each alert level to its manual override switch
// entity.
var overrideEntities = map[domain.AlertLevel]string{
	domain.LevelAdvisory:  "input_boolean.forewarned_manual_advisory",
	domain.LevelWatch:     "input_boolean.forewarned_manual_watch",
	domain.LevelWarning:   "input_boolean.forewarned_manual_warning",
	domain.LevelEmergency: "input_boolean.forewarned_manual_emergency",
}

// OverrideSource reads manual override switches as input_boolean entities
// over the REST API. Used when MQTT discovery is not configured.
type OverrideSource struct {
	client *Client
}

// NewOverrideSource wraps a client as an engine override source.
func NewOverrideSource(client *Client) *OverrideSource {
	return &OverrideSource{client: client}
}

// Active reports whether the level's override switch is on. A lookup error
// is returned for the engine to treat as "off".
func (o *OverrideSource) Active(ctx context.Context, level domain.AlertLevel) (bool, error) {
	entityID, ok := overrideEntities[level]
	if !ok {
		return false, nil
	}
	state, err := o.client.GetState(ctx, entityID)
	if err != nil {
		return false, err
	}
	return state.State == "on", nil
}
