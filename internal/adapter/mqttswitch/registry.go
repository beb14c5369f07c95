// Package mqttswitch exposes the manual override switches to Home Assistant
// over MQTT discovery and tracks the commanded state of each switch.
package mqttswitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/forewarned/forewarned/internal/domain"
	"github.com/forewarned/forewarned/internal/observability"
)

// Topic layout: homeassistant/switch/forewarned/<switch_id>/{config,set,state}.
const topicPrefix = "homeassistant/switch/forewarned/"

// switchIDs maps alert levels to their override switch identifiers.
var switchIDs = map[domain.AlertLevel]string{
	domain.LevelAdvisory:  "manual_advisory",
	domain.LevelWatch:     "manual_watch",
	domain.LevelWarning:   "manual_warning",
	domain.LevelEmergency: "manual_emergency",
}

var switchNames = map[string]string{
	"manual_advisory":  "Forewarned Manual Advisory",
	"manual_watch":     "Forewarned Manual Watch",
	"manual_warning":   "Forewarned Manual Warning",
	"manual_emergency": "Forewarned Manual Emergency",
}

// ErrNotConnected is returned by Active while the broker connection is down.
var ErrNotConnected = errors.New("mqttswitch: not connected to broker")

// Config holds broker connection settings.
type Config struct {
	Broker         string // e.g. "tcp://core-mosquitto:1883"
	Username       string
	Password       string
	ClientID       string
	ConnectTimeout time.Duration
}

// Registry publishes discovery configs for the override switches,
// subscribes to their command topics, and caches the commanded states.
// It implements the engine's OverrideSource.
type Registry struct {
	client   pahomqtt.Client
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	onChange func(switchID string, on bool)

	mu     sync.RWMutex
	states map[string]bool
}

// NewRegistry creates a Registry. onChange is invoked after a switch command
// updates the cached state; pass nil to ignore changes.
func NewRegistry(cfg Config, onChange func(switchID string, on bool), logger *slog.Logger, metrics *observability.Metrics) *Registry {
	r := &Registry{
		timeout:  cfg.ConnectTimeout,
		logger:   logger,
		metrics:  metrics,
		onChange: onChange,
		states:   make(map[string]bool, len(switchIDs)),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		r.logger.Info("mqtt broker connected")
		r.subscribeAndAnnounce(c)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		r.logger.Warn("mqtt broker connection lost", "error", err)
	})

	r.client = pahomqtt.NewClient(opts)
	return r
}

// Open connects to the broker, waiting at most the configured connect
// timeout before giving up. Discovery publication and command subscriptions
// happen from the on-connect handler, so they also survive reconnects.
func (r *Registry) Open() error {
	token := r.client.Connect()
	if !token.WaitTimeout(r.timeout) {
		return fmt.Errorf("mqttswitch: connect timed out after %s", r.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttswitch: connect: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (r *Registry) Close() {
	r.client.Disconnect(250)
	r.logger.Info("mqtt broker disconnected")
}

// Active reports the cached commanded state of the level's override switch.
func (r *Registry) Active(_ context.Context, level domain.AlertLevel) (bool, error) {
	id, ok := switchIDs[level]
	if !ok {
		return false, nil
	}
	if !r.client.IsConnectionOpen() {
		return false, ErrNotConnected
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[id], nil
}

func (r *Registry) subscribeAndAnnounce(c pahomqtt.Client) {
	for _, id := range switchIDs {
		if err := r.publishDiscovery(c, id); err != nil {
			r.logger.Error("discovery publish failed", "switch", id, "error", err)
			continue
		}
		commandTopic := topicPrefix + id + "/set"
		token := c.Subscribe(commandTopic, 1, r.handleCommand)
		if token.WaitTimeout(r.timeout) && token.Error() == nil {
			continue
		}
		r.logger.Error("command subscribe failed", "topic", commandTopic, "error", token.Error())
	}
}

// publishDiscovery announces one switch to Home Assistant and seeds its
// retained state.
func (r *Registry) publishDiscovery(c pahomqtt.Client, switchID string) error {
	payload, err := json.Marshal(map[string]any{
		"name":          switchNames[switchID],
		"unique_id":     "forewarned_" + switchID,
		"command_topic": topicPrefix + switchID + "/set",
		"state_topic":   topicPrefix + switchID + "/state",
		"payload_on":    "ON",
		"payload_off":   "OFF",
		"state_on":      "ON",
		"state_off":     "OFF",
		"icon":          "mdi:alert",
		"device": map[string]any{
			"identifiers":  []string{"forewarned"},
			"name":         "Forewarned",
			"model":        "Weather & EOC Alert System",
			"manufacturer": "Forewarned",
		},
	})
	if err != nil {
		return err
	}

	token := c.Publish(topicPrefix+switchID+"/config", 1, true, payload)
	if !token.WaitTimeout(r.timeout) {
		return fmt.Errorf("discovery publish timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, seen := r.states[switchID]; !seen {
		r.states[switchID] = false
		c.Publish(topicPrefix+switchID+"/state", 1, true, "OFF")
	}
	r.mu.Unlock()
	return nil
}

// handleCommand processes a switch command, confirms the new state on the
// retained state topic, and fires the change callback.
func (r *Registry) handleCommand(c pahomqtt.Client, msg pahomqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) < 5 || parts[4] != "set" {
		return
	}
	switchID := parts[3]
	if _, known := switchNames[switchID]; !known {
		r.logger.Warn("command for unknown switch", "switch", switchID)
		return
	}

	on := strings.EqualFold(string(msg.Payload()), "ON")

	r.mu.Lock()
	r.states[switchID] = on
	r.mu.Unlock()

	payload := "OFF"
	if on {
		payload = "ON"
	}
	c.Publish(topicPrefix+switchID+"/state", 1, true, payload)

	r.metrics.SwitchCommands.Inc()
	r.logger.Info("override switch commanded", "switch", switchID, "on", on)

	if r.onChange != nil {
		r.onChange(switchID, on)
	}
}
