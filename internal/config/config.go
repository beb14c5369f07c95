package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Feed polling.
	WeatherFeedURL      string
	WeatherPollInterval time.Duration
	EOCURLs             []string
	EOCPollInterval     time.Duration
	FetchTimeout        time.Duration
	LocationKeywords    []string

	// Alert rule table. Empty means the built-in default table.
	RulesFile string

	// Home Assistant API.
	HABaseURL string
	HAToken   string

	// Per-level automation routine lists plus the all-clear list.
	// Entries are scene.* / script.* identifiers.
	Routines      map[string][]string
	ClearRoutines []string

	// MQTT override switch registry configuration.
	MQTTEnabled        bool
	MQTTBroker         string
	MQTTUsername       string
	MQTTPassword       string
	MQTTClientID       string
	MQTTConnectTimeout time.Duration

	// Outbound voice call configuration.
	VOIPEnabled       bool
	VOIPBackend       string // "webhook" or "ha_notify"
	VOIPWebhookURL    string
	VOIPWebhookMethod string
	VOIPAuthType      string // "none", "basic", or "bearer"
	VOIPAuthUsername  string
	VOIPAuthPassword  string
	VOIPAuthToken     string
	VOIPNotifyService string
	VOIPTimeout       time.Duration

	// Per-level call destination lists.
	AlertCalls map[string][]string

	// Optional transition event stream.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// defaultLocationKeywords identify warnings relevant to the monitored area
// when the feed does not scope them itself.
var defaultLocationKeywords = []string{
	"townsville",
	"herbert and lower burdekin",
	"upper flinders",
	"north tropical coast",
	"northern goldfields",
	"townsville waters",
	"palm island",
	"magnetic island",
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	weatherInterval, err := parseDuration("WEATHER_POLL_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	eocInterval, err := parseDuration("EOC_POLL_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	mqttConnectTimeout, err := parseDuration("MQTT_CONNECT_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	voipTimeout, err := parseDuration("VOIP_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	keywords := parseList(os.Getenv("LOCATION_KEYWORDS"))
	if len(keywords) == 0 {
		keywords = defaultLocationKeywords
	}

	mqttBroker := os.Getenv("MQTT_BROKER")
	mqttEnabled := mqttBroker != ""
	if v := os.Getenv("MQTT_ENABLED"); v != "" {
		mqttEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		WeatherFeedURL:      os.Getenv("WEATHER_FEED_URL"),
		WeatherPollInterval: weatherInterval,
		EOCURLs:             parseList(os.Getenv("EOC_URLS")),
		EOCPollInterval:     eocInterval,
		FetchTimeout:        fetchTimeout,
		LocationKeywords:    keywords,

		RulesFile: os.Getenv("RULES_FILE"),

		HABaseURL: envOrDefault("HA_BASE_URL", "http://supervisor/core/api"),
		HAToken:   firstEnv("HA_TOKEN", "SUPERVISOR_TOKEN"),

		Routines: map[string][]string{
			"advisory":  parseList(os.Getenv("ROUTINES_ADVISORY")),
			"watch":     parseList(os.Getenv("ROUTINES_WATCH")),
			"warning":   parseList(os.Getenv("ROUTINES_WARNING")),
			"emergency": parseList(os.Getenv("ROUTINES_EMERGENCY")),
		},
		ClearRoutines: parseList(os.Getenv("ROUTINES_CLEARED")),

		MQTTEnabled:        mqttEnabled,
		MQTTBroker:         mqttBroker,
		MQTTUsername:       os.Getenv("MQTT_USERNAME"),
		MQTTPassword:       os.Getenv("MQTT_PASSWORD"),
		MQTTClientID:       envOrDefault("MQTT_CLIENT_ID", "forewarned"),
		MQTTConnectTimeout: mqttConnectTimeout,

		VOIPEnabled:       os.Getenv("VOIP_ENABLED") == "true",
		VOIPBackend:       envOrDefault("VOIP_BACKEND", "webhook"),
		VOIPWebhookURL:    os.Getenv("VOIP_WEBHOOK_URL"),
		VOIPWebhookMethod: envOrDefault("VOIP_WEBHOOK_METHOD", "POST"),
		VOIPAuthType:      envOrDefault("VOIP_AUTH_TYPE", "none"),
		VOIPAuthUsername:  os.Getenv("VOIP_AUTH_USERNAME"),
		VOIPAuthPassword:  os.Getenv("VOIP_AUTH_PASSWORD"),
		VOIPAuthToken:     os.Getenv("VOIP_AUTH_TOKEN"),
		VOIPNotifyService: envOrDefault("VOIP_NOTIFY_SERVICE", "notify.voip_phone"),
		VOIPTimeout:       voipTimeout,

		AlertCalls: map[string][]string{
			"advisory":  parseList(os.Getenv("VOIP_CALLS_ADVISORY")),
			"watch":     parseList(os.Getenv("VOIP_CALLS_WATCH")),
			"warning":   parseList(os.Getenv("VOIP_CALLS_WARNING")),
			"emergency": parseList(os.Getenv("VOIP_CALLS_EMERGENCY")),
		},

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "local-alert-transitions"),
	}

	if cfg.MQTTEnabled && cfg.MQTTBroker == "" {
		return nil, errors.New("MQTT_ENABLED is true but MQTT_BROKER is not set")
	}
	if cfg.VOIPEnabled {
		switch cfg.VOIPBackend {
		case "webhook":
			if cfg.VOIPWebhookURL == "" {
				return nil, errors.New("VOIP_BACKEND is webhook but VOIP_WEBHOOK_URL is not set")
			}
		case "ha_notify":
		default:
			return nil, fmt.Errorf("unknown VOIP_BACKEND %q", cfg.VOIPBackend)
		}
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// parseList splits a comma-separated value, trimming whitespace and dropping
// empty entries.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
