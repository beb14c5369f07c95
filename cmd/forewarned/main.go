package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/forewarned/forewarned/internal/adapter/eocfeed"
	"github.com/forewarned/forewarned/internal/adapter/homeassistant"
	"github.com/forewarned/forewarned/internal/adapter/httpapi"
	kafkaadapter "github.com/forewarned/forewarned/internal/adapter/kafka"
	"github.com/forewarned/forewarned/internal/adapter/mqttswitch"
	"github.com/forewarned/forewarned/internal/adapter/voip"
	"github.com/forewarned/forewarned/internal/adapter/weatherfeed"
	"github.com/forewarned/forewarned/internal/config"
	"github.com/forewarned/forewarned/internal/domain"
	"github.com/forewarned/forewarned/internal/engine"
	"github.com/forewarned/forewarned/internal/observability"
	"github.com/forewarned/forewarned/internal/poller"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	table, err := loadLevelTable(cfg, logger)
	if err != nil {
		logger.Error("failed to load level table", "error", err)
		os.Exit(1)
	}

	haClient := homeassistant.NewClient(cfg.HABaseURL, cfg.HAToken, cfg.FetchTimeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Override source: MQTT switch registry when a broker is configured,
	// otherwise REST input_boolean lookups.
	var eng *engine.Engine
	var overrides engine.OverrideSource
	var registry *mqttswitch.Registry
	if cfg.MQTTEnabled {
		registry = mqttswitch.NewRegistry(mqttswitch.Config{
			Broker:         cfg.MQTTBroker,
			Username:       cfg.MQTTUsername,
			Password:       cfg.MQTTPassword,
			ClientID:       cfg.MQTTClientID,
			ConnectTimeout: cfg.MQTTConnectTimeout,
		}, func(switchID string, on bool) {
			if eng != nil {
				eng.Reevaluate(ctx)
			}
		}, logger, metrics)
		overrides = registry
		logger.Info("manual overrides via mqtt", "broker", cfg.MQTTBroker)
	} else {
		overrides = homeassistant.NewOverrideSource(haClient)
		logger.Info("manual overrides via rest entity lookups")
	}

	// Call transport, if configured.
	var caller engine.Caller
	if cfg.VOIPEnabled {
		switch cfg.VOIPBackend {
		case "ha_notify":
			caller = voip.NewNotifyCaller(haClient, cfg.VOIPNotifyService, logger)
		default:
			caller = voip.NewWebhookCaller(voip.WebhookConfig{
				URL:      cfg.VOIPWebhookURL,
				Method:   cfg.VOIPWebhookMethod,
				AuthType: cfg.VOIPAuthType,
				Username: cfg.VOIPAuthUsername,
				Password: cfg.VOIPAuthPassword,
				Token:    cfg.VOIPAuthToken,
				Timeout:  cfg.VOIPTimeout,
			}, logger)
		}
		logger.Info("voip integration enabled", "backend", cfg.VOIPBackend)
	}

	// Transition event stream, if configured.
	var publisher engine.TransitionPublisher
	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = kafkaWriter
		logger.Info("transition event stream enabled", "topic", cfg.KafkaTopic)
	}

	dispatcher := engine.NewEffectDispatcher(
		haClient,
		caller,
		publisher,
		levelLists(cfg.Routines, logger),
		cfg.ClearRoutines,
		levelLists(cfg.AlertCalls, logger),
		logger,
		metrics,
	)

	eng, err = engine.New(table, overrides, dispatcher, clock, logger, metrics)
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}
	metrics.EngineRunning.Set(1)
	defer metrics.EngineRunning.Set(0)

	if registry != nil {
		if err := registry.Open(); err != nil {
			// Auto-reconnect keeps trying in the background.
			logger.Error("mqtt connect failed", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, eng, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if cfg.WeatherFeedURL != "" {
		feed := weatherfeed.NewClient(cfg.WeatherFeedURL, cfg.LocationKeywords, cfg.FetchTimeout, logger)
		p := poller.NewWeatherPoller(feed, eng, haClient, cfg.WeatherPollInterval, clock, logger, metrics)
		go p.Run(ctx) //nolint:errcheck // Run only returns nil
	} else {
		logger.Warn("WEATHER_FEED_URL not set, weather monitoring disabled")
	}

	if len(cfg.EOCURLs) > 0 {
		sites := eocfeed.NewClient(cfg.EOCURLs, cfg.FetchTimeout, clock, logger)
		p := poller.NewEOCPoller(sites, eng, haClient, cfg.EOCPollInterval, clock, logger, metrics)
		go p.Run(ctx) //nolint:errcheck // Run only returns nil
	} else {
		logger.Warn("EOC_URLS not set, EOC monitoring disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if registry != nil {
		registry.Close()
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// loadLevelTable reads the configured rules file, or falls back to the
// built-in default table.
func loadLevelTable(cfg *config.Config, logger *slog.Logger) (domain.LevelTable, error) {
	if cfg.RulesFile == "" {
		logger.Info("using built-in alert rules")
		return domain.DefaultLevelTable(), nil
	}
	data, err := os.ReadFile(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	table, err := domain.ParseLevelTable(data)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded alert rules", "path", cfg.RulesFile, "levels", len(table))
	return table, nil
}

// levelLists converts config lists keyed by level name into level-keyed
// maps, dropping unknown level names.
func levelLists(byName map[string][]string, logger *slog.Logger) map[domain.AlertLevel][]string {
	out := make(map[domain.AlertLevel][]string, len(byName))
	for name, list := range byName {
		if len(list) == 0 {
			continue
		}
		level, err := domain.ParseAlertLevel(name)
		if err != nil || level == domain.LevelNone {
			logger.Warn("ignoring list for unknown level", "level", name)
			continue
		}
		out[level] = list
	}
	return out
}
