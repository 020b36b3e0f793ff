// Worker consumes account events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, ACCOUNT_EVENTS_TOPIC, KAFKA_GROUP_ID, and LOKI_URL. The
// server settings are validated by config but otherwise unused here.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"naija-nutri-hub/backend/internal/config"
	"naija-nutri-hub/backend/internal/events"
	"naija-nutri-hub/backend/internal/logging"
	"naija-nutri-hub/backend/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("text", "info").Error("config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogFormat, cfg.LogLevel).With("component", "worker")

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}
	if cfg.LokiURL == "" {
		log.Error("LOKI_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay := events.NewKafkaRelay(brokers, cfg.AccountEventsTopic, cfg.KafkaGroupID, loki.NewClient(cfg.LokiURL), log)
	defer relay.Close()

	log.Info("consuming account events", "topic", cfg.AccountEventsTopic, "group", cfg.KafkaGroupID, "loki", cfg.LokiURL)
	if err := relay.Run(ctx); err != nil {
		log.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	log.Info("stopped")
}
