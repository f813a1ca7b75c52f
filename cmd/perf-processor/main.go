package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/perfship/internal/config"
	"github.com/gosight/perfship/internal/consumer"
	"github.com/gosight/perfship/internal/metrics"
	"github.com/gosight/perfship/internal/processor"
	"github.com/gosight/perfship/internal/storage"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/processor.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	pc := cfg.Processor
	log.Info().
		Strs("kafka_brokers", pc.Kafka.Brokers).
		Str("clickhouse_addr", pc.ClickHouse.Addr).
		Int("batch_size", pc.Batch.Size).
		Dur("flush_interval", pc.Batch.FlushInterval).
		Msg("Configuration loaded")

	metrics.Init()

	// Initialize ClickHouse
	ch, err := storage.NewClickHouse(pc.ClickHouse)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
	}
	defer ch.Close()
	if err := ch.EnsureSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to create performance_events table")
	}
	log.Info().Msg("Connected to ClickHouse")

	perfProcessor := processor.NewPerformanceProcessor(ch, pc.Batch)

	kafkaConsumer, err := consumer.NewKafkaConsumer(pc.Kafka, perfProcessor)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go kafkaConsumer.Start(ctx)

	log.Info().Msg("Performance processor started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()
	if err := kafkaConsumer.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Kafka consumer")
	}
	perfProcessor.Stop()

	log.Info().Msg("Shutdown complete")
}
