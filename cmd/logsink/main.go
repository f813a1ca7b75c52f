package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/gosight/perfship/internal/config"
	"github.com/gosight/perfship/internal/enricher"
	"github.com/gosight/perfship/internal/handler"
	"github.com/gosight/perfship/internal/metrics"
	"github.com/gosight/perfship/internal/producer"
	"github.com/gosight/perfship/internal/server"
	"github.com/gosight/perfship/internal/streams"
	"github.com/gosight/perfship/internal/validation"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/logsink.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Msg("Starting log sink...")
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := cfg.Sink
	checks := map[string]server.Checker{}

	// Stream heads
	var heads streams.Heads
	switch sink.Heads {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     sink.Redis.Addr,
			Password: sink.Redis.Password,
			DB:       sink.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", sink.Redis.Addr).Msg("Failed to connect to Redis")
		}
		heads = streams.NewRedisHeads(rdb)
		checks["logsink.heads"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	default:
		heads = streams.NewMemoryHeads()
	}
	defer heads.Close()
	log.Info().Str("heads", sink.Heads).Msg("Stream heads initialized")

	var auth handler.Authenticator
	if sink.Auth.Enabled {
		validator, err := validation.NewValidator(ctx, sink)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create validator")
		}
		defer validator.Close()
		auth = validator
		checks["logsink.auth"] = validator.Ping
		log.Info().Msg("Validator initialized")
	}

	var publisher handler.Publisher
	if len(sink.Kafka.Brokers) > 0 {
		kafkaProducer, err := producer.NewKafkaProducer(sink.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Kafka producer")
		}
		defer kafkaProducer.Close()
		publisher = kafkaProducer
		log.Info().Strs("brokers", sink.Kafka.Brokers).Msg("Kafka producer initialized")
	}

	eventEnricher := enricher.NewEnricher(sink.GeoIP.DatabasePath)
	defer eventEnricher.Close()

	// gRPC health service
	grpcServer := grpc.NewServer()
	healthServer := server.NewHealthServer(checks)
	healthServer.Register(grpcServer)
	go healthServer.Run(ctx, 10*time.Second)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sink.Server.GRPCPort))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to listen for gRPC")
		}
		log.Info().Int("port", sink.Server.GRPCPort).Msg("Starting gRPC health server")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to serve gRPC")
		}
	}()

	httpHandler := handler.NewHTTPHandler(heads, auth, publisher, eventEnricher)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", sink.Server.HTTPPort),
		Handler: handler.NewRouter(httpHandler),
	}

	go func() {
		log.Info().Int("port", sink.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down servers...")
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown")
	}
	log.Info().Msg("Servers stopped")
}
