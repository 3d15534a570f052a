package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/QTest-hq/qroute/internal/api"
	"github.com/QTest-hq/qroute/internal/config"
	"github.com/QTest-hq/qroute/internal/dispatch"
	"github.com/QTest-hq/qroute/internal/telemetry"
	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logging and tracing
	tel, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName:     "qroute-api",
		ServiceVersion:  version,
		Environment:     cfg.Env,
		JSONLogs:        cfg.IsProduction(),
		LogLevel:        cfg.LogLevel,
		OTLPEndpoint:    cfg.Telemetry.OTLPEndpoint,
		TracingEnabled:  cfg.Telemetry.TracingEnabled,
		TracingSampling: cfg.Telemetry.SamplingRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup telemetry")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Create dispatch client
	client, err := dispatch.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dispatch client")
	}

	// Create server
	srv, err := api.NewServer(cfg, client)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	// Start server; no write timeout so streamed generations are not cut off
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("could not gracefully shutdown the server")
		}
		if err := tel.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("could not flush traces")
		}
		close(done)
	}()

	log.Info().
		Int("port", cfg.Port).
		Int("providers", len(client.Providers())).
		Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}
