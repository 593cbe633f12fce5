package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sensor-gateway/gateway-monitor/internal/api"
	"github.com/sensor-gateway/gateway-monitor/internal/config"
	"github.com/sensor-gateway/gateway-monitor/internal/events"
	"github.com/sensor-gateway/gateway-monitor/internal/ingest"
	"github.com/sensor-gateway/gateway-monitor/internal/models"
	"github.com/sensor-gateway/gateway-monitor/internal/scan"
	"github.com/sensor-gateway/gateway-monitor/internal/storage"
)

func main() {
	var configPath = flag.String("config", "config/gateway-agent.yml", "path to config file")
	var validateOnly = flag.Bool("validate", false, "validate config and exit")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if *validateOnly {
		fmt.Println("config OK")
		return
	}

	log.Info().
		Str("config_path", *configPath).
		Str("db_path", cfg.Database.Path).
		Msg("Gateway agent starting")

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open gateway database")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MQTT.BrokerURL != "" {
		consumer := ingest.NewConsumer(ingest.Config{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			Topic:          cfg.MQTT.Topic,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, store)
		if err := consumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start telemetry ingest")
		}
	} else {
		log.Warn().Msg("MQTT broker not configured, telemetry ingest disabled")
	}

	invoker := &scan.CommandInvoker{Command: cfg.Scan.Command}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		sub, err := events.SubscribeScanRequests(nc, func(req models.ScanRequest) {
			runRequestedScan(store, invoker, req, cfg.Scan.Timeout)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to subscribe to scan requests")
		}
		defer sub.Unsubscribe()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := api.NewGatewayServer(store, invoker, reg)

	go func() {
		if err := server.ListenAndServe(cfg.API.Addr()); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("REST API server failed")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("REST API shutdown failed")
	}

	cancel()
	log.Info().Msg("Gateway agent stopped")
}

// runRequestedScan handles one scan request arriving over NATS
func runRequestedScan(store storage.Store, invoker scan.Invoker, req models.ScanRequest, timeout time.Duration) {
	reason := req.Reason
	if reason == "" {
		reason = models.ReasonManual
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := invoker.Invoke(ctx)
	duration := time.Since(start)

	record := models.ScanRecord{
		Status:     models.ScanStatusOK,
		Reason:     reason,
		Identifier: req.Identifier,
		StartedAt:  start,
		Duration:   duration,
	}
	if err != nil {
		record.Status = models.ScanStatusFailed
		record.Error = err.Error()
		log.Warn().Err(err).Str("reason", string(reason)).Msg("Requested scan failed")
	} else {
		log.Info().Dur("duration", duration).Str("reason", string(reason)).Msg("Requested scan completed")
	}

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	if err := store.RecordScan(saveCtx, &record); err != nil {
		log.Error().Err(err).Msg("Failed to record scan")
	}
}
