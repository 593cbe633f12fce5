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
	"github.com/sensor-gateway/gateway-monitor/internal/coordinator"
	"github.com/sensor-gateway/gateway-monitor/internal/events"
	"github.com/sensor-gateway/gateway-monitor/internal/remote"
	"github.com/sensor-gateway/gateway-monitor/internal/scan"
)

func main() {
	var configPath = flag.String("config", "config/scan-coordinator.yml", "path to config file")
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

	if cfg.Remote.BaseURL == "" {
		log.Fatal().Msg("remote base_url not configured")
	}

	log.Info().
		Str("config_path", *configPath).
		Str("remote", cfg.Remote.BaseURL).
		Dur("min_scan_interval", cfg.Coordinator.MinScanInterval).
		Dur("max_scan_interval", cfg.Coordinator.MaxScanInterval).
		Msg("Scan coordinator starting")

	fetcher := remote.NewClient(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		RequestTimeout: cfg.Remote.RequestTimeout,
		RetryCount:     cfg.Remote.RetryCount,
		RetryDelay:     cfg.Remote.RetryDelay,
		CacheTTL:       cfg.Remote.CacheTTL,
	})

	var invoker scan.Invoker
	if cfg.Scan.URL != "" {
		invoker = scan.NewHTTPInvoker(cfg.Scan.URL, cfg.Scan.Timeout)
	} else {
		invoker = &scan.CommandInvoker{Command: cfg.Scan.Command}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := coordinator.NewMetrics(reg)

	opts := []coordinator.Option{coordinator.WithMetrics(metrics)}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		opts = append(opts, coordinator.WithEventSink(events.NewPublisher(nc)))
	}

	coord, err := coordinator.New(
		coordinator.FromFileConfig(cfg.Coordinator, cfg.Scan, cfg.Remote),
		fetcher, invoker, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid coordinator configuration")
	}

	coord.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := api.NewCoordinatorServer(coord, reg)

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

	coord.Stop()
	log.Info().Msg("Scan coordinator stopped")
}
