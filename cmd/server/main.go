package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/svc-audio-service/internal/config"
	"github.com/skypro1111/svc-audio-service/internal/engine"
	"github.com/skypro1111/svc-audio-service/internal/logging"
	"github.com/skypro1111/svc-audio-service/internal/media"
	"github.com/skypro1111/svc-audio-service/internal/metrics"
	"github.com/skypro1111/svc-audio-service/internal/pipeline"
	"github.com/skypro1111/svc-audio-service/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "svc-audio-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	modelName := flag.String("mn", "", "Model file to load at startup (overrides engine.model_path)")
	configName := flag.String("cn", "", "Model config to load at startup (overrides engine.config_path)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *modelName != "" {
		cfg.Engine.ModelPath = *modelName
	}
	if *configName != "" {
		cfg.Engine.ConfigPath = *configName
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		slog.String("engine_endpoint", cfg.Engine.Endpoint),
		slog.String("model_path", cfg.Engine.ModelPath),
		slog.String("config_path", cfg.Engine.ConfigPath),
		slog.Float64("threshold_db", cfg.Segmenter.ThresholdDB),
		slog.String("f0_predictor", cfg.Conversion.F0Predictor),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics on a dedicated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	loader, err := engine.NewRemoteLoader(engine.RemoteConfig{
		Endpoint: cfg.Engine.Endpoint,
		Timeout:  cfg.Engine.GetTimeoutDuration(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create engine loader", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handle, err := engine.NewHandle(ctx, loader, cfg.Engine.EngineSpec(), logger)
	if err != nil {
		logger.Error("Failed to load inference engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer handle.Close()

	conv, err := pipeline.New(handle, pipeline.Config{
		ThresholdDB: cfg.Segmenter.ThresholdDB,
		Segmenter:   cfg.Segmenter.SegmenterSettings(),
	}, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	transcoder := media.NewTranscoder(cfg.Media.FFmpegPath, logger)
	if !transcoder.Available() {
		logger.Warn("ffmpeg not found, only WAV input and output will work",
			slog.String("ffmpeg_path", cfg.Media.FFmpegPath),
		)
	}

	httpServer := server.NewHTTPServer(cfg, conv, handle, transcoder, logger, appMetrics, registry)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// In-flight conversions may take a while; give them the write timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetWriteTimeoutDuration()+10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	info := handle.Info()
	logger.Info("Final engine state",
		slog.String("model_path", info.ModelPath),
		slog.Uint64("swaps", info.Swaps),
	)

	logger.Info("Service stopped")
}
