package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"factorflow/config"
	"factorflow/internal/metrics"
	"factorflow/internal/runlog"
	"factorflow/internal/server"
	"factorflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath, "config/config.yml"))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithEnv("APP_ENV").WithFields(logger.Fields{
		"service": cfg.Factorflow.Name,
		"version": cfg.Factorflow.Version,
	}).Info("starting factorflow")

	metrics.InitCloudWatch(cfg.Metrics.CloudWatch, log)

	store, err := runlog.NewStore(cfg.Storage.LogsDir, log)
	if err != nil {
		log.WithError(err).Error("Failed to open run log store")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.NewServer(*cfg, store, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
		if err := <-errCh; err != nil {
			log.WithError(err).Error("server shutdown failed")
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server exited")
			os.Exit(1)
		}
	}

	log.Info("factorflow stopped")
}
