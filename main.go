package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pricelab/apps"
	"pricelab/config"
	"pricelab/db"
	qhttp "pricelab/http"
	"pricelab/logger"
	"pricelab/monitoring"
	"pricelab/serving"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync()

	// 2. Open the audit store
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	log.Info("database ready", zap.String("path", cfg.Database.Path))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Event feed and metrics
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(log, metrics)
	go hub.Run(ctx)

	// 4. Load every trained model and follow re-runs of the trainer
	svc := serving.NewService(apps.All(cfg), serving.Options{
		ModelDir:  cfg.Models.Dir,
		CacheSize: cfg.Cache.Size,
		Logger:    log,
		Metrics:   metrics,
		Publisher: hub,
	})
	svc.LoadAll()
	if cfg.WatchEnabled() {
		go func() {
			if err := svc.Watch(ctx); err != nil {
				log.Error("model watcher stopped", zap.Error(err))
			}
		}()
	}

	// 5. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:    cfg.HTTP.Port,
		Timeout: cfg.Timeout(),
	}, qhttp.Deps{
		Service:    svc,
		Store:      store,
		Hub:        hub,
		Metrics:    metrics,
		Logger:     log,
		DatasetDir: cfg.Dataset.Dir,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	<-hub.Done()

	log.Info("exiting")
	return serveErr
}
