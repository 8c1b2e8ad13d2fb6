package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"flowline/internal/config"
	"flowline/internal/daemon"
	"flowline/internal/logging"
	"flowline/internal/runstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := runstore.Open(cfg)
	if err != nil {
		logger.Error("open run store", logging.Error(err))
		return
	}

	registry, warehouse, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("register step processors", logging.Error(err))
		_ = store.Close()
		return
	}
	if warehouse != nil {
		defer warehouse.Close()
	}

	d, err := daemon.New(cfg, store, registry, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("flowlined shutting down")
}
