package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"nfce/internal/categorize"
	"nfce/internal/config"
	"nfce/internal/listener"
	"nfce/internal/logger"
	"nfce/internal/pipeline"
	"nfce/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(logger.Init(cfg.LogLevel))
	defer logger.Sync()
	log := logger.Get()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var categorizer *categorize.Categorizer
	if cfg.MailListenerCategorize {
		seed, err := categorize.SeedFrom(cfg.CategorySeedPath)
		must(err)
		categorizer = categorize.New(log)
		categorizer.BuildAsync(seed)
		must(categorizer.WaitReady(ctx))
	}

	ingest, err := pipeline.NewServiceFromConfig(cfg, categorizer, log)
	must(err)
	processor := pipeline.NewMailProcessor(ingest, db, pipeline.Options{Categorize: cfg.MailListenerCategorize}, log)

	log.Info("mail listener started",
		zap.String("provider", cfg.MailListenerProvider),
		zap.String("label", cfg.MailListenerLabel),
		zap.Int("interval_sec", cfg.MailListenerIntervalSec))
	must(listener.NewService(cfg, processor, db, log).Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
