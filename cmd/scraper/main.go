package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/bootstrap"
	"github.com/kirillkom/medlit-rag/internal/config"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
)

func main() {
	term := flag.String("term", "", "PubMed search term")
	maxArticles := flag.Int("max", 50, "maximum number of articles to ingest")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New("scraper", cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, logger)

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Service: "scraper"})
	if err != nil {
		logger.Fatal("bootstrap_failed", zap.Error(err))
	}
	defer app.Close()

	count, err := app.IngestUC.Ingest(ctx, *term, *maxArticles)
	if err != nil {
		logger.Fatal("ingest_failed", zap.String("term", *term), zap.Int("stored", count), zap.Error(err))
	}
	logger.Info("ingest_finished", zap.String("term", *term), zap.Int("stored", count))
}
