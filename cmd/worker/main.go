package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/bootstrap"
	"github.com/kirillkom/medlit-rag/internal/config"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
	"github.com/kirillkom/medlit-rag/internal/observability/metrics"
)

const service = "worker"

func main() {
	reindexAll := flag.Bool("reindex-all", false, "rebuild search documents for every stored article before consuming events")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(service, cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Service:    service,
		Registerer: workerMetrics.Registerer(),
		OnQueueLag: func(lag time.Duration) { workerMetrics.ObserveQueueLag(service, lag) },
	})
	if err != nil {
		logger.Fatal("bootstrap_failed", zap.Error(err))
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if *reindexAll {
		count, err := app.IndexUC.IndexAll(ctx)
		if err != nil {
			logger.Error("reindex_all_failed", zap.Int("indexed", count), zap.Error(err))
		} else {
			logger.Info("reindex_all_finished", zap.Int("indexed", count))
		}
	}

	logger.Info("worker_subscribed", zap.String("subject", cfg.NATSSubject))
	err = app.Queue.SubscribeArticleIndex(ctx, func(handlerCtx context.Context, articleID string) error {
		indexCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()
		indexCtx = logging.WithContext(indexCtx, logger.With(zap.String("article_id", articleID)))

		workerMetrics.StartArticle()
		start := time.Now()
		err := app.IndexUC.IndexByID(indexCtx, articleID)
		workerMetrics.FinishArticle(service, time.Since(start), err)
		return err
	})
	if err != nil {
		logger.Fatal("worker_subscribe_failed", zap.Error(err))
	}
}
