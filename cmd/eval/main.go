package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kirillkom/medlit-rag/internal/bootstrap"
	"github.com/kirillkom/medlit-rag/internal/config"
	"github.com/kirillkom/medlit-rag/internal/core/domain"
	"github.com/kirillkom/medlit-rag/internal/evaluation"
	"github.com/kirillkom/medlit-rag/internal/observability/logging"
)

const usage = `usage:
  eval run -sweep sweep.yaml
  eval add -query "..." -expected "..."`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New("eval", cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, logger)

	switch os.Args[1] {
	case "run":
		err = runSweep(ctx, cfg, logger, os.Args[2:])
	case "add":
		err = addRecord(ctx, cfg, logger, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("eval_failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

func runSweep(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	sweepPath := fs.String("sweep", "sweep.yaml", "path to the sweep definition")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sweep, err := evaluation.LoadSweep(*sweepPath)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Service: "eval"})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	harness := evaluation.NewHarness(app.QueryUC, app.Chat, app.Benchmark, app.Results)
	reports, err := harness.Run(ctx, sweep)
	for _, report := range reports {
		fmt.Printf("%s\tretrieval=%.3f\tgeneration=%.3f\n",
			report.Artifact, report.Result.ScoreRetrieval, report.Result.ScoreGeneration)
	}
	return err
}

func addRecord(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	query := fs.String("query", "", "benchmark question")
	expected := fs.String("expected", "", "abstract that answers the question")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Service: "eval"})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	if err := app.Benchmark.Append(ctx, domain.EvaluationRecord{Query: *query, ExpectedAbstract: *expected}); err != nil {
		return err
	}
	logger.Info("benchmark_record_added", zap.String("query", *query))
	return nil
}
