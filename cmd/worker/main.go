package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hokuto-sato/lawsearch/internal/bootstrap"
	"github.com/hokuto-sato/lawsearch/internal/config"
	"github.com/hokuto-sato/lawsearch/internal/observability/logging"
	"github.com/hokuto-sato/lawsearch/internal/observability/metrics"
)

const serviceName = "lawsearch-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeLawFetched(ctx, func(handlerCtx context.Context, lawID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		// UpdatedAt was stamped when the fetch event was enqueued, so the
		// gap to now is the time the law sat on the queue.
		if law, lagErr := app.Repo.GetByID(processCtx, lawID); lagErr == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(law.UpdatedAt))
		}

		workerMetrics.StartLaw()
		start := time.Now()
		indexed, processErr := app.IngestUC.ProcessByID(processCtx, lawID)
		workerMetrics.FinishLaw(serviceName, time.Since(start), processErr)
		workerMetrics.AddIndexedArticles(serviceName, indexed)

		if processErr != nil {
			logger.Error("law_processing_failed", "law_id", lawID, "error", processErr)
		}
		return processErr
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
