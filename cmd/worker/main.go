package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/retrieval-fusion/internal/bootstrap"
	"github.com/kirillkom/retrieval-fusion/internal/config"
	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/queue/nats"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/resilience"
	"github.com/kirillkom/retrieval-fusion/internal/observability/logging"
	"github.com/kirillkom/retrieval-fusion/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	service := cfg.ServiceName + "-worker"
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(cfg.ServiceName)
	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithLogger(logger),
		bootstrap.WithObserver(workerMetrics.Pipeline()),
	)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	bus, err := nats.Connect(cfg.NATSURL, cfg.RetrievalSubject, nats.Options{
		RequestTimeout:     cfg.IndexTimeout + cfg.RerankTimeout,
		ResilienceExecutor: resilience.NewExecutor(cfg.Resilience, resilience.WithLogger(logger)),
		Logger:             logger,
	})
	if err != nil {
		logger.Error("nats_connect_failed", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	err = bus.Serve(ctx, func(ctx context.Context, question string, overrides domain.Overrides) (*domain.RetrievalResult, error) {
		started := time.Now()
		workerMetrics.StartRequest()
		result, err := app.Retrieval.Retrieve(ctx, question, overrides)
		workerMetrics.FinishRequest(cfg.ServiceName, time.Since(started), err)
		return result, err
	})
	if err != nil {
		logger.Error("worker_serve_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
