// Command mcp serves the retrieve_passages tool over stdio.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/retrieval-fusion/internal/adapters/mcp"
	"github.com/kirillkom/retrieval-fusion/internal/bootstrap"
	"github.com/kirillkom/retrieval-fusion/internal/config"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
	natsqueue "github.com/kirillkom/retrieval-fusion/internal/infrastructure/queue/nats"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/resilience"
	"github.com/kirillkom/retrieval-fusion/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the protocol
	logger := logging.NewJSONLoggerTo(os.Stderr, cfg.ServiceName+"-mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	retrieval, closeFn, err := retrievalService(cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err, "transport", cfg.MCPTransport)
		os.Exit(1)
	}
	defer closeFn()

	s := mcpadapter.NewServer(cfg.ServiceName, version, mcpadapter.NewTools(retrieval, logger))
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_serve_failed", "error", err)
	}
}

// retrievalService runs the pipeline in process, or forwards to the worker fleet
// when MCP_TRANSPORT=nats.
func retrievalService(cfg config.Config, logger *slog.Logger) (ports.PassageRetrievalService, func(), error) {
	if cfg.MCPTransport == config.TransportNATS {
		bus, err := natsqueue.Connect(cfg.NATSURL, cfg.RetrievalSubject, natsqueue.Options{
			RequestTimeout:     cfg.IndexTimeout + cfg.RerankTimeout,
			ResilienceExecutor: resilience.NewExecutor(cfg.Resilience, resilience.WithLogger(logger)),
			Logger:             logger,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("mcp_using_bus", "subject", cfg.RetrievalSubject)
		return bus, bus.Close, nil
	}

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return app.Retrieval, app.Close, nil
}
