package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/retrieval-fusion/internal/config"
	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
	"github.com/kirillkom/retrieval-fusion/internal/core/usecase"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/chunking"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/embedding/sentence"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/index"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/index/memory"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/index/postgres"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/rerank/crossencoder"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/rerank/lexical"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/resilience"
	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config  config.Config
	Routing config.Routing

	Registry  *index.Registry
	Retrieval *usecase.RetrievalUseCase
	Inspector *usecase.Inspector

	closers []func()
}

type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer ports.PipelineObserver
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver routes pipeline measurements to observer, usually the process metrics.
func WithObserver(observer ports.PipelineObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// New builds every index and collaborator once. Indices are read-only afterwards.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	routing, err := config.LoadRouting(cfg.RoutingPath)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Routing: routing}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	executor := resilience.NewExecutor(cfg.Resilience, resilience.WithLogger(o.logger))
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))

	embedder, err := app.buildEmbedder(cfg, ollamaClient)
	if err != nil {
		return nil, err
	}

	registry, err := app.buildRegistry(ctx, cfg, routing, embedder, executor, o.logger)
	if err != nil {
		return nil, err
	}
	app.Registry = registry

	encoder, err := app.buildEncoder(cfg, executor, o.logger)
	if err != nil {
		return nil, err
	}

	var classifier ports.IntentClassifier
	switch cfg.IntentClassifier {
	case usecase.ClassifierLLM:
		classifier = usecase.NewLLMClassifier(
			ollama.NewCompleter(ollamaClient),
			routing.Domains,
			usecase.WithRateLimit(cfg.IntentLLMRate, cfg.IntentLLMBurst),
			usecase.WithCallTimeout(cfg.IntentLLMTimeout),
			usecase.WithClassifierLogger(o.logger),
		)
	default:
		classifier = usecase.NewKeywordClassifier(routing.Domains)
	}
	router := usecase.NewIntentRouter(routing.Table(), classifier, o.logger)

	ucOpts := []usecase.RetrievalOption{usecase.WithLogger(o.logger)}
	if o.observer != nil {
		ucOpts = append(ucOpts, usecase.WithObserver(o.observer))
	}
	app.Retrieval = usecase.NewRetrievalUseCase(registry, router, encoder, cfg.Pipeline(), ucOpts...)
	app.Inspector = usecase.NewInspector(app.Retrieval)

	o.logger.Info("pipeline_ready",
		"indices", registry.Labels(),
		"versions", registry.Versions(),
		"embedder", cfg.Embedder,
		"reranker", cfg.Reranker,
		"classifier", classifier.Name(),
		"fusion", cfg.FusionStrategy,
	)
	ok = true
	return app, nil
}

func (a *App) buildEmbedder(cfg config.Config, client *ollama.Client) (ports.Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderNone:
		return nil, nil
	case config.EmbedderSentence:
		modelPath, err := sentence.PrepareModel(cfg.SentenceModel, cfg.SentenceModelDir)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "prepare sentence model", err)
		}
		emb, err := sentence.New(modelPath)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "init sentence embedder", err)
		}
		a.closers = append(a.closers, func() { _ = emb.Close() })
		return emb, nil
	default:
		return ollama.NewEmbedder(client), nil
	}
}

func (a *App) buildRegistry(
	ctx context.Context,
	cfg config.Config,
	routing config.Routing,
	embedder ports.Embedder,
	executor *resilience.Executor,
	logger *slog.Logger,
) (*index.Registry, error) {
	registry := index.NewRegistry()

	var (
		qdrantClient *qdrant.Client
		db           *sql.DB
	)
	for _, spec := range routing.Indices {
		var (
			idx ports.KnowledgeIndex
			err error
		)
		if spec.Backend != config.BackendMemory && embedder == nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "open index "+spec.Label,
				fmt.Errorf("%s backend needs a query embedder, EMBEDDER is none", spec.Backend))
		}
		switch spec.Backend {
		case config.BackendMemory:
			idx, err = openMemoryIndex(ctx, cfg, spec, embedder)
		case config.BackendQdrant:
			if qdrantClient == nil {
				qdrantClient = qdrant.New(cfg.QdrantURL, qdrant.WithAPIKey(cfg.QdrantAPIKey), qdrant.WithExecutor(executor))
			}
			idx, err = qdrant.Open(ctx, qdrantClient, spec.Label, spec.Collection, embedder)
		case config.BackendPostgres:
			if db == nil {
				if db, err = a.openPostgres(ctx, cfg); err != nil {
					return nil, err
				}
			}
			idx, err = postgres.Open(ctx, db, spec.Label, embedder, postgres.WithTextSearchConfig(cfg.PostgresTextSearchConfig))
		default:
			err = fmt.Errorf("unknown backend %q", spec.Backend)
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "open index "+spec.Label, err)
		}
		if err := registry.Register(idx); err != nil {
			return nil, err
		}
		logger.Info("index_opened", "index", spec.Label, "backend", spec.Backend, "version", idx.Version())
	}
	return registry, nil
}

func openMemoryIndex(ctx context.Context, cfg config.Config, spec config.IndexSpec, embedder ports.Embedder) (ports.KnowledgeIndex, error) {
	var (
		records []memory.Record
		err     error
	)
	if spec.CorpusDir != "" {
		records, err = memory.LoadCorpusDir(spec.CorpusDir, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap))
	} else {
		records, err = memory.LoadCorpusFile(spec.CorpusPath)
	}
	if err != nil {
		return nil, err
	}
	return memory.Build(ctx, spec.Label, records, embedder)
}

func (a *App) openPostgres(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "open postgres", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if cfg.PostgresEnsureSchema {
		if err := postgres.EnsureSchema(ctx, db, cfg.PostgresEmbeddingDims, cfg.PostgresTextSearchConfig); err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "ensure postgres schema", err)
		}
	}
	return db, nil
}

// buildEncoder returns nil when reranking is off, so the pipeline skips the stage.
func (a *App) buildEncoder(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) (ports.CrossEncoder, error) {
	switch cfg.Reranker {
	case config.RerankerNone:
		return nil, nil
	case config.RerankerCrossEncoder:
		client := crossencoder.New(cfg.CrossEncoderURL, crossencoder.WithExecutor(executor))
		gate, err := crossencoder.NewGate(client, cfg.CrossEncoderWorkers, logger)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "init cross-encoder gate", err)
		}
		a.closers = append(a.closers, gate.Close)
		return gate, nil
	default:
		return lexical.New(), nil
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
