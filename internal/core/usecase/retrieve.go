package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

// RetrievalUseCase runs the full pipeline: route, retrieve per index, merge, rerank, filter.
type RetrievalUseCase struct {
	registry ports.IndexRegistry
	router   *IntentRouter
	reranker *RerankStage
	cfg      domain.PipelineConfig
	logger   *slog.Logger
	observer ports.PipelineObserver
}

type RetrievalOption func(*RetrievalUseCase)

func WithLogger(logger *slog.Logger) RetrievalOption {
	return func(uc *RetrievalUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithObserver(observer ports.PipelineObserver) RetrievalOption {
	return func(uc *RetrievalUseCase) {
		if observer != nil {
			uc.observer = observer
		}
	}
}

// NewRetrievalUseCase wires the pipeline. A nil encoder disables reranking.
func NewRetrievalUseCase(
	registry ports.IndexRegistry,
	router *IntentRouter,
	encoder ports.CrossEncoder,
	cfg domain.PipelineConfig,
	opts ...RetrievalOption,
) *RetrievalUseCase {
	uc := &RetrievalUseCase{
		registry: registry,
		router:   router,
		cfg:      cfg.Normalize(),
		logger:   slog.Default(),
		observer: noopObserver{},
	}
	if encoder != nil {
		uc.reranker = NewRerankStage(encoder)
	} else {
		uc.cfg.RerankEnabled = false
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *RetrievalUseCase) Config() domain.PipelineConfig {
	return uc.cfg
}

func (uc *RetrievalUseCase) Retrieve(ctx context.Context, question string, overrides domain.Overrides) (*domain.RetrievalResult, error) {
	result := &domain.RetrievalResult{
		Question:   question,
		Candidates: []domain.Candidate{},
		Routes:     []domain.RouteOutcome{},
	}
	if normalizeText(question) == "" {
		uc.logger.Debug("retrieve_blank_question")
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := overrides.Apply(uc.cfg)
	routes := uc.plan(ctx, question, overrides)

	started := time.Now()
	g := uc.gather(ctx, question, routes, cfg)
	uc.observer.ObserveStage(domain.StageRetrieval, time.Since(started).Seconds())
	result.Routes = g.outcomes
	result.Degraded = g.degraded

	ranked := g.merged
	threshold := cfg.Threshold
	if cfg.RerankEnabled && uc.reranker != nil {
		started = time.Now()
		var note string
		ranked, result.Reranked, note = uc.rerankOrFallback(ctx, question, g.merged, cfg)
		uc.observer.ObserveStage(domain.StageRerank, time.Since(started).Seconds())
		if note != "" {
			result.Degraded = append(result.Degraded, note)
		}
		if !result.Reranked {
			threshold = cfg.FallbackThreshold
		}
	}

	result.Candidates = FilterByThreshold(ranked, threshold, cfg.TopN)
	uc.observer.ObserveResult(len(result.Candidates))
	uc.logger.Info("retrieve_completed",
		"routes", len(result.Routes),
		"merged", len(g.merged),
		"returned", len(result.Candidates),
		"reranked", result.Reranked,
		"degraded", len(result.Degraded),
	)
	return result, nil
}

// plan routes the question and applies per-request budget overrides and disabled indices.
func (uc *RetrievalUseCase) plan(ctx context.Context, question string, overrides domain.Overrides) []domain.Route {
	routed := uc.router.Route(ctx, question)
	routes := make([]domain.Route, 0, len(routed))
	for _, route := range routed {
		if overrides.IndexDisabled(route.Index) {
			continue
		}
		route.Budget = overrides.ApplyBudget(route.Budget).Normalize()
		routes = append(routes, route)
		uc.observer.ObserveRoute(route.Index, len(route.Domains) > 0)
	}
	return routes
}

type gathered struct {
	merged   []domain.Candidate
	outcomes []domain.RouteOutcome
	degraded []string
}

// gather queries every routed index concurrently. A failing or slow index contributes
// zero candidates and is reported in the outcomes; it never fails the request.
func (uc *RetrievalUseCase) gather(ctx context.Context, question string, routes []domain.Route, cfg domain.PipelineConfig) gathered {
	perIndex := make([]IndexCandidates, len(routes))
	outcomes := make([]domain.RouteOutcome, len(routes))
	errs := make([]error, len(routes))

	var g errgroup.Group
	for i, route := range routes {
		outcomes[i] = domain.RouteOutcome{Route: route}
		perIndex[i].Source = route.Index
		g.Go(func() error {
			index, ok := uc.registry.Get(route.Index)
			if !ok {
				errs[i] = domain.WrapError(domain.ErrIndexNotFound, "resolve index", fmt.Errorf("%q", route.Index))
				return nil
			}
			outcomes[i].Version = index.Version()

			idxCtx, cancel := context.WithTimeout(ctx, cfg.IndexTimeout)
			defer cancel()
			candidates, err := NewHybridRetriever(index, cfg.Fusion).Retrieve(idxCtx, question, route.Budget)
			if err != nil {
				errs[i] = err
				return nil
			}
			perIndex[i].Candidates = candidates
			return nil
		})
	}
	_ = g.Wait()

	out := gathered{outcomes: outcomes}
	for i := range routes {
		uc.observer.ObserveIndexOutcome(routes[i].Index, errs[i])
		if errs[i] != nil {
			uc.logger.Warn("index_retrieval_failed", "index", routes[i].Index, "error", errs[i])
			outcomes[i].Error = errs[i].Error()
			out.degraded = append(out.degraded, fmt.Sprintf("index %s: %v", routes[i].Index, errs[i]))
			continue
		}
		outcomes[i].Candidates = len(perIndex[i].Candidates)
	}
	out.merged = MergeIndexResults(perIndex)
	return out
}

// rerankOrFallback reranks the cutoff prefix; on failure it returns the same prefix in
// fused order with a degradation note.
func (uc *RetrievalUseCase) rerankOrFallback(ctx context.Context, question string, fused []domain.Candidate, cfg domain.PipelineConfig) ([]domain.Candidate, bool, string) {
	rerankCtx, cancel := context.WithTimeout(ctx, cfg.RerankTimeout)
	defer cancel()

	reranked, err := uc.reranker.Rerank(rerankCtx, question, fused, cfg.RerankCutoff)
	if err == nil {
		return reranked, true, ""
	}
	uc.observer.ObserveRerankFallback()
	uc.logger.Warn("rerank_fallback", "candidates", len(fused), "cutoff", cfg.RerankCutoff, "error", err)
	return cutoffPrefix(fused, cfg.RerankCutoff), false, "rerank: " + err.Error()
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, float64)      {}
func (noopObserver) ObserveRoute(string, bool)         {}
func (noopObserver) ObserveIndexOutcome(string, error) {}
func (noopObserver) ObserveRerankFallback()            {}
func (noopObserver) ObserveResult(int)                 {}
