package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

const (
	defaultInspectCandidates = 50
	inspectPreviewRunes      = 240
)

// Inspector replays the pipeline with relaxed limits and reports every stage.
// It never changes indices, configuration or metrics.
type Inspector struct {
	pipeline *RetrievalUseCase
}

func NewInspector(pipeline *RetrievalUseCase) *Inspector {
	return &Inspector{pipeline: pipeline}
}

func (i *Inspector) Inspect(ctx context.Context, req domain.InspectRequest) (*domain.InspectReport, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "inspect", fmt.Errorf("question is required"))
	}
	limit := req.MaxCandidates
	if limit <= 0 {
		limit = defaultInspectCandidates
	}

	uc := i.pipeline
	cfg := uc.cfg
	cfg.RerankCutoff = limit
	cfg.TopN = limit

	routes := uc.router.Route(ctx, question)
	for idx := range routes {
		routes[idx].Budget = relaxBudget(routes[idx].Budget, limit)
	}

	// a private copy so replays never reach production metrics
	replay := *uc
	replay.observer = noopObserver{}
	g := replay.gather(ctx, question, routes, cfg)

	report := &domain.InspectReport{
		ID:        uuid.NewString(),
		Question:  question,
		Routes:    g.outcomes,
		Degraded:  g.degraded,
		Retrieval: domain.StageResult{Stage: domain.StageRetrieval, Candidates: trimCandidates(g.merged, limit)},
		Rerank:    domain.StageResult{Stage: domain.StageRerank, Skipped: true, Candidates: []domain.Candidate{}},
	}

	reranked := false
	if req.RunReranker && uc.reranker != nil {
		var note string
		report.Rerank.Candidates, reranked, note = replay.rerankOrFallback(ctx, question, report.Retrieval.Candidates, cfg)
		report.Rerank.Skipped = false
		if note != "" {
			report.Degraded = append(report.Degraded, note)
		}
	}
	report.RetrieverType = retrieverType(cfg.Fusion.Strategy, reranked, uc.router.ClassifierName())

	report.Matches = append(
		collectMatches(report.Retrieval, req),
		collectMatches(report.Rerank, req)...,
	)
	if !req.IncludeFullText {
		previewStage(&report.Retrieval)
		previewStage(&report.Rerank)
		for idx := range report.Matches {
			report.Matches[idx].Candidate.Text = preview(report.Matches[idx].Candidate.Text)
		}
	}
	return report, nil
}

// relaxBudget raises the enabled source counts to limit. A source with a zero count
// stays skipped, as it is in production.
func relaxBudget(b domain.Budget, limit int) domain.Budget {
	out := domain.Budget{Candidates: limit}
	if b.Vector > 0 {
		out.Vector = limit
	}
	if b.Sparse > 0 {
		out.Sparse = limit
	}
	return out
}

func retrieverType(strategy domain.FusionStrategy, reranked bool, classifier string) string {
	out := fmt.Sprintf("hybrid[%s]", strategy)
	if reranked {
		out += "+rerank"
	}
	return out + " router=" + classifier
}

func collectMatches(stage domain.StageResult, req domain.InspectRequest) []domain.InspectMatch {
	nodeID := strings.TrimSpace(req.MatchNodeID)
	needle := strings.ToLower(strings.TrimSpace(req.MatchSubstring))
	if nodeID == "" && needle == "" {
		return nil
	}

	var out []domain.InspectMatch
	for rank, c := range stage.Candidates {
		hit := nodeID != "" && c.NodeID == nodeID
		if !hit && needle != "" {
			hit = strings.Contains(strings.ToLower(c.Text), needle) ||
				strings.Contains(strings.ToLower(c.Filename()), needle)
		}
		if hit {
			out = append(out, domain.InspectMatch{Stage: stage.Stage, Rank: rank + 1, Candidate: c.Clone()})
		}
	}
	return out
}

func previewStage(stage *domain.StageResult) {
	for idx := range stage.Candidates {
		stage.Candidates[idx].Text = preview(stage.Candidates[idx].Text)
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= inspectPreviewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:inspectPreviewRunes]) + "..."
}
