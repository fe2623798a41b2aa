package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

// HybridRetriever runs the dense and sparse sub-retrievals of one index concurrently
// and fuses them into a provenance-tagged candidate list.
type HybridRetriever struct {
	index  ports.KnowledgeIndex
	fusion domain.FusionParams
}

func NewHybridRetriever(index ports.KnowledgeIndex, fusion domain.FusionParams) *HybridRetriever {
	return &HybridRetriever{
		index:  index,
		fusion: fusion.Normalize(),
	}
}

func (r *HybridRetriever) Label() string {
	return r.index.Label()
}

func (r *HybridRetriever) Retrieve(ctx context.Context, question string, budget domain.Budget) ([]domain.Candidate, error) {
	budget = budget.Normalize()

	var dense, sparse []domain.Passage
	g, gctx := errgroup.WithContext(ctx)
	if budget.Vector > 0 {
		g.Go(func() error {
			hits, err := r.index.Dense().Retrieve(gctx, question, budget.Vector)
			if err != nil {
				return fmt.Errorf("dense retrieve %s: %w", r.index.Label(), err)
			}
			dense = trimPassages(hits, budget.Vector)
			return nil
		})
	}
	if budget.Sparse > 0 {
		g.Go(func() error {
			hits, err := r.index.Sparse().Retrieve(gctx, question, budget.Sparse)
			if err != nil {
				return fmt.Errorf("sparse retrieve %s: %w", r.index.Label(), err)
			}
			sparse = trimPassages(hits, budget.Sparse)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "hybrid retrieve", err)
	}

	fused := fuseSubRetrievals(r.index.Label(), dense, sparse, r.fusion)
	return trimCandidates(fused, budget.Candidates), nil
}

func trimPassages(passages []domain.Passage, limit int) []domain.Passage {
	if limit <= 0 || len(passages) <= limit {
		return passages
	}
	return passages[:limit]
}
