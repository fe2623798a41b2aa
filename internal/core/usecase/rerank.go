package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

// RerankStage rescales relevance with a cross-encoder over a hard-cutoff prefix.
// Rerank reads only its arguments and returns fresh candidates; nothing is kept
// between calls.
type RerankStage struct {
	encoder ports.CrossEncoder
}

func NewRerankStage(encoder ports.CrossEncoder) *RerankStage {
	return &RerankStage{encoder: encoder}
}

// Rerank scores the first cutoff candidates (in fused order) and returns them sorted
// by rerank score. Candidates beyond the cutoff are dropped. A non-positive cutoff
// scores the whole list.
func (s *RerankStage) Rerank(ctx context.Context, question string, fused []domain.Candidate, cutoff int) ([]domain.Candidate, error) {
	if len(fused) == 0 {
		return []domain.Candidate{}, nil
	}
	head := cutoffPrefix(fused, cutoff)

	texts := make([]string, len(head))
	for i := range head {
		texts[i] = head[i].Text
	}

	scores, err := s.encoder.Score(ctx, question, texts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerank, "cross-encoder score", err)
	}
	if len(scores) != len(head) {
		return nil, domain.WrapError(domain.ErrRerank, "cross-encoder score",
			fmt.Errorf("expected %d scores, got %d", len(head), len(scores)))
	}

	for i := range head {
		if math.IsNaN(scores[i]) || math.IsInf(scores[i], 0) {
			return nil, domain.WrapError(domain.ErrRerank, "cross-encoder score",
				fmt.Errorf("non-finite score for node %s", head[i].NodeID))
		}
		head[i].RerankScore = domain.Float(scores[i])
	}
	domain.SortByScore(head)
	return head, nil
}

// cutoffPrefix returns copies of the cutoff best candidates by fused score, in fused order.
func cutoffPrefix(fused []domain.Candidate, cutoff int) []domain.Candidate {
	ordered := domain.CloneCandidates(fused)
	domain.SortByFused(ordered)
	if cutoff <= 0 || cutoff >= len(ordered) {
		return ordered
	}
	return ordered[:cutoff]
}
