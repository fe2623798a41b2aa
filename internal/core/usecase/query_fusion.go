package usecase

import (
	"fmt"
	"hash/fnv"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

// fuseSubRetrievals merges the dense and sparse hits of one index by node id and
// computes the fused score. Both strategies are deterministic and never decrease
// when a sub-score (or its rank) improves.
func fuseSubRetrievals(source string, dense, sparse []domain.Passage, params domain.FusionParams) []domain.Candidate {
	params = params.Normalize()

	acc := make(map[string]*domain.Candidate, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))
	candidateFor := func(p domain.Passage) *domain.Candidate {
		key := passageKey(p)
		c, ok := acc[key]
		if !ok {
			c = &domain.Candidate{NodeID: key, Source: source}
			acc[key] = c
			order = append(order, key)
		}
		preferRicherPassage(c, p)
		return c
	}

	for rank, p := range dense {
		c := candidateFor(p)
		if c.VectorRank != nil {
			continue
		}
		c.VectorRank = domain.Int(rank + 1)
		c.VectorScore = domain.Float(p.Score)
	}
	for rank, p := range sparse {
		c := candidateFor(p)
		if c.BM25Rank != nil {
			continue
		}
		c.BM25Rank = domain.Int(rank + 1)
		c.BM25Score = domain.Float(p.Score)
	}

	var scoreFn func(c *domain.Candidate) float64
	switch params.Strategy {
	case domain.FusionWeighted:
		vecNorm := minMaxNormalizer(dense)
		sparseNorm := minMaxNormalizer(sparse)
		scoreFn = func(c *domain.Candidate) float64 {
			score := 0.0
			if c.VectorScore != nil {
				score += params.VectorWeight * vecNorm(*c.VectorScore)
			}
			if c.BM25Score != nil {
				score += params.SparseWeight * sparseNorm(*c.BM25Score)
			}
			return score
		}
	default:
		k := float64(params.RRFK)
		scoreFn = func(c *domain.Candidate) float64 {
			score := 0.0
			if c.VectorRank != nil {
				score += params.VectorWeight / (k + float64(*c.VectorRank))
			}
			if c.BM25Rank != nil {
				score += params.SparseWeight / (k + float64(*c.BM25Rank))
			}
			return score
		}
	}

	out := make([]domain.Candidate, 0, len(order))
	for _, key := range order {
		c := acc[key]
		c.FusedScore = scoreFn(c)
		out = append(out, *c)
	}
	domain.SortByFused(out)
	return out
}

func trimCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func minMaxNormalizer(passages []domain.Passage) func(float64) float64 {
	if len(passages) == 0 {
		return func(float64) float64 { return 0 }
	}
	lo, hi := passages[0].Score, passages[0].Score
	for _, p := range passages[1:] {
		lo = min(lo, p.Score)
		hi = max(hi, p.Score)
	}
	spread := hi - lo
	return func(v float64) float64 {
		if spread <= 0 {
			return 1
		}
		return (v - lo) / spread
	}
}

func passageKey(p domain.Passage) string {
	if p.NodeID != "" {
		return p.NodeID
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(p.Filename()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(p.Text))
	return fmt.Sprintf("anon-%016x", h.Sum64())
}

func preferRicherPassage(c *domain.Candidate, p domain.Passage) {
	if c.Text == "" && p.Text != "" {
		c.Text = p.Text
	}
	if len(p.Metadata) == 0 {
		return
	}
	if c.Metadata == nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
	}
	for k, v := range p.Metadata {
		if _, ok := c.Metadata[k]; !ok {
			c.Metadata[k] = v
		}
	}
}
