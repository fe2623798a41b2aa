package usecase

import "github.com/kirillkom/retrieval-fusion/internal/core/domain"

// FilterByThreshold keeps candidates whose authoritative score is at least threshold,
// in their incoming order, up to topN. A non-positive topN keeps every passing candidate.
func FilterByThreshold(ranked []domain.Candidate, threshold float64, topN int) []domain.Candidate {
	out := make([]domain.Candidate, 0, min(len(ranked), max(topN, 0)))
	for _, c := range ranked {
		if topN > 0 && len(out) == topN {
			break
		}
		if c.Score() >= threshold {
			out = append(out, c)
		}
	}
	return out
}
