package usecase

import "github.com/kirillkom/retrieval-fusion/internal/core/domain"

// IndexCandidates is the output of one routed index.
type IndexCandidates struct {
	Source     string
	Candidates []domain.Candidate
}

// MergeIndexResults concatenates per-index lists into one list ranked by fused score.
// Node ids are only unique within an index, so duplicates are detected per source.
func MergeIndexResults(results []IndexCandidates) []domain.Candidate {
	total := 0
	for _, r := range results {
		total += len(r.Candidates)
	}

	type key struct{ source, node string }
	seen := make(map[key]int, total)
	out := make([]domain.Candidate, 0, total)
	for _, r := range results {
		for _, c := range r.Candidates {
			c = c.Clone()
			if c.Source == "" {
				c.Source = r.Source
			}
			k := key{c.Source, c.NodeID}
			if i, ok := seen[k]; ok {
				if c.FusedScore > out[i].FusedScore {
					out[i] = c
				}
				continue
			}
			seen[k] = len(out)
			out = append(out, c)
		}
	}
	domain.SortByFused(out)
	return out
}
