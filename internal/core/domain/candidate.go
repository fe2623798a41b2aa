package domain

import (
	"sort"
	"strings"
)

// Passage is a single hit returned by one sub-retrieval of an index.
type Passage struct {
	NodeID   string            `json:"node_id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Filename returns the source file name recorded at ingestion time, if any.
func (p Passage) Filename() string {
	return metadataFilename(p.Metadata)
}

// Candidate is a request-scoped, provenance-tagged passage flowing through the pipeline.
type Candidate struct {
	NodeID      string            `json:"node_id"`
	Text        string            `json:"text"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Source      string            `json:"source"`
	VectorScore *float64          `json:"vector_score,omitempty"`
	VectorRank  *int              `json:"vector_rank,omitempty"`
	BM25Score   *float64          `json:"bm25_score,omitempty"`
	BM25Rank    *int              `json:"bm25_rank,omitempty"`
	FusedScore  float64           `json:"fused_score"`
	RerankScore *float64          `json:"rerank_score,omitempty"`
}

// Score is the authoritative ranking score: the rerank score once present, otherwise the fused score.
func (c Candidate) Score() float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return c.FusedScore
}

func (c Candidate) Filename() string {
	return metadataFilename(c.Metadata)
}

// Clone returns a deep copy so stages never share pointers across requests.
func (c Candidate) Clone() Candidate {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	out.VectorScore = cloneFloat(c.VectorScore)
	out.BM25Score = cloneFloat(c.BM25Score)
	out.RerankScore = cloneFloat(c.RerankScore)
	out.VectorRank = cloneInt(c.VectorRank)
	out.BM25Rank = cloneInt(c.BM25Rank)
	return out
}

func CloneCandidates(in []Candidate) []Candidate {
	if in == nil {
		return nil
	}
	out := make([]Candidate, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// SortByFused orders candidates by fused score descending, node id ascending.
func SortByFused(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return lessBy(candidates[i], candidates[j], candidates[i].FusedScore, candidates[j].FusedScore)
	})
}

// SortByScore orders candidates by authoritative score descending, node id ascending.
func SortByScore(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return lessBy(candidates[i], candidates[j], candidates[i].Score(), candidates[j].Score())
	})
}

func lessBy(a, b Candidate, sa, sb float64) bool {
	if sa != sb {
		return sa > sb
	}
	if a.NodeID != b.NodeID {
		return a.NodeID < b.NodeID
	}
	return a.Source < b.Source
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

var filenameKeys = []string{"file_name", "filename", "file_path", "source"}

func metadataFilename(md map[string]string) string {
	for _, key := range filenameKeys {
		if v := strings.TrimSpace(md[key]); v != "" {
			return v
		}
	}
	return ""
}
