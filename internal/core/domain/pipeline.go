package domain

import "time"

// Budget is the candidate allowance for one index.
// Vector and Sparse are the per-source retrieval counts; Candidates caps the fused list.
type Budget struct {
	Candidates int `json:"candidates" yaml:"candidates"`
	Vector     int `json:"vector" yaml:"vector"`
	Sparse     int `json:"sparse" yaml:"sparse"`
}

// Normalize fills unset per-source counts from Candidates and vice versa.
// A single zero source count is kept so that source is skipped.
func (b Budget) Normalize() Budget {
	out := b
	if out.Vector <= 0 && out.Sparse <= 0 && out.Candidates > 0 {
		out.Vector, out.Sparse = out.Candidates, out.Candidates
	}
	if out.Candidates <= 0 {
		out.Candidates = max(out.Vector, out.Sparse)
	}
	if out.Vector < 0 {
		out.Vector = 0
	}
	if out.Sparse < 0 {
		out.Sparse = 0
	}
	return out
}

// Route selects one index with its budget for a question.
type Route struct {
	Index   string   `json:"index"`
	Budget  Budget   `json:"budget"`
	Domains []string `json:"domains,omitempty"`
}

type FusionStrategy string

const (
	FusionRRF      FusionStrategy = "rrf"
	FusionWeighted FusionStrategy = "weighted"
)

// FusionParams configures how dense and sparse sub-scores combine into the fused score.
type FusionParams struct {
	Strategy     FusionStrategy `json:"strategy"`
	RRFK         int            `json:"rrf_k"`
	VectorWeight float64        `json:"vector_weight"`
	SparseWeight float64        `json:"sparse_weight"`
}

func (p FusionParams) Normalize() FusionParams {
	out := p
	if out.Strategy != FusionWeighted {
		out.Strategy = FusionRRF
	}
	if out.RRFK <= 0 {
		out.RRFK = 60
	}
	if out.VectorWeight < 0 {
		out.VectorWeight = 0
	}
	if out.SparseWeight < 0 {
		out.SparseWeight = 0
	}
	if out.VectorWeight == 0 && out.SparseWeight == 0 {
		out.VectorWeight, out.SparseWeight = 1, 1
	}
	return out
}

// PipelineConfig carries the production limits of one pipeline instance.
// FallbackThreshold replaces Threshold when reranking fails and fused scores rank the output.
type PipelineConfig struct {
	Fusion            FusionParams  `json:"fusion"`
	RerankEnabled     bool          `json:"rerank_enabled"`
	RerankCutoff      int           `json:"rerank_cutoff"`
	TopN              int           `json:"top_n"`
	Threshold         float64       `json:"threshold"`
	FallbackThreshold float64       `json:"fallback_threshold"`
	IndexTimeout      time.Duration `json:"index_timeout"`
	RerankTimeout     time.Duration `json:"rerank_timeout"`
}

func (c PipelineConfig) Normalize() PipelineConfig {
	out := c
	out.Fusion = out.Fusion.Normalize()
	if out.RerankCutoff <= 0 {
		out.RerankCutoff = 20
	}
	if out.TopN <= 0 {
		out.TopN = 5
	}
	if out.IndexTimeout <= 0 {
		out.IndexTimeout = 5 * time.Second
	}
	if out.RerankTimeout <= 0 {
		out.RerankTimeout = 10 * time.Second
	}
	return out
}

// Overrides are optional per-request adjustments; zero values keep the configured value.
type Overrides struct {
	VectorK         int      `json:"vector_k,omitempty"`
	SparseK         int      `json:"sparse_k,omitempty"`
	RerankCutoff    int      `json:"rerank_cutoff,omitempty"`
	TopN            int      `json:"top_n,omitempty"`
	Threshold       *float64 `json:"threshold,omitempty"`
	DisableRerank   bool     `json:"disable_rerank,omitempty"`
	DisabledIndices []string `json:"disabled_indices,omitempty"`
}

// Apply returns the effective pipeline config for one request.
func (o Overrides) Apply(cfg PipelineConfig) PipelineConfig {
	out := cfg
	if o.RerankCutoff > 0 {
		out.RerankCutoff = o.RerankCutoff
	}
	if o.TopN > 0 {
		out.TopN = o.TopN
	}
	if o.Threshold != nil {
		out.Threshold = *o.Threshold
	}
	if o.DisableRerank {
		out.RerankEnabled = false
	}
	return out
}

// ApplyBudget adjusts a route budget by the per-source overrides.
func (o Overrides) ApplyBudget(b Budget) Budget {
	out := b
	if o.VectorK > 0 {
		out.Vector = o.VectorK
	}
	if o.SparseK > 0 {
		out.Sparse = o.SparseK
	}
	if out.Candidates < max(out.Vector, out.Sparse) && (o.VectorK > 0 || o.SparseK > 0) {
		out.Candidates = max(out.Vector, out.Sparse)
	}
	return out
}

func (o Overrides) IndexDisabled(label string) bool {
	for _, d := range o.DisabledIndices {
		if d == label {
			return true
		}
	}
	return false
}

// RouteOutcome reports what one routed index contributed to a request.
type RouteOutcome struct {
	Route      Route  `json:"route"`
	Version    string `json:"version,omitempty"`
	Candidates int    `json:"candidates"`
	Error      string `json:"error,omitempty"`
}

// RetrievalResult is the well-formed, possibly empty, output handed to the answer generator.
type RetrievalResult struct {
	Question   string         `json:"question"`
	Candidates []Candidate    `json:"candidates"`
	Routes     []RouteOutcome `json:"routes"`
	Reranked   bool           `json:"reranked"`
	Degraded   []string       `json:"degraded,omitempty"`
}
