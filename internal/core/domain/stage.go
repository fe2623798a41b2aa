package domain

const (
	StageRetrieval = "retrieval"
	StageRerank    = "rerank"
)

// StageResult is the ordered output of one pipeline stage.
type StageResult struct {
	Stage      string      `json:"stage"`
	Skipped    bool        `json:"skipped,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// InspectRequest drives one debug replay of the pipeline.
type InspectRequest struct {
	Question        string `json:"question"`
	MatchSubstring  string `json:"match_substring,omitempty"`
	MatchNodeID     string `json:"match_node_id,omitempty"`
	MaxCandidates   int    `json:"max_candidates"`
	IncludeFullText bool   `json:"include_full_text"`
	RunReranker     bool   `json:"run_reranker"`
}

// InspectMatch is a candidate of interest located at a given stage and 1-based rank.
type InspectMatch struct {
	Stage     string    `json:"stage"`
	Rank      int       `json:"rank"`
	Candidate Candidate `json:"candidate"`
}

type InspectReport struct {
	ID            string         `json:"id"`
	Question      string         `json:"question"`
	RetrieverType string         `json:"retriever_type"`
	Routes        []RouteOutcome `json:"routes"`
	Retrieval     StageResult    `json:"retrieval"`
	Rerank        StageResult    `json:"rerank"`
	Matches       []InspectMatch `json:"matches"`
	Degraded      []string       `json:"degraded,omitempty"`
}
