package report

import (
	"strings"
	"testing"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func TestTextRendersStagesAndMatches(t *testing.T) {
	score, rank, rr := 0.8, 1, 2.5
	hit := domain.Candidate{
		NodeID:      "n1",
		Text:        "refund policy\nline two",
		Metadata:    map[string]string{"filename": "billing.md", "author": "ops"},
		Source:      "billing",
		VectorScore: &score,
		VectorRank:  &rank,
		FusedScore:  0.016,
		RerankScore: &rr,
	}
	r := &domain.InspectReport{
		ID:            "rep-1",
		Question:      "refund?",
		RetrieverType: "hybrid[rrf]+rerank router=keyword",
		Routes: []domain.RouteOutcome{
			{Route: domain.Route{Index: "billing", Budget: domain.Budget{Candidates: 5, Vector: 5, Sparse: 5}, Domains: []string{"billing"}}, Version: "v1", Candidates: 1},
			{Route: domain.Route{Index: "general"}, Error: "deadline exceeded"},
		},
		Retrieval: domain.StageResult{Stage: domain.StageRetrieval, Candidates: []domain.Candidate{hit}},
		Rerank:    domain.StageResult{Stage: domain.StageRerank, Skipped: true},
		Matches:   []domain.InspectMatch{{Stage: domain.StageRetrieval, Rank: 1, Candidate: hit}},
		Degraded:  []string{"index general: deadline exceeded"},
	}

	out := Text(r)
	for _, want := range []string{
		"report_id: rep-1",
		"index=billing version=v1 budget=5/5/5 candidates=1 domains=billing ok",
		"index=general version=- budget=0/0/0 candidates=0 domains=- error: deadline exceeded",
		"degraded: index general: deadline exceeded",
		"- stage=retrieval rank=1 node=n1 file=billing.md",
		"vector=0.800000(rank 1) bm25=- rerank=2.500000",
		"meta author=ops\n   meta filename=billing.md",
		"text: refund policy line two",
		"== stage: rerank ==\n(skipped)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestTextEmptyStages(t *testing.T) {
	out := Text(&domain.InspectReport{
		Retrieval: domain.StageResult{Stage: domain.StageRetrieval},
		Rerank:    domain.StageResult{Stage: domain.StageRerank},
	})
	if !strings.Contains(out, "(none)") || strings.Count(out, "(no candidates)") != 2 {
		t.Fatalf("unexpected empty report:\n%s", out)
	}
}
