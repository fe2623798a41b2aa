package usecase

import (
	"testing"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func TestMergeIndexResultsSortsAcrossIndices(t *testing.T) {
	merged := MergeIndexResults([]IndexCandidates{
		{Source: "general", Candidates: []domain.Candidate{{NodeID: "g-1", FusedScore: 0.02}, {NodeID: "g-2", FusedScore: 0.01}}},
		{Source: "billing", Candidates: []domain.Candidate{{NodeID: "b-1", FusedScore: 0.03}}},
	})
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged candidates, got %d", len(merged))
	}
	if merged[0].NodeID != "b-1" || merged[0].Source != "billing" {
		t.Fatalf("expected billing candidate first, got %+v", merged[0])
	}
	if merged[1].Source != "general" {
		t.Fatalf("expected source tag on general candidate, got %q", merged[1].Source)
	}
}

func TestMergeIndexResultsKeepsSameNodeIDFromDifferentIndices(t *testing.T) {
	merged := MergeIndexResults([]IndexCandidates{
		{Source: "a", Candidates: []domain.Candidate{{NodeID: "n-1", FusedScore: 0.5}}},
		{Source: "b", Candidates: []domain.Candidate{{NodeID: "n-1", FusedScore: 0.5}}},
	})
	if len(merged) != 2 {
		t.Fatalf("expected cross-index node ids to stay distinct, got %d", len(merged))
	}
	if merged[0].Source != "a" {
		t.Fatalf("expected deterministic order by source on full tie, got %s", merged[0].Source)
	}
}

func TestMergeIndexResultsDeduplicatesWithinIndex(t *testing.T) {
	merged := MergeIndexResults([]IndexCandidates{
		{Source: "a", Candidates: []domain.Candidate{{NodeID: "n-1", FusedScore: 0.1}, {NodeID: "n-1", FusedScore: 0.4}}},
	})
	if len(merged) != 1 || merged[0].FusedScore != 0.4 {
		t.Fatalf("expected single candidate keeping best fused score, got %+v", merged)
	}
}

func TestMergeIndexResultsTieBreakByNodeID(t *testing.T) {
	merged := MergeIndexResults([]IndexCandidates{
		{Source: "a", Candidates: []domain.Candidate{{NodeID: "z", FusedScore: 1}, {NodeID: "m", FusedScore: 1}}},
	})
	if merged[0].NodeID != "m" {
		t.Fatalf("expected ascending node id on tie, got %s", merged[0].NodeID)
	}
}
