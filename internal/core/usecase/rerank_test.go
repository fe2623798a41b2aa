package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func TestRerankStageChangesOrder(t *testing.T) {
	fused := []domain.Candidate{
		{NodeID: "doc-1", Text: "unrelated text", FusedScore: 0.95},
		{NodeID: "doc-2", Text: "risk report level high", FusedScore: 0.90},
	}

	reranked, err := NewRerankStage(&overlapEncoder{}).Rerank(context.Background(), "risk report", fused, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(reranked) != 2 {
		t.Fatalf("expected 2 reranked candidates, got %d", len(reranked))
	}
	if reranked[0].NodeID != "doc-2" {
		t.Fatalf("expected doc-2 first after rerank, got %s", reranked[0].NodeID)
	}
	if reranked[0].FusedScore != 0.90 {
		t.Fatalf("rerank must not overwrite fused score, got %f", reranked[0].FusedScore)
	}
	if fused[0].RerankScore != nil {
		t.Fatalf("rerank must not mutate its input")
	}
}

func TestRerankStageHandlesEmptyInput(t *testing.T) {
	out, err := NewRerankStage(&overlapEncoder{}).Rerank(context.Background(), "risk", nil, 10)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
}

func TestRerankStageHardCutoffExcludesTail(t *testing.T) {
	fused := make([]domain.Candidate, 0, 10)
	scores := make(map[string]float64, 10)
	for i := 1; i <= 10; i++ {
		text := fmt.Sprintf("passage %02d", i)
		fused = append(fused, domain.Candidate{NodeID: fmt.Sprintf("n-%02d", i), Text: text, FusedScore: 1 - float64(i)/100})
		// the tail would win if it were scored
		scores[text] = float64(i)
	}

	out, err := NewRerankStage(&tableEncoder{scores: scores}).Rerank(context.Background(), "q", fused, 5)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 reranked candidates, got %d", len(out))
	}
	for _, c := range out {
		for i := 6; i <= 10; i++ {
			if c.NodeID == fmt.Sprintf("n-%02d", i) {
				t.Fatalf("candidate beyond cutoff leaked into output: %s", c.NodeID)
			}
		}
	}
	if out[0].NodeID != "n-05" {
		t.Fatalf("expected n-05 to lead the reranked prefix, got %s", out[0].NodeID)
	}
}

func TestRerankStageFewerThanCutoffReranksAll(t *testing.T) {
	fused := []domain.Candidate{{NodeID: "a", Text: "x"}, {NodeID: "b", Text: "y"}}
	out, err := NewRerankStage(&overlapEncoder{}).Rerank(context.Background(), "y", fused, 20)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(out) != 2 || out[0].NodeID != "b" {
		t.Fatalf("unexpected output: %+v", out)
	}
	for _, c := range out {
		if c.RerankScore == nil {
			t.Fatalf("expected every candidate scored, %s was not", c.NodeID)
		}
	}
}

func TestRerankStageWrapsEncoderError(t *testing.T) {
	fused := []domain.Candidate{{NodeID: "a", Text: "x"}}
	_, err := NewRerankStage(&overlapEncoder{err: errors.New("gpu busy")}).Rerank(context.Background(), "q", fused, 5)
	if !domain.IsKind(err, domain.ErrRerank) {
		t.Fatalf("expected ErrRerank, got %v", err)
	}
}

func TestRerankStageConcurrentCallsMatchIsolatedRuns(t *testing.T) {
	stage := NewRerankStage(&overlapEncoder{})
	fusedA := []domain.Candidate{
		{NodeID: "a1", Text: "invoice refund policy"},
		{NodeID: "a2", Text: "refund window"},
		{NodeID: "a3", Text: "shipping"},
	}
	fusedB := []domain.Candidate{
		{NodeID: "b1", Text: "password reset"},
		{NodeID: "b2", Text: "two factor password"},
	}

	isolatedA, err := stage.Rerank(context.Background(), "invoice refund", fusedA, 10)
	if err != nil {
		t.Fatalf("isolated A: %v", err)
	}
	isolatedB, err := stage.Rerank(context.Background(), "password factor", fusedB, 10)
	if err != nil {
		t.Fatalf("isolated B: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			got, err := stage.Rerank(context.Background(), "invoice refund", fusedA, 10)
			if err != nil || !sameScores(got, isolatedA) {
				errs <- fmt.Errorf("question A diverged: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			got, err := stage.Rerank(context.Background(), "password factor", fusedB, 10)
			if err != nil || !sameScores(got, isolatedB) {
				errs <- fmt.Errorf("question B diverged: %v", err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func sameScores(a, b []domain.Candidate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].NodeID != b[i].NodeID || a[i].Score() != b[i].Score() {
			return false
		}
	}
	return true
}

func TestRerankStageCutsByFusedScoreNotInputOrder(t *testing.T) {
	// input arrives out of fused order; the weakest fused candidate is listed first
	fused := []domain.Candidate{
		{NodeID: "doc-3", Text: "risk risk risk", FusedScore: 0.01},
		{NodeID: "doc-1", Text: "alpha", FusedScore: 0.90},
		{NodeID: "doc-2", Text: "beta risk", FusedScore: 0.50},
	}

	reranked, err := NewRerankStage(&overlapEncoder{}).Rerank(context.Background(), "risk", fused, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(reranked) != 2 {
		t.Fatalf("expected cutoff of 2, got %d", len(reranked))
	}
	for _, c := range reranked {
		if c.NodeID == "doc-3" {
			t.Fatalf("candidate outside the fused prefix reached the encoder")
		}
	}
	if reranked[0].NodeID != "doc-2" {
		t.Fatalf("expected doc-2 first after rerank, got %s", reranked[0].NodeID)
	}
	if fused[0].NodeID != "doc-3" {
		t.Fatalf("rerank must not reorder its input")
	}
}
