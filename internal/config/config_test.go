package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	t.Setenv("FUSION_STRATEGY", "")
	t.Setenv("FUSION_RRF_K", "")
	t.Setenv("RERANK_CUTOFF", "")
	t.Setenv("RETRIEVAL_TOP_N", "")
	t.Setenv("INDEX_TIMEOUT_MS", "")
	t.Setenv("INSPECT_REPORT_PATH", "")

	cfg := Load()
	if cfg.FusionStrategy != "rrf" {
		t.Fatalf("expected default fusion strategy rrf, got %q", cfg.FusionStrategy)
	}
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.FusionRRFK)
	}
	if cfg.RerankCutoff != 20 {
		t.Fatalf("expected default rerank cutoff 20, got %d", cfg.RerankCutoff)
	}
	if cfg.TopN != 5 {
		t.Fatalf("expected default top n 5, got %d", cfg.TopN)
	}
	if cfg.IndexTimeout != 5*time.Second {
		t.Fatalf("expected default index timeout 5s, got %s", cfg.IndexTimeout)
	}
	if cfg.InspectReportPath != "./data/debug/inspect_report.txt" {
		t.Fatalf("unexpected inspect report path %q", cfg.InspectReportPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("FUSION_STRATEGY", "Weighted")
	t.Setenv("FUSION_VECTOR_WEIGHT", "0.7")
	t.Setenv("FUSION_SPARSE_WEIGHT", "0.3")
	t.Setenv("RERANK_ENABLED", "false")
	t.Setenv("SCORE_THRESHOLD", "0.25")
	t.Setenv("SCORE_THRESHOLD_FALLBACK", "0.01")
	t.Setenv("RERANK_TIMEOUT_MS", "750")

	cfg := Load()
	if cfg.FusionStrategy != "weighted" {
		t.Fatalf("expected weighted strategy, got %q", cfg.FusionStrategy)
	}
	if cfg.FusionVectorWeight != 0.7 || cfg.FusionSparseWeight != 0.3 {
		t.Fatalf("unexpected weights %v/%v", cfg.FusionVectorWeight, cfg.FusionSparseWeight)
	}
	if cfg.RerankTimeout != 750*time.Millisecond {
		t.Fatalf("expected rerank timeout 750ms, got %s", cfg.RerankTimeout)
	}

	p := cfg.Pipeline()
	if p.RerankEnabled {
		t.Fatalf("expected rerank disabled")
	}
	if p.Threshold != 0.25 || p.FallbackThreshold != 0.01 {
		t.Fatalf("unexpected thresholds %v/%v", p.Threshold, p.FallbackThreshold)
	}
	if p.Fusion.Strategy != domain.FusionWeighted {
		t.Fatalf("expected weighted fusion in pipeline config, got %q", p.Fusion.Strategy)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("FUSION_RRF_K", "sixty")
	t.Setenv("SCORE_THRESHOLD", "high")
	t.Setenv("RERANK_ENABLED", "maybe")

	cfg := Load()
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected fallback rrf k, got %d", cfg.FusionRRFK)
	}
	if cfg.ScoreThreshold != 0 {
		t.Fatalf("expected fallback threshold, got %v", cfg.ScoreThreshold)
	}
	if !cfg.RerankEnabled {
		t.Fatalf("expected fallback rerank enabled")
	}
}

func TestValidateRejectsUnknownChoices(t *testing.T) {
	t.Setenv("FUSION_STRATEGY", "borda")
	t.Setenv("RERANKER", "colbert")
	t.Setenv("MCP_TRANSPORT", "grpc")

	err := Load().Validate()
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "borda") || !strings.Contains(err.Error(), "colbert") || !strings.Contains(err.Error(), "grpc") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestRerankerNoneDisablesRerank(t *testing.T) {
	t.Setenv("RERANKER", "none")
	t.Setenv("RERANK_ENABLED", "true")

	if Load().Pipeline().RerankEnabled {
		t.Fatalf("expected rerank disabled when no reranker is configured")
	}
}

const validRouting = `
indices:
  - label: general
    backend: memory
    corpus_path: ./data/general.jsonl
  - label: billing
    backend: qdrant
    collection: billing_passages
default_index: general
default_budget:
  candidates: 10
domains:
  - label: billing
    index: billing
    keywords: [invoice, refund]
    budget:
      candidates: 5
`

func TestParseRoutingValid(t *testing.T) {
	r, err := ParseRouting(strings.NewReader(validRouting))
	if err != nil {
		t.Fatalf("parse routing: %v", err)
	}
	if len(r.Indices) != 2 || r.Indices[1].Collection != "billing_passages" {
		t.Fatalf("unexpected indices %+v", r.Indices)
	}
	table := r.Table()
	if table.DefaultBudget.Vector != 10 || table.DefaultBudget.Sparse != 10 {
		t.Fatalf("expected default budget normalized to 10/10, got %+v", table.DefaultBudget)
	}
	if len(table.Domains) != 1 || table.Domains[0].Keywords[1] != "refund" {
		t.Fatalf("unexpected domains %+v", table.Domains)
	}
}

func TestParseRoutingRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{name: "unknown key", doc: validRouting + "extra: true\n"},
		{name: "undeclared default", doc: strings.Replace(validRouting, "default_index: general", "default_index: legal", 1)},
		{name: "domain on missing index", doc: strings.Replace(validRouting, "index: billing", "index: hr", 1)},
		{name: "memory without corpus", doc: strings.Replace(validRouting, "    corpus_path: ./data/general.jsonl\n", "", 1)},
		{name: "memory with both sources", doc: strings.Replace(validRouting, "    corpus_path: ./data/general.jsonl\n", "    corpus_path: ./data/general.jsonl\n    corpus_dir: ./data/general\n", 1)},
		{name: "bad backend", doc: strings.Replace(validRouting, "backend: qdrant", "backend: solr", 1)},
		{name: "zero budget", doc: strings.Replace(validRouting, "  candidates: 10", "  candidates: 0", 1)},
		{name: "zero domain budget", doc: strings.Replace(validRouting, "      candidates: 5", "      candidates: 0", 1)},
		{name: "missing domain budget", doc: strings.Replace(validRouting, "    budget:\n      candidates: 5\n", "", 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRouting(strings.NewReader(tc.doc))
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadRoutingMissingFile(t *testing.T) {
	_, err := LoadRouting(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadRoutingFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	if err := os.WriteFile(path, []byte(validRouting), 0o600); err != nil {
		t.Fatalf("write routing: %v", err)
	}
	r, err := LoadRouting(path)
	if err != nil {
		t.Fatalf("load routing: %v", err)
	}
	if r.DefaultIndex != "general" {
		t.Fatalf("unexpected default index %q", r.DefaultIndex)
	}
}

func TestShippedRoutingFileIsValid(t *testing.T) {
	r, err := LoadRouting(filepath.Join("..", "..", "configs", "routing.yaml"))
	if err != nil {
		t.Fatalf("load shipped routing: %v", err)
	}
	table := r.Table()
	if table.DefaultIndex != "general" || len(table.Domains) != 2 {
		t.Fatalf("unexpected routing table %+v", table)
	}
	if table.DefaultBudget.Candidates != 20 {
		t.Fatalf("unexpected default budget %+v", table.DefaultBudget)
	}
}
