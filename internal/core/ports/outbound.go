package ports

import (
	"context"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

// PassageRetriever returns the top-k passages of one index under one scoring function.
type PassageRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error)
}

// KnowledgeIndex is a long-lived, read-only index exposing one retriever per modality.
type KnowledgeIndex interface {
	Label() string
	// Version is an immutable token identifying the indexed content.
	Version() string
	Dense() PassageRetriever
	Sparse() PassageRetriever
}

// IndexRegistry resolves index labels to indices built at startup.
type IndexRegistry interface {
	Get(label string) (KnowledgeIndex, bool)
	Labels() []string
}

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CrossEncoder scores (question, passage) pairs. Implementations must not retain per-call state.
type CrossEncoder interface {
	Score(ctx context.Context, question string, passages []string) ([]float64, error)
}

// Completer runs a single completion-style prompt against a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// IntentClassifier maps a question to the domain labels it triggers.
type IntentClassifier interface {
	Name() string
	Classify(ctx context.Context, question string) []string
}

// PipelineObserver receives per-stage measurements; implementations must be safe for concurrent use.
type PipelineObserver interface {
	ObserveStage(stage string, seconds float64)
	ObserveRoute(index string, matchedDomain bool)
	ObserveIndexOutcome(index string, err error)
	ObserveRerankFallback()
	ObserveResult(candidates int)
}
