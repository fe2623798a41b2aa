package ports

import (
	"context"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

// PassageRetrievalService is the inbound contract for ranked passage retrieval.
type PassageRetrievalService interface {
	Retrieve(ctx context.Context, question string, overrides domain.Overrides) (*domain.RetrievalResult, error)
}

// PipelineInspector is the inbound contract for read-only debug replays.
type PipelineInspector interface {
	Inspect(ctx context.Context, req domain.InspectRequest) (*domain.InspectReport, error)
}
