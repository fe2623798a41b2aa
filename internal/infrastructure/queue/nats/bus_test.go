package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func TestHandleAnswersWithResult(t *testing.T) {
	b := &Bus{logger: discardLogger()}
	payload, err := encodeRequest("refund window", domain.Overrides{TopN: 2})
	if err != nil {
		t.Fatalf("encodeRequest() error = %v", err)
	}

	var gotTopN int
	reply := b.handle(context.Background(), payload, func(_ context.Context, q string, o domain.Overrides) (*domain.RetrievalResult, error) {
		gotTopN = o.TopN
		return &domain.RetrievalResult{Question: q, Candidates: []domain.Candidate{{NodeID: "n-1", FusedScore: 0.03}}}, nil
	})
	if gotTopN != 2 {
		t.Fatalf("expected overrides to reach handler, got top_n=%d", gotTopN)
	}

	res, err := decodeReply(reply)
	if err != nil {
		t.Fatalf("decodeReply() error = %v", err)
	}
	if res.Question != "refund window" || len(res.Candidates) != 1 || res.Candidates[0].NodeID != "n-1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHandleCarriesErrorKind(t *testing.T) {
	b := &Bus{logger: discardLogger()}
	payload, _ := encodeRequest("q", domain.Overrides{})

	reply := b.handle(context.Background(), payload, func(context.Context, string, domain.Overrides) (*domain.RetrievalResult, error) {
		return nil, domain.WrapError(domain.ErrConfiguration, "retrieve", errors.New("no default index"))
	})
	_, err := decodeReply(reply)
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration kind across the wire, got %v", err)
	}
}

func TestHandleRejectsMalformedRequest(t *testing.T) {
	b := &Bus{logger: discardLogger()}
	reply := b.handle(context.Background(), []byte("{"), func(context.Context, string, domain.Overrides) (*domain.RetrievalResult, error) {
		t.Fatalf("handler must not run")
		return nil, nil
	})
	if _, err := decodeReply(reply); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if !classifyNATSError(fmt.Errorf("req: %w", nats.ErrNoResponders)).Retryable {
		t.Fatalf("no responders should be retryable")
	}
	if classifyNATSError(context.Canceled).RecordFailure {
		t.Fatalf("cancellation must not trip the breaker")
	}
	if !domain.IsKind(markTemporary(nats.ErrTimeout), domain.ErrTemporary) {
		t.Fatalf("timeouts should be temporary")
	}
}
