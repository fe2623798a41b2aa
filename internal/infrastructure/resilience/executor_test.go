package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	err := exec.Execute(context.Background(), "score", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &HTTPStatusError{Service: "tei", Operation: "rerank", StatusCode: http.StatusServiceUnavailable, Status: "503"}
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryClientError(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	err := exec.Execute(context.Background(), "score", func(context.Context) error {
		attempts++
		return &HTTPStatusError{Service: "tei", Operation: "rerank", StatusCode: http.StatusBadRequest, Status: "400"}
	}, nil)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected status error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoReturnsValue(t *testing.T) {
	exec := NewExecutor(fastConfig())
	got, err := Do(context.Background(), exec, "embed", func(context.Context) ([]float32, error) {
		return []float32{1, 2}, nil
	}, nil)
	if err != nil || len(got) != 2 {
		t.Fatalf("Do() = %v, %v", got, err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = 50 * time.Millisecond
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg)

	errDown := errors.New("backend down")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "search", func(context.Context) error { return errDown }, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("iteration %d: expected backend error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "search", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !domain.IsKind(MarkTemporary("search", err), domain.ErrTemporary) {
		t.Fatalf("expected open circuit to be marked temporary")
	}
}

func TestClassifyHTTP(t *testing.T) {
	cases := []struct {
		err   error
		retry bool
	}{
		{err: context.DeadlineExceeded, retry: false},
		{err: fmt.Errorf("wrap: %w", &HTTPStatusError{StatusCode: http.StatusTooManyRequests}), retry: true},
		{err: &HTTPStatusError{StatusCode: http.StatusNotFound}, retry: false},
		{err: errors.New("decode"), retry: false},
	}
	for _, tc := range cases {
		if got := ClassifyHTTP(tc.err).Retryable; got != tc.retry {
			t.Fatalf("ClassifyHTTP(%v).Retryable = %v, want %v", tc.err, got, tc.retry)
		}
	}
}
