// Package crossencoder scores (question, passage) pairs with a remote cross-encoder
// exposing the text-embeddings-inference /rerank contract.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	truncate   bool
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		if executor != nil {
			c.executor = executor
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		truncate:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		c.executor = resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1})
	}
	return c
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one score per passage in input order. The request carries everything
// the server needs; nothing is cached between calls.
func (c *Client) Score(ctx context.Context, question string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}
	req := rerankRequest{Query: question, Texts: passages, RawScores: true, Truncate: c.truncate}

	hits, err := resilience.Do(ctx, c.executor, "crossencoder_rerank", func(ctx context.Context) ([]rerankHit, error) {
		return c.post(ctx, req)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, resilience.MarkTemporary("crossencoder rerank", err)
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(passages) || seen[h.Index] {
			return nil, fmt.Errorf("crossencoder returned invalid index %d", h.Index)
		}
		seen[h.Index] = true
		scores[h.Index] = h.Score
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("crossencoder returned no score for passage %d", i)
		}
	}
	return scores, nil
}

func (c *Client) post(ctx context.Context, payload rerankRequest) ([]rerankHit, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossencoder rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.HTTPStatusError{
			Service:    "crossencoder",
			Operation:  "rerank",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}
	var hits []rerankHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return hits, nil
}
