package qdrant

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

// Client is a thin REST client for the read-side qdrant endpoints the indices use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

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
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		c.executor = resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1})
	}
	return c
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type collectionInfo struct {
	Status      string         `json:"status"`
	PointsCount int64          `json:"points_count"`
	Config      map[string]any `json:"config"`
}

func (c *Client) search(ctx context.Context, collection string, body map[string]any) ([]scoredPoint, error) {
	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", collection)
	if err := c.do(ctx, http.MethodPost, path, body, &resp, "search"); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) collection(ctx context.Context, collection string) (collectionInfo, error) {
	var resp struct {
		Result collectionInfo `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections/"+collection, nil, &resp, "collection_info"); err != nil {
		return collectionInfo{}, err
	}
	return resp.Result, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any, operation string) error {
	err := c.executor.Execute(ctx, "qdrant_"+operation, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, payload, out, operation)
	}, resilience.ClassifyHTTP)
	return resilience.MarkTemporary("qdrant "+operation, err)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.HTTPStatusError{
			Service:    "qdrant",
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
